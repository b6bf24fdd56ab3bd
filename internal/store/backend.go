package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Backend.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KV is one key/value pair returned by a scan.
type KV struct {
	Key   string
	Value []byte
}

// Mutation is one write in an atomic batch. Delete removes the key and
// ignores Value.
type Mutation struct {
	Key    string
	Value  []byte
	Delete bool
}

// Backend is the persistent key-value surface provided by the host.
//
// Implementations must make Apply atomic: either every mutation in the batch
// becomes visible or none does. Scan returns pairs sorted by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Scan(ctx context.Context, prefix string) ([]KV, error)
	Apply(ctx context.Context, batch []Mutation) error
	Close() error
}
