package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend keeps state in a map. Used by tests and dry runs.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored at key.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

// Scan returns copies of all pairs under prefix, ordered by key.
func (m *MemoryBackend) Scan(_ context.Context, prefix string) ([]KV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pairs := []KV{}
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			pairs = append(pairs, KV{Key: k, Value: bytes.Clone(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs, nil
}

// Apply writes the batch under one lock acquisition.
func (m *MemoryBackend) Apply(_ context.Context, batch []Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mut := range batch {
		if mut.Delete {
			delete(m.data, mut.Key)
			continue
		}
		m.data[mut.Key] = bytes.Clone(mut.Value)
	}
	return nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }

// Dump returns a deep copy of the whole keyspace, for byte-for-byte
// comparisons in tests.
func (m *MemoryBackend) Dump() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		out[k] = bytes.Clone(v)
	}
	return out
}
