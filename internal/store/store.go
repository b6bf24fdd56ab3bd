package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/idreg/internal/ir"
)

// Key layout.
const (
	keySchemaVersion = "meta/schema_version"
	keyNextSeq       = "meta/next_seq"
	keyGeneration    = "meta/generation"
	prefixRecord     = "record/"
	prefixLegacy     = "identity/"
)

var (
	// ErrStaleSnapshot is returned when committing a snapshot loaded before
	// another commit landed.
	ErrStaleSnapshot = errors.New("snapshot is stale")

	// ErrSnapshotCommitted is returned when committing a snapshot twice.
	ErrSnapshotCommitted = errors.New("snapshot already committed")

	// ErrUpgradeRequired is returned by Load when the persisted layout is
	// older than ir.SchemaVersion.
	ErrUpgradeRequired = errors.New("state upgrade required")

	// ErrUnsupportedSchema is returned when the persisted layout is newer
	// than this build understands.
	ErrUnsupportedSchema = errors.New("unsupported state schema")
)

// Store loads and commits registry snapshots over a Backend.
type Store struct {
	backend Backend
}

// New creates a Store over backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Load reads the whole registry into a new snapshot.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	switch {
	case version < ir.SchemaVersion:
		return nil, fmt.Errorf("load: schema version %d: %w", version, ErrUpgradeRequired)
	case version > ir.SchemaVersion:
		return nil, fmt.Errorf("load: schema version %d: %w", version, ErrUnsupportedSchema)
	}

	snap := NewSnapshot()

	if snap.nextSeq, err = s.readUint(ctx, keyNextSeq, 1); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if snap.generation, err = s.readUint(ctx, keyGeneration, 0); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	pairs, err := s.backend.Scan(ctx, prefixRecord)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	for _, kv := range pairs {
		account, rec, err := unmarshalRecord(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", kv.Key, err)
		}
		if recordKey(account) != kv.Key {
			return nil, fmt.Errorf("load %s: record names account %s", kv.Key, account)
		}
		snap.records[account] = rec
		if rec.UpdatedAt > snap.latest {
			snap.latest = rec.UpdatedAt
		}
	}

	return snap, nil
}

// Commit atomically persists every change made to snap.
//
// A clean snapshot commits without touching the backend. A snapshot can be
// committed once, and only if no other commit happened since it was loaded.
func (s *Store) Commit(ctx context.Context, snap *Snapshot) error {
	if snap.committed {
		return ErrSnapshotCommitted
	}
	if !snap.Dirty() {
		snap.committed = true
		return nil
	}

	current, err := s.readUint(ctx, keyGeneration, 0)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if current != snap.generation {
		return fmt.Errorf("commit: loaded at generation %d, store at %d: %w", snap.generation, current, ErrStaleSnapshot)
	}

	dirty := make([]ir.AccountID, 0, len(snap.dirty))
	for a := range snap.dirty {
		dirty = append(dirty, a)
	}
	slices.SortFunc(dirty, ir.AccountID.Compare)

	batch := make([]Mutation, 0, len(dirty)+3)
	for _, account := range dirty {
		rec, ok := snap.records[account]
		if !ok {
			batch = append(batch, Mutation{Key: recordKey(account), Delete: true})
			continue
		}
		data, err := marshalRecord(account, rec)
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		batch = append(batch, Mutation{Key: recordKey(account), Value: data})
	}
	batch = append(batch,
		Mutation{Key: keyNextSeq, Value: marshalUint(snap.nextSeq)},
		Mutation{Key: keyGeneration, Value: marshalUint(snap.generation + 1)},
		Mutation{Key: keySchemaVersion, Value: marshalUint(ir.SchemaVersion)},
	)

	if err := s.backend.Apply(ctx, batch); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	snap.committed = true
	snap.generation++
	clear(snap.dirty)
	snap.seqDirty = false
	return nil
}

// SchemaVersion reports the persisted layout version. A store with no
// version key is at version 1 if it holds legacy records and current if empty.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	raw, err := s.backend.Get(ctx, keySchemaVersion)
	if errors.Is(err, ErrKeyNotFound) {
		legacy, err := s.backend.Scan(ctx, prefixLegacy)
		if err != nil {
			return 0, fmt.Errorf("schema version: %w", err)
		}
		if len(legacy) > 0 {
			return 1, nil
		}
		return ir.SchemaVersion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("schema version %q: %w", raw, err)
	}
	return v, nil
}

// Digest hashes the entire keyspace. Two stores with equal digests hold
// byte-for-byte identical state.
func (s *Store) Digest(ctx context.Context) (string, error) {
	pairs, err := s.backend.Scan(ctx, "")
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	kvs := make([][2][]byte, len(pairs))
	for i, kv := range pairs {
		kvs[i] = [2][]byte{[]byte(kv.Key), kv.Value}
	}
	return ir.StateDigest(kvs), nil
}

func (s *Store) readUint(ctx context.Context, key string, def uint64) (uint64, error) {
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	return unmarshalUint(key, raw)
}

func recordKey(account ir.AccountID) string {
	return prefixRecord + account.String()
}

func legacyKey(account ir.AccountID) string {
	return prefixLegacy + account.String()
}

// accountFromKey parses the account out of a record or legacy key.
func accountFromKey(key, prefix string) (ir.AccountID, error) {
	return ir.ParseAccountID(strings.TrimPrefix(key, prefix))
}
