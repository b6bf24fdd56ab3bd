package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/idreg/internal/ir"
)

// createSQLiteBackend opens a fresh database in a temp dir.
func createSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// backendFactories lists the backends every contract test runs against.
func backendFactories() map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend { return NewMemoryBackend() },
		"sqlite": func(t *testing.T) Backend { return createSQLiteBackend(t) },
	}
}

// testRecord builds a record owned by owner with one attribute.
func testRecord(owner ir.AccountID, name, value string, seq uint64, ts int64) ir.IdentityRecord {
	return ir.IdentityRecord{
		Owner:      owner,
		Attributes: ir.Attributes{name: []byte(value)},
		Claims:     map[uint64]ir.Claim{},
		Seq:        seq,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}

// commitRecords loads, puts every record and commits.
func commitRecords(t *testing.T, s *Store, records map[ir.AccountID]ir.IdentityRecord) {
	t.Helper()
	ctx := context.Background()
	snap, err := s.Load(ctx)
	require.NoError(t, err)
	for a, rec := range records {
		snap.Put(a, rec)
	}
	require.NoError(t, s.Commit(ctx, snap))
}
