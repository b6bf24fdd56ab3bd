package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idreg/internal/ir"
)

func TestSnapshot_GetReturnsCopy(t *testing.T) {
	snap := NewSnapshot()
	snap.Put(alice, testRecord(alice, "name", "Alice", 1, 1))

	got, ok := snap.Get(alice)
	require.True(t, ok)
	got.Attributes["name"][0] = 'X'
	got.Attributes["extra"] = []byte("x")

	again, _ := snap.Get(alice)
	assert.Equal(t, []byte("Alice"), again.Attributes["name"])
	assert.NotContains(t, again.Attributes, "extra")
}

func TestSnapshot_PutStoresCopy(t *testing.T) {
	snap := NewSnapshot()
	rec := testRecord(alice, "name", "Alice", 1, 1)
	snap.Put(alice, rec)
	rec.Attributes["name"][0] = 'X'

	got, _ := snap.Get(alice)
	assert.Equal(t, []byte("Alice"), got.Attributes["name"])
}

func TestSnapshot_DirtyTracking(t *testing.T) {
	snap := NewSnapshot()
	assert.False(t, snap.Dirty())

	snap.Remove(alice)
	assert.False(t, snap.Dirty(), "removing an absent account is a no-op")

	snap.NextSeq()
	assert.True(t, snap.Dirty())
}

func TestSnapshot_NextSeq(t *testing.T) {
	snap := NewSnapshot()
	assert.Equal(t, uint64(1), snap.PeekSeq())
	assert.Equal(t, uint64(1), snap.NextSeq())
	assert.Equal(t, uint64(2), snap.NextSeq())
	assert.Equal(t, uint64(3), snap.PeekSeq())
}

func TestSnapshot_AccountsAndOwnedBy(t *testing.T) {
	snap := NewSnapshot()
	snap.Put(carol, testRecord(bob, "x", "1", 1, 1))
	snap.Put(alice, testRecord(alice, "x", "2", 2, 1))
	snap.Put(bob, testRecord(bob, "x", "3", 3, 7))

	assert.Equal(t, []ir.AccountID{alice, bob, carol}, snap.Accounts())
	assert.Equal(t, []ir.AccountID{bob, carol}, snap.OwnedBy(bob))
	assert.Empty(t, snap.OwnedBy(carol))
	assert.Equal(t, int64(7), snap.LatestTimestamp())
	assert.Equal(t, 3, snap.Len())
}
