package registry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/store"
	"github.com/roach88/idreg/internal/testutil"
)

var (
	alice = testutil.Account("alice")
	bob   = testutil.Account("bob")
	carol = testutil.Account("carol")
)

// newRegistry returns a registry over a fresh snapshot at time 1.
func newRegistry(t *testing.T, opts ...Option) (*Registry, *store.Snapshot) {
	t.Helper()
	snap := store.NewSnapshot()
	return New(snap, 1, opts...), snap
}

// at returns a registry over the same snapshot at a later time.
func at(snap *store.Snapshot, now int64, opts ...Option) *Registry {
	return New(snap, now, opts...)
}

func mustRegister(t *testing.T, r *Registry, caller ir.AccountID, attrs ir.Attributes) ir.IdentityRecord {
	t.Helper()
	rec, err := r.Register(caller, attrs)
	require.NoError(t, err)
	return rec
}

func TestQuery_NeverRegistered(t *testing.T) {
	r, _ := newRegistry(t)

	_, _, err := r.Query(alice, nil)
	assert.ErrorIs(t, err, ir.ErrNotFound)

	_, _, err = r.Query(alice, &bob)
	assert.ErrorIs(t, err, ir.ErrNotFound)
}

func TestRegister_ThenQuery(t *testing.T) {
	r, _ := newRegistry(t)
	attrs := testutil.Attrs("name", "Alice", "email", "alice@example.com")

	created := mustRegister(t, r, alice, attrs)
	assert.Equal(t, alice, created.Owner)
	assert.Equal(t, uint64(1), created.Seq)
	assert.Equal(t, int64(1), created.CreatedAt)
	assert.Equal(t, int64(1), created.UpdatedAt)

	account, rec, err := r.Query(bob, &alice)
	require.NoError(t, err)
	assert.Equal(t, alice, account)
	assert.Equal(t, alice, rec.Owner)
	assert.True(t, attrs.Equal(rec.Attributes))
}

func TestRegister_DoesNotAliasInput(t *testing.T) {
	r, _ := newRegistry(t)
	attrs := testutil.Attrs("name", "Alice")
	mustRegister(t, r, alice, attrs)

	attrs["name"][0] = 'X'
	_, rec, err := r.Query(alice, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("Alice"), rec.Attributes["name"])
}

func TestRegister_Twice(t *testing.T) {
	r, snap := newRegistry(t)
	mustRegister(t, r, alice, testutil.Attrs("name", "Alice"))
	seqBefore := snap.PeekSeq()

	_, err := at(snap, 2).Register(alice, testutil.Attrs("name", "Mallory"))
	assert.ErrorIs(t, err, ir.ErrAlreadyExists)

	rec, _ := snap.Get(alice)
	assert.Equal(t, []byte("Alice"), rec.Attributes["name"])
	assert.Equal(t, seqBefore, snap.PeekSeq(), "failed register must not consume a sequence id")
}

func TestUpdate_ReplacesWholesale(t *testing.T) {
	r, snap := newRegistry(t)
	mustRegister(t, r, alice, testutil.Attrs("name", "Alice", "city", "Paris"))

	account, rec, err := at(snap, 5).Update(alice, nil, testutil.Attrs("name", "Alicia"))
	require.NoError(t, err)
	assert.Equal(t, alice, account)
	assert.Equal(t, testutil.Attrs("name", "Alicia"), rec.Attributes)
	assert.Equal(t, int64(1), rec.CreatedAt)
	assert.Equal(t, int64(5), rec.UpdatedAt)
}

func TestUpdate_NotFound(t *testing.T) {
	r, _ := newRegistry(t)
	_, _, err := r.Update(alice, nil, nil)
	assert.ErrorIs(t, err, ir.ErrNotFound)
}

func TestUpdate_NonOwner(t *testing.T) {
	r, snap := newRegistry(t)
	mustRegister(t, r, alice, testutil.Attrs("name", "Alice"))
	before, _ := snap.Get(alice)

	_, _, err := r.Update(bob, &alice, testutil.Attrs("name", "Bob"))
	assert.ErrorIs(t, err, ir.ErrUnauthorized)

	after, _ := snap.Get(alice)
	assert.Equal(t, before, after)
}

func TestUpdate_TimestampNeverMovesBackwards(t *testing.T) {
	_, snap := newRegistry(t)
	mustRegister(t, at(snap, 10), alice, nil)

	_, rec, err := at(snap, 3).Update(alice, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.UpdatedAt)
}

func TestTransfer_OldOwnerLosesControl(t *testing.T) {
	r, snap := newRegistry(t)
	mustRegister(t, r, alice, testutil.Attrs("name", "Alice"))

	account, rec, err := at(snap, 2).Transfer(alice, nil, bob)
	require.NoError(t, err)
	assert.Equal(t, alice, account, "record stays under its account key")
	assert.Equal(t, bob, rec.Owner)
	assert.Equal(t, []byte("Alice"), rec.Attributes["name"], "attributes preserved")

	_, _, err = at(snap, 3).Update(alice, nil, testutil.Attrs("name", "Eve"))
	assert.ErrorIs(t, err, ir.ErrUnauthorized)

	account, rec, err = at(snap, 4).Update(bob, nil, testutil.Attrs("name", "Bob's"))
	require.NoError(t, err, "new owner resolves the transferred record without naming it")
	assert.Equal(t, alice, account)
	assert.Equal(t, []byte("Bob's"), rec.Attributes["name"])
}

func TestTransfer_InvalidTargets(t *testing.T) {
	r, _ := newRegistry(t)
	mustRegister(t, r, alice, nil)

	_, _, err := r.Transfer(alice, nil, alice)
	assert.ErrorIs(t, err, ir.ErrInvalidTarget)

	_, _, err = r.Transfer(alice, nil, ir.ZeroAccount)
	assert.ErrorIs(t, err, ir.ErrInvalidTarget)
}

func TestTransfer_NonOwnerCheckedBeforeTarget(t *testing.T) {
	r, _ := newRegistry(t)
	mustRegister(t, r, alice, nil)

	_, _, err := r.Transfer(bob, &alice, alice)
	assert.ErrorIs(t, err, ir.ErrUnauthorized)
}

func TestDelete_ThenReRegister(t *testing.T) {
	r, snap := newRegistry(t)
	first := mustRegister(t, r, alice, testutil.Attrs("name", "Alice"))

	account, err := r.Delete(alice, nil)
	require.NoError(t, err)
	assert.Equal(t, alice, account)

	_, _, err = r.Query(alice, nil)
	assert.ErrorIs(t, err, ir.ErrNotFound)

	second := mustRegister(t, at(snap, 2), alice, testutil.Attrs("name", "Alice again"))
	assert.Greater(t, second.Seq, first.Seq, "sequence ids are never reused")
}

func TestDelete_Unauthorized(t *testing.T) {
	r, snap := newRegistry(t)
	mustRegister(t, r, alice, nil)

	_, err := r.Delete(bob, &alice)
	assert.ErrorIs(t, err, ir.ErrUnauthorized)
	assert.True(t, snap.Has(alice))
}

func TestResolveSubject_Ambiguous(t *testing.T) {
	r, snap := newRegistry(t)
	mustRegister(t, r, alice, nil)
	mustRegister(t, r, carol, nil)
	_, _, err := r.Transfer(alice, nil, bob)
	require.NoError(t, err)
	_, _, err = r.Transfer(carol, nil, bob)
	require.NoError(t, err)

	_, err = at(snap, 2).Delete(bob, nil)
	assert.ErrorIs(t, err, ir.ErrNotFound)

	_, err = at(snap, 2).Delete(bob, &carol)
	assert.NoError(t, err)
}

func TestResolveSubject_OwnKeyWins(t *testing.T) {
	r, _ := newRegistry(t)
	mustRegister(t, r, alice, nil)
	mustRegister(t, r, bob, testutil.Attrs("mine", "yes"))
	_, _, err := r.Transfer(alice, nil, bob)
	require.NoError(t, err)

	account, _, err := r.Update(bob, nil, testutil.Attrs("x", "y"))
	require.NoError(t, err)
	assert.Equal(t, bob, account)
}

func TestLimits(t *testing.T) {
	limits := Limits{
		MaxRecords:        1,
		MaxAttributes:     2,
		MaxAttributeName:  4,
		MaxAttributeValue: 8,
	}

	t.Run("max records", func(t *testing.T) {
		r, _ := newRegistry(t, WithLimits(limits))
		mustRegister(t, r, alice, nil)
		_, err := r.Register(bob, nil)
		assert.ErrorIs(t, err, ir.ErrLimitReached)
	})

	t.Run("too many attributes", func(t *testing.T) {
		r, _ := newRegistry(t, WithLimits(limits))
		_, err := r.Register(alice, testutil.Attrs("a", "1", "b", "2", "c", "3"))
		assert.ErrorIs(t, err, ir.ErrLimitReached)
	})

	t.Run("long name", func(t *testing.T) {
		r, _ := newRegistry(t, WithLimits(limits))
		_, err := r.Register(alice, testutil.Attrs("toolong", "1"))
		assert.ErrorIs(t, err, ir.ErrLimitReached)
	})

	t.Run("long value on update", func(t *testing.T) {
		r, snap := newRegistry(t, WithLimits(limits))
		mustRegister(t, r, alice, testutil.Attrs("a", "ok"))
		_, _, err := r.Update(alice, nil, testutil.Attrs("a", "way too long"))
		assert.ErrorIs(t, err, ir.ErrLimitReached)

		rec, _ := snap.Get(alice)
		assert.Equal(t, []byte("ok"), rec.Attributes["a"])
	})

	t.Run("zero means unlimited", func(t *testing.T) {
		r, _ := newRegistry(t, WithLimits(Limits{}))
		mustRegister(t, r, alice, testutil.Attrs("a-rather-long-attribute-name", "and a rather long value too"))
		mustRegister(t, r, bob, nil)
	})
}

// seqAt is a snapshot whose sequence counter starts at an arbitrary value.
type seqAt struct {
	*store.Snapshot
	next uint64
}

func (s *seqAt) NextSeq() uint64 {
	n := s.next
	s.next++
	return n
}

func (s *seqAt) PeekSeq() uint64 { return s.next }

func TestNextSeq_StaysWithinInt64(t *testing.T) {
	state := &seqAt{Snapshot: store.NewSnapshot(), next: math.MaxInt64}
	r := New(state, 1)

	rec, err := r.Register(alice, testutil.Attrs("name", "Alice"))
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxInt64), rec.Seq, "last signed id is still handed out")

	_, err = r.Register(bob, nil)
	assert.ErrorIs(t, err, ir.ErrLimitReached)
	assert.False(t, state.Has(bob))

	_, err = r.IssueClaim(bob, alice, []ir.Hash{nameHash}, 1)
	assert.ErrorIs(t, err, ir.ErrLimitReached)
	got, _ := state.Get(alice)
	assert.Empty(t, got.Claims)
	assert.Equal(t, uint64(math.MaxInt64)+1, state.PeekSeq(), "rejected calls consume nothing")
}
