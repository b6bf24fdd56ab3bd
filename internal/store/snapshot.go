package store

import (
	"slices"

	"github.com/roach88/idreg/internal/ir"
)

// Snapshot is the in-memory copy of registry state used by one invocation.
//
// The snapshot owns its records: Get hands out deep copies and Put stores a
// deep copy, so callers never alias stored memory. Mutations are tracked so
// Commit writes only what changed. A dropped snapshot has no effect.
type Snapshot struct {
	records    map[ir.AccountID]ir.IdentityRecord
	nextSeq    uint64
	generation uint64
	latest     int64

	dirty     map[ir.AccountID]struct{}
	seqDirty  bool
	committed bool
}

// NewSnapshot returns an empty snapshot of a fresh registry.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		records: make(map[ir.AccountID]ir.IdentityRecord),
		nextSeq: 1,
		dirty:   make(map[ir.AccountID]struct{}),
	}
}

// Get returns a copy of the record stored for account.
func (s *Snapshot) Get(account ir.AccountID) (ir.IdentityRecord, bool) {
	rec, ok := s.records[account]
	if !ok {
		return ir.IdentityRecord{}, false
	}
	return rec.Clone(), true
}

// Has reports whether account has a record.
func (s *Snapshot) Has(account ir.AccountID) bool {
	_, ok := s.records[account]
	return ok
}

// Put stores a copy of rec for account.
func (s *Snapshot) Put(account ir.AccountID, rec ir.IdentityRecord) {
	s.records[account] = rec.Clone()
	s.dirty[account] = struct{}{}
	if rec.UpdatedAt > s.latest {
		s.latest = rec.UpdatedAt
	}
}

// Remove deletes the record for account. Removing an absent account is a no-op.
func (s *Snapshot) Remove(account ir.AccountID) {
	if _, ok := s.records[account]; !ok {
		return
	}
	delete(s.records, account)
	s.dirty[account] = struct{}{}
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// Accounts returns every account with a record, in bytewise order.
func (s *Snapshot) Accounts() []ir.AccountID {
	out := make([]ir.AccountID, 0, len(s.records))
	for a := range s.records {
		out = append(out, a)
	}
	slices.SortFunc(out, ir.AccountID.Compare)
	return out
}

// OwnedBy returns the accounts whose record is owned by owner, in bytewise order.
func (s *Snapshot) OwnedBy(owner ir.AccountID) []ir.AccountID {
	var out []ir.AccountID
	for a, rec := range s.records {
		if rec.Owner == owner {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, ir.AccountID.Compare)
	return out
}

// NextSeq returns the next global sequence id and advances the counter.
func (s *Snapshot) NextSeq() uint64 {
	n := s.nextSeq
	s.nextSeq++
	s.seqDirty = true
	return n
}

// PeekSeq returns the next sequence id without consuming it.
func (s *Snapshot) PeekSeq() uint64 {
	return s.nextSeq
}

// Generation is the commit counter the snapshot was loaded at.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// LatestTimestamp is the largest UpdatedAt of any record, used by the host
// to keep logical time non-decreasing across restarts.
func (s *Snapshot) LatestTimestamp() int64 {
	return s.latest
}

// Dirty reports whether the snapshot holds uncommitted changes.
func (s *Snapshot) Dirty() bool {
	return len(s.dirty) > 0 || s.seqDirty
}
