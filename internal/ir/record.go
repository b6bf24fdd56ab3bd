package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// Attributes maps attribute names to opaque byte values.
// Insertion order is irrelevant; encodings sort by name.
type Attributes map[string][]byte

// Clone returns a deep copy. A nil map clones to an empty map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = bytes.Clone(v)
	}
	return out
}

// Equal reports whether both maps hold the same names and byte values.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !bytes.Equal(v, w) {
			return false
		}
	}
	return true
}

// Value renders the attributes with base64 (std, padded) values.
func (a Attributes) Value() Object {
	obj := make(Object, len(a))
	for k, v := range a {
		obj[k] = String(base64.StdEncoding.EncodeToString(v))
	}
	return obj
}

// Hash is a 32-byte digest stored inside claims.
type Hash [32]byte

// ParseHash parses a 64 character hex digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimPrefix(s, "0x")
	if len(s) != len(h)*2 {
		return h, fmt.Errorf("hash must be %d hex characters, got %d", len(h)*2, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("hash: %w", err)
	}
	return h, nil
}

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Claim is a statement issued about a subject, kept inside the subject's record.
type Claim struct {
	ID           uint64
	Issuer       AccountID
	Subject      AccountID
	HashedInfo   []Hash // sorted, unique
	IssuanceDate int64
	Valid        bool
	Verifiers    []AccountID // sorted, unique
}

// NewHashSet sorts and deduplicates hashes.
func NewHashSet(hashes []Hash) []Hash {
	out := slices.Clone(hashes)
	slices.SortFunc(out, func(a, b Hash) int { return bytes.Compare(a[:], b[:]) })
	return slices.Compact(out)
}

// Clone returns a deep copy.
func (c Claim) Clone() Claim {
	c.HashedInfo = slices.Clone(c.HashedInfo)
	c.Verifiers = slices.Clone(c.Verifiers)
	return c
}

// Contains reports whether h is part of the claim's hashed info.
func (c Claim) Contains(h Hash) bool {
	_, found := slices.BinarySearchFunc(c.HashedInfo, h, func(a, b Hash) int {
		return bytes.Compare(a[:], b[:])
	})
	return found
}

// AddVerifier inserts v keeping the set sorted. Returns false if v already verified.
func (c *Claim) AddVerifier(v AccountID) bool {
	i, found := slices.BinarySearchFunc(c.Verifiers, v, AccountID.Compare)
	if found {
		return false
	}
	c.Verifiers = slices.Insert(c.Verifiers, i, v)
	return true
}

// Value renders the claim for canonical encoding.
func (c Claim) Value() Object {
	hashes := make(List, len(c.HashedInfo))
	for i, h := range c.HashedInfo {
		hashes[i] = String(h.String())
	}
	verifiers := make(List, len(c.Verifiers))
	for i, v := range c.Verifiers {
		verifiers[i] = String(v.String())
	}
	return Object{
		"id":            Int(c.ID),
		"issuer":        String(c.Issuer.String()),
		"subject":       String(c.Subject.String()),
		"hashed_info":   hashes,
		"issuance_date": Int(c.IssuanceDate),
		"valid":         Bool(c.Valid),
		"verifiers":     verifiers,
	}
}

// IdentityRecord is the per-account entry held by the registry.
// Owner never changes except through an explicit transfer.
type IdentityRecord struct {
	Owner      AccountID
	Attributes Attributes
	Claims     map[uint64]Claim
	Seq        uint64
	CreatedAt  int64
	UpdatedAt  int64
}

// Clone returns a deep copy sharing no memory with r.
func (r IdentityRecord) Clone() IdentityRecord {
	out := r
	out.Attributes = r.Attributes.Clone()
	out.Claims = make(map[uint64]Claim, len(r.Claims))
	for id, c := range r.Claims {
		out.Claims[id] = c.Clone()
	}
	return out
}

// ClaimIDs returns claim ids in ascending order.
func (r IdentityRecord) ClaimIDs() []uint64 {
	ids := make([]uint64, 0, len(r.Claims))
	for id := range r.Claims {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Value renders the record for canonical encoding. The account key is
// included so a reply is self-describing.
func (r IdentityRecord) Value(account AccountID) Object {
	claims := make(List, 0, len(r.Claims))
	for _, id := range r.ClaimIDs() {
		claims = append(claims, r.Claims[id].Value())
	}
	return Object{
		"account":    String(account.String()),
		"owner":      String(r.Owner.String()),
		"attributes": r.Attributes.Value(),
		"claims":     claims,
		"seq":        Int(r.Seq),
		"created_at": Int(r.CreatedAt),
		"updated_at": Int(r.UpdatedAt),
	}
}
