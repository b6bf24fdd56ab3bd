package codec

import (
	"github.com/roach88/idreg/internal/ir"
)

// ActionKind is the wire tag of an action.
type ActionKind string

const (
	KindRegister       ActionKind = "register"
	KindUpdate         ActionKind = "update"
	KindDelete         ActionKind = "delete"
	KindTransfer       ActionKind = "transfer"
	KindQuery          ActionKind = "query"
	KindIssueClaim     ActionKind = "issue_claim"
	KindSetClaimStatus ActionKind = "set_claim_status"
	KindVerifyClaim    ActionKind = "verify_claim"
	KindCheckClaim     ActionKind = "check_claim"
)

// Mutates reports whether actions of this kind can change state.
func (k ActionKind) Mutates() bool {
	switch k {
	case KindQuery, KindCheckClaim:
		return false
	}
	return true
}

// Action is a decoded inbound action. The set of implementations is closed.
type Action interface {
	Kind() ActionKind
	payload() ir.Object
}

// Register creates a record for the caller.
type Register struct {
	Attributes ir.Attributes
}

// Update replaces the attributes of a record the caller owns.
type Update struct {
	Subject    *ir.AccountID
	Attributes ir.Attributes
}

// Delete removes a record the caller owns.
type Delete struct {
	Subject *ir.AccountID
}

// Transfer hands a record to a new owner.
type Transfer struct {
	Subject  *ir.AccountID
	NewOwner ir.AccountID
}

// Query reads a record. A nil Target means the caller.
type Query struct {
	Target *ir.AccountID
}

// IssueClaim attaches a claim issued by the caller to Subject's record.
type IssueClaim struct {
	Subject      ir.AccountID
	HashedInfo   []ir.Hash
	IssuanceDate int64
}

// SetClaimStatus marks a claim valid or invalid.
type SetClaimStatus struct {
	Subject ir.AccountID
	ClaimID uint64
	Valid   bool
}

// VerifyClaim records the caller as a verifier of a claim.
type VerifyClaim struct {
	Subject ir.AccountID
	ClaimID uint64
}

// CheckClaim asks whether Hash is part of a claim.
type CheckClaim struct {
	Subject ir.AccountID
	ClaimID uint64
	Hash    ir.Hash
}

func (Register) Kind() ActionKind       { return KindRegister }
func (Update) Kind() ActionKind         { return KindUpdate }
func (Delete) Kind() ActionKind         { return KindDelete }
func (Transfer) Kind() ActionKind       { return KindTransfer }
func (Query) Kind() ActionKind          { return KindQuery }
func (IssueClaim) Kind() ActionKind     { return KindIssueClaim }
func (SetClaimStatus) Kind() ActionKind { return KindSetClaimStatus }
func (VerifyClaim) Kind() ActionKind    { return KindVerifyClaim }
func (CheckClaim) Kind() ActionKind     { return KindCheckClaim }

func (a Register) payload() ir.Object {
	return ir.Object{"attributes": a.Attributes.Value()}
}

func (a Update) payload() ir.Object {
	obj := ir.Object{"attributes": a.Attributes.Value()}
	putAccount(obj, "subject", a.Subject)
	return obj
}

func (a Delete) payload() ir.Object {
	obj := ir.Object{}
	putAccount(obj, "subject", a.Subject)
	return obj
}

func (a Transfer) payload() ir.Object {
	obj := ir.Object{"new_owner": ir.String(a.NewOwner.String())}
	putAccount(obj, "subject", a.Subject)
	return obj
}

func (a Query) payload() ir.Object {
	obj := ir.Object{}
	putAccount(obj, "target", a.Target)
	return obj
}

func (a IssueClaim) payload() ir.Object {
	hashes := make(ir.List, len(a.HashedInfo))
	for i, h := range a.HashedInfo {
		hashes[i] = ir.String(h.String())
	}
	return ir.Object{
		"subject":       ir.String(a.Subject.String()),
		"hashed_info":   hashes,
		"issuance_date": ir.Int(a.IssuanceDate),
	}
}

func (a SetClaimStatus) payload() ir.Object {
	return ir.Object{
		"subject":  ir.String(a.Subject.String()),
		"claim_id": ir.Int(a.ClaimID),
		"valid":    ir.Bool(a.Valid),
	}
}

func (a VerifyClaim) payload() ir.Object {
	return ir.Object{
		"subject":  ir.String(a.Subject.String()),
		"claim_id": ir.Int(a.ClaimID),
	}
}

func (a CheckClaim) payload() ir.Object {
	return ir.Object{
		"subject":  ir.String(a.Subject.String()),
		"claim_id": ir.Int(a.ClaimID),
		"hash":     ir.String(a.Hash.String()),
	}
}

func putAccount(obj ir.Object, key string, id *ir.AccountID) {
	if id != nil {
		obj[key] = ir.String(id.String())
	}
}

// Encode renders a as a canonical inbound envelope.
func Encode(a Action) ([]byte, error) {
	return ir.MarshalCanonical(ir.Object{
		"version": ir.Int(ir.WireVersion),
		"action":  ir.String(a.Kind()),
		"payload": a.payload(),
	})
}
