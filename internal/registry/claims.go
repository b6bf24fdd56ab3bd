package registry

import (
	"github.com/roach88/idreg/internal/ir"
)

// IssueClaim attaches a new claim issued by caller to subject's record.
// The claim id comes from the same sequence as record ids.
func (r *Registry) IssueClaim(caller, subject ir.AccountID, hashes []ir.Hash, date int64) (ir.Claim, error) {
	r.charge(GasPerAction + uint64(len(hashes))*GasPerHash)

	rec, ok := r.state.Get(subject)
	if !ok {
		return ir.Claim{}, ir.NewAccountError(ir.KindNotFound, subject, "no record")
	}
	if exceeds(len(hashes), r.limits.MaxHashes) {
		return ir.Claim{}, ir.NewError(ir.KindLimitReached, "%d hashes exceed the limit of %d", len(hashes), r.limits.MaxHashes)
	}
	if r.limits.MaxClaims > 0 && len(rec.Claims) >= r.limits.MaxClaims {
		return ir.Claim{}, ir.NewAccountError(ir.KindLimitReached, subject, "record holds the maximum of %d claims", r.limits.MaxClaims)
	}
	id, err := r.nextSeq()
	if err != nil {
		return ir.Claim{}, err
	}

	claim := ir.Claim{
		ID:           id,
		Issuer:       caller,
		Subject:      subject,
		HashedInfo:   ir.NewHashSet(hashes),
		IssuanceDate: date,
		Valid:        true,
	}
	if rec.Claims == nil {
		rec.Claims = map[uint64]ir.Claim{}
	}
	rec.Claims[claim.ID] = claim
	r.touch(&rec)
	r.state.Put(subject, rec)
	return claim, nil
}

// SetClaimStatus marks a claim valid or invalid. Only the claim's issuer or
// the record's owner may do so.
func (r *Registry) SetClaimStatus(caller, subject ir.AccountID, id uint64, valid bool) (ir.Claim, error) {
	r.charge(GasPerAction)

	rec, claim, err := r.lookupClaim(subject, id)
	if err != nil {
		return ir.Claim{}, err
	}
	if claim.Issuer != caller {
		if err := authorize(caller, subject, rec); err != nil {
			return ir.Claim{}, err
		}
	}
	if claim.Valid == valid {
		return claim, nil
	}

	claim.Valid = valid
	rec.Claims[id] = claim
	r.touch(&rec)
	r.state.Put(subject, rec)
	return claim, nil
}

// VerifyClaim adds caller to the claim's verifiers. The issuer, the claim's
// subject and the record's owner cannot verify. Verifying twice is a no-op.
func (r *Registry) VerifyClaim(caller, subject ir.AccountID, id uint64) (ir.Claim, error) {
	r.charge(GasPerAction)

	rec, claim, err := r.lookupClaim(subject, id)
	if err != nil {
		return ir.Claim{}, err
	}
	if caller == claim.Issuer || caller == claim.Subject || caller == rec.Owner {
		return ir.Claim{}, ir.NewAccountError(ir.KindUnauthorized, subject, "issuer and subject cannot verify their own claim")
	}
	if !claim.AddVerifier(caller) {
		return claim, nil
	}

	rec.Claims[id] = claim
	r.touch(&rec)
	r.state.Put(subject, rec)
	return claim, nil
}

// CheckClaim reports whether hash is part of the claim. Read-only.
func (r *Registry) CheckClaim(subject ir.AccountID, id uint64, hash ir.Hash) (bool, error) {
	r.charge(GasPerAction)

	_, claim, err := r.lookupClaim(subject, id)
	if err != nil {
		return false, err
	}
	return claim.Contains(hash), nil
}

func (r *Registry) lookupClaim(subject ir.AccountID, id uint64) (ir.IdentityRecord, ir.Claim, error) {
	rec, ok := r.state.Get(subject)
	if !ok {
		return ir.IdentityRecord{}, ir.Claim{}, ir.NewAccountError(ir.KindNotFound, subject, "no record")
	}
	claim, ok := rec.Claims[id]
	if !ok {
		return ir.IdentityRecord{}, ir.Claim{}, ir.NewAccountError(ir.KindNotFound, subject, "no claim %d", id)
	}
	return rec, claim, nil
}
