package registry

import (
	"github.com/roach88/idreg/internal/codec"
	"github.com/roach88/idreg/internal/ir"
)

// Apply runs the operation matching action on behalf of caller and returns
// the reply value. The zero identifier may only read.
func (r *Registry) Apply(caller ir.AccountID, action codec.Action) (ir.Value, error) {
	if caller.IsZero() && action.Kind().Mutates() {
		return nil, ir.NewError(ir.KindUnauthorized, "the zero identifier cannot %s", action.Kind())
	}

	switch a := action.(type) {
	case codec.Register:
		rec, err := r.Register(caller, a.Attributes)
		if err != nil {
			return nil, err
		}
		return rec.Value(caller), nil

	case codec.Update:
		account, rec, err := r.Update(caller, a.Subject, a.Attributes)
		if err != nil {
			return nil, err
		}
		return rec.Value(account), nil

	case codec.Delete:
		account, err := r.Delete(caller, a.Subject)
		if err != nil {
			return nil, err
		}
		return ir.Object{
			"account": ir.String(account.String()),
			"deleted": ir.Bool(true),
		}, nil

	case codec.Transfer:
		account, rec, err := r.Transfer(caller, a.Subject, a.NewOwner)
		if err != nil {
			return nil, err
		}
		return rec.Value(account), nil

	case codec.Query:
		account, rec, err := r.Query(caller, a.Target)
		if err != nil {
			return nil, err
		}
		return rec.Value(account), nil

	case codec.IssueClaim:
		claim, err := r.IssueClaim(caller, a.Subject, a.HashedInfo, a.IssuanceDate)
		if err != nil {
			return nil, err
		}
		return claim.Value(), nil

	case codec.SetClaimStatus:
		claim, err := r.SetClaimStatus(caller, a.Subject, a.ClaimID, a.Valid)
		if err != nil {
			return nil, err
		}
		return claim.Value(), nil

	case codec.VerifyClaim:
		claim, err := r.VerifyClaim(caller, a.Subject, a.ClaimID)
		if err != nil {
			return nil, err
		}
		return claim.Value(), nil

	case codec.CheckClaim:
		ok, err := r.CheckClaim(a.Subject, a.ClaimID, a.Hash)
		if err != nil {
			return nil, err
		}
		return ir.Object{
			"claim_id": ir.Int(a.ClaimID),
			"contains": ir.Bool(ok),
		}, nil

	default:
		return nil, ir.NewError(ir.KindInternal, "unhandled action %T", action)
	}
}
