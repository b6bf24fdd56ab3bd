package registry

import (
	"math"

	"github.com/roach88/idreg/internal/ir"
)

// State is the snapshot surface the registry operates on.
// *store.Snapshot implements it.
type State interface {
	Get(account ir.AccountID) (ir.IdentityRecord, bool)
	Has(account ir.AccountID) bool
	Put(account ir.AccountID, rec ir.IdentityRecord)
	Remove(account ir.AccountID)
	Len() int
	OwnedBy(owner ir.AccountID) []ir.AccountID
	NextSeq() uint64
	PeekSeq() uint64
}

// Registry executes operations against one snapshot at one logical time.
type Registry struct {
	state  State
	now    int64
	limits Limits
	meter  Meter
}

// Option configures a Registry.
type Option func(*Registry)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(r *Registry) { r.limits = l }
}

// WithMeter charges gas to m. Without it, work is not metered.
func WithMeter(m Meter) Option {
	return func(r *Registry) {
		if m != nil {
			r.meter = m
		}
	}
}

// New creates a registry over state. now is the invocation's logical time.
func New(state State, now int64, opts ...Option) *Registry {
	r := &Registry{
		state:  state,
		now:    now,
		limits: DefaultLimits(),
		meter:  noMeter{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a record owned by caller under caller's own key.
func (r *Registry) Register(caller ir.AccountID, attrs ir.Attributes) (ir.IdentityRecord, error) {
	r.charge(GasPerAction + attributeBytes(attrs)*GasPerByte)

	if r.state.Has(caller) {
		return ir.IdentityRecord{}, ir.NewAccountError(ir.KindAlreadyExists, caller, "account already registered")
	}
	if r.limits.MaxRecords > 0 && r.state.Len() >= r.limits.MaxRecords {
		return ir.IdentityRecord{}, ir.NewError(ir.KindLimitReached, "registry holds the maximum of %d records", r.limits.MaxRecords)
	}
	if err := r.checkAttributes(attrs); err != nil {
		return ir.IdentityRecord{}, err
	}
	seq, err := r.nextSeq()
	if err != nil {
		return ir.IdentityRecord{}, err
	}

	rec := ir.IdentityRecord{
		Owner:      caller,
		Attributes: attrs.Clone(),
		Claims:     map[uint64]ir.Claim{},
		Seq:        seq,
		CreatedAt:  r.now,
		UpdatedAt:  r.now,
	}
	r.state.Put(caller, rec)
	return rec, nil
}

// nextSeq consumes a sequence id. Ids stay within the signed range that
// replies encode.
func (r *Registry) nextSeq() (uint64, error) {
	if r.state.PeekSeq() > math.MaxInt64 {
		return 0, ir.NewError(ir.KindLimitReached, "sequence ids exhausted")
	}
	return r.state.NextSeq(), nil
}

// Update replaces the attributes of the subject record wholesale.
func (r *Registry) Update(caller ir.AccountID, subject *ir.AccountID, attrs ir.Attributes) (ir.AccountID, ir.IdentityRecord, error) {
	r.charge(GasPerAction + attributeBytes(attrs)*GasPerByte)

	account, rec, err := r.resolveSubject(caller, subject)
	if err != nil {
		return ir.AccountID{}, ir.IdentityRecord{}, err
	}
	if err := authorize(caller, account, rec); err != nil {
		return ir.AccountID{}, ir.IdentityRecord{}, err
	}
	if err := r.checkAttributes(attrs); err != nil {
		return ir.AccountID{}, ir.IdentityRecord{}, err
	}

	rec.Attributes = attrs.Clone()
	r.touch(&rec)
	r.state.Put(account, rec)
	return account, rec, nil
}

// Delete removes the subject record. The account can register again.
func (r *Registry) Delete(caller ir.AccountID, subject *ir.AccountID) (ir.AccountID, error) {
	r.charge(GasPerAction)

	account, rec, err := r.resolveSubject(caller, subject)
	if err != nil {
		return ir.AccountID{}, err
	}
	if err := authorize(caller, account, rec); err != nil {
		return ir.AccountID{}, err
	}

	r.state.Remove(account)
	return account, nil
}

// Transfer hands the subject record to newOwner. The record stays under
// its account key; attributes and claims are preserved.
func (r *Registry) Transfer(caller ir.AccountID, subject *ir.AccountID, newOwner ir.AccountID) (ir.AccountID, ir.IdentityRecord, error) {
	r.charge(GasPerAction)

	account, rec, err := r.resolveSubject(caller, subject)
	if err != nil {
		return ir.AccountID{}, ir.IdentityRecord{}, err
	}
	if err := authorize(caller, account, rec); err != nil {
		return ir.AccountID{}, ir.IdentityRecord{}, err
	}
	if newOwner.IsZero() {
		return ir.AccountID{}, ir.IdentityRecord{}, ir.NewAccountError(ir.KindInvalidTarget, account, "cannot transfer to the zero identifier")
	}
	if newOwner == rec.Owner {
		return ir.AccountID{}, ir.IdentityRecord{}, ir.NewAccountError(ir.KindInvalidTarget, account, "new owner already owns the record")
	}

	rec.Owner = newOwner
	r.touch(&rec)
	r.state.Put(account, rec)
	return account, rec, nil
}

// Query returns a copy of the target record. A nil target means the caller.
func (r *Registry) Query(caller ir.AccountID, target *ir.AccountID) (ir.AccountID, ir.IdentityRecord, error) {
	r.charge(GasPerAction)

	account := caller
	if target != nil {
		account = *target
	}
	rec, ok := r.state.Get(account)
	if !ok {
		return ir.AccountID{}, ir.IdentityRecord{}, ir.NewAccountError(ir.KindNotFound, account, "no record")
	}
	return account, rec, nil
}

// resolveSubject picks the record a mutation applies to: the explicit
// subject, else the caller's own key, else the single record the caller
// owns.
func (r *Registry) resolveSubject(caller ir.AccountID, subject *ir.AccountID) (ir.AccountID, ir.IdentityRecord, error) {
	if subject != nil {
		rec, ok := r.state.Get(*subject)
		if !ok {
			return ir.AccountID{}, ir.IdentityRecord{}, ir.NewAccountError(ir.KindNotFound, *subject, "no record")
		}
		return *subject, rec, nil
	}

	if rec, ok := r.state.Get(caller); ok {
		return caller, rec, nil
	}

	r.charge(uint64(r.state.Len()) * GasPerRecord)
	owned := r.state.OwnedBy(caller)
	switch len(owned) {
	case 0:
		return ir.AccountID{}, ir.IdentityRecord{}, ir.NewAccountError(ir.KindNotFound, caller, "no record")
	case 1:
		rec, _ := r.state.Get(owned[0])
		return owned[0], rec, nil
	default:
		return ir.AccountID{}, ir.IdentityRecord{}, ir.NewAccountError(ir.KindNotFound, caller,
			"caller owns %d records and has none of its own; name the subject", len(owned))
	}
}

// authorize is the single ownership guard.
func authorize(caller, account ir.AccountID, rec ir.IdentityRecord) error {
	if rec.Owner != caller {
		return ir.NewAccountError(ir.KindUnauthorized, account, "caller %s does not own the record", caller.Short())
	}
	return nil
}

func (r *Registry) checkAttributes(attrs ir.Attributes) error {
	if exceeds(len(attrs), r.limits.MaxAttributes) {
		return ir.NewError(ir.KindLimitReached, "%d attributes exceed the limit of %d", len(attrs), r.limits.MaxAttributes)
	}
	for name, value := range attrs {
		if exceeds(len(name), r.limits.MaxAttributeName) {
			return ir.NewError(ir.KindLimitReached, "attribute name %q exceeds %d bytes", truncate(name, 32), r.limits.MaxAttributeName)
		}
		if exceeds(len(value), r.limits.MaxAttributeValue) {
			return ir.NewError(ir.KindLimitReached, "attribute %q value of %d bytes exceeds %d", truncate(name, 32), len(value), r.limits.MaxAttributeValue)
		}
	}
	return nil
}

// touch bumps UpdatedAt without ever moving it backwards.
func (r *Registry) touch(rec *ir.IdentityRecord) {
	rec.UpdatedAt = max(rec.UpdatedAt, r.now)
}

func (r *Registry) charge(units uint64) {
	r.meter.Charge(units)
}

func attributeBytes(attrs ir.Attributes) uint64 {
	var n uint64
	for name, value := range attrs {
		n += uint64(len(name) + len(value))
	}
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
