package host

import "fmt"

// GasMeter meters one invocation against a gas budget.
//
// Charge panics with *OutOfGasError once the budget is exceeded. The host
// recovers the panic and replies ResourceExceeded; since the registry never
// commits, the invocation leaves no trace in the store.
type GasMeter struct {
	limit uint64 // zero means unlimited
	used  uint64
	token string
}

// NewGasMeter creates a meter with the given budget.
func NewGasMeter(limit uint64, token string) *GasMeter {
	return &GasMeter{limit: limit, token: token}
}

// Charge adds units to the meter.
func (m *GasMeter) Charge(units uint64) {
	m.used += units
	if m.limit > 0 && m.used > m.limit {
		panic(&OutOfGasError{Token: m.token, Used: m.used, Limit: m.limit})
	}
}

// Used returns the gas charged so far.
func (m *GasMeter) Used() uint64 {
	return m.used
}

// Limit returns the budget.
func (m *GasMeter) Limit() uint64 {
	return m.limit
}

// OutOfGasError terminates an invocation that exceeded its gas budget.
type OutOfGasError struct {
	Token string
	Used  uint64
	Limit uint64
}

func (e *OutOfGasError) Error() string {
	return fmt.Sprintf("invocation %s out of gas: used %d > limit %d", e.Token, e.Used, e.Limit)
}
