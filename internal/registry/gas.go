package registry

// Gas costs charged to the Meter.
const (
	GasPerAction = 1_000
	GasPerByte   = 1
	GasPerRecord = 10
	GasPerHash   = 32
)

// Meter accounts for work done during one invocation.
//
// Charge must not return when the budget is exhausted: the host terminates
// the invocation abruptly (by panicking) so no partial result escapes.
type Meter interface {
	Charge(units uint64)
}

type noMeter struct{}

func (noMeter) Charge(uint64) {}
