package harness

import "github.com/roach88/idreg/internal/ir"

// TraceEvent is one replied invocation.
type TraceEvent struct {
	Step      int          `json:"step"`
	Timestamp int64        `json:"timestamp"`
	Caller    string       `json:"caller"`
	Action    string       `json:"action"`
	Status    string       `json:"status"`
	Kind      ir.ErrorKind `json:"kind,omitempty"`
	Committed bool         `json:"committed"`
	Reply     string       `json:"reply"`
	// Digest is the state digest after the step.
	Digest string `json:"-"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Digest is the final state digest.
	Digest string `json:"digest"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
