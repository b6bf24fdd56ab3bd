package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/idreg/internal/codec"
	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/registry"
)

// Scenario is a sequence of invocations with expected replies and final
// state assertions.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// GasLimit meters every step. Zero disables metering.
	GasLimit uint64 `yaml:"gas_limit,omitempty"`

	// Limits replaces the default registry limits. Fields left out are
	// unlimited.
	Limits *registry.Limits `yaml:"limits,omitempty"`

	// Steps run in order, one invocation each.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one invocation.
type Step struct {
	// Caller names the invoking account.
	Caller string `yaml:"caller"`

	// Action and Payload build a versioned message.
	Action  string         `yaml:"action,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// Message is sent verbatim instead of building one from Action.
	Message string `yaml:"message,omitempty"`

	// Expect defaults to status ok.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the reply a step must produce.
type Expect struct {
	Status string       `yaml:"status"`
	Kind   ir.ErrorKind `yaml:"kind,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Action is used by trace_contains and trace_count.
	Action string `yaml:"action,omitempty"`

	// Status and Kind narrow trace_contains and trace_count matches.
	Status string       `yaml:"status,omitempty"`
	Kind   ir.ErrorKind `yaml:"kind,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Account names the record checked by final_state.
	Account string `yaml:"account,omitempty"`

	// Absent asserts the account has no record (final_state).
	Absent bool `yaml:"absent,omitempty"`

	// Expect holds record fields to match (final_state). Subset match over
	// owner, attributes, claims, seq, created_at and updated_at.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject typos like "assertion:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Caller == "" {
			return fmt.Errorf("steps[%d]: caller is required", i)
		}
		switch {
		case step.Action == "" && step.Message == "":
			return fmt.Errorf("steps[%d]: action or message is required", i)
		case step.Action != "" && step.Message != "":
			return fmt.Errorf("steps[%d]: action and message are mutually exclusive", i)
		case step.Message != "" && step.Payload != nil:
			return fmt.Errorf("steps[%d]: payload requires action", i)
		}
		if step.Expect != nil {
			switch step.Expect.Status {
			case codec.StatusOK:
				if step.Expect.Kind != "" {
					return fmt.Errorf("steps[%d].expect: kind requires status error", i)
				}
			case codec.StatusError:
			default:
				return fmt.Errorf("steps[%d].expect: status must be %q or %q", i, codec.StatusOK, codec.StatusError)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for final_state", index)
		}
		if a.Absent == (len(a.Expect) > 0) {
			return fmt.Errorf("assertions[%d]: final_state needs exactly one of expect or absent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
