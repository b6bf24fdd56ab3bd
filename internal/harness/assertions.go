package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/store"
	"github.com/roach88/idreg/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Step, event.Caller, event.Action, describe(event.Status, event.Kind))
		}
	}
	return buf.String()
}

// matches reports whether event satisfies the action, status and kind
// filters of an assertion. Empty filters match anything.
func matches(event TraceEvent, a Assertion) bool {
	if a.Action != "" && event.Action != a.Action {
		return false
	}
	if a.Status != "" && event.Status != a.Status {
		return false
	}
	return a.Kind == "" || event.Kind == a.Kind
}

func filterDesc(a Assertion) string {
	desc := a.Action
	if a.Status != "" {
		desc += " " + a.Status
	}
	if a.Kind != "" {
		desc += " " + string(a.Kind)
	}
	return desc
}

// assertTraceContains checks that some step matches the assertion.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matches(event, assertion) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: filterDesc(assertion),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that actions first appear in the given order.
// Actions don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Action]; !seen {
			positions[event.Action] = i + 1 // 1-indexed for readability
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev, curr := assertion.Actions[i-1], assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count steps match the assertion.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, assertion) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, filterDesc(assertion)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState loads the committed state and checks one record.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	snap, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	rec, ok := snap.Get(testutil.Account(assertion.Account))
	switch {
	case assertion.Absent && ok:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("no record for %s", assertion.Account),
			Actual:   fmt.Sprintf("record owned by %s", rec.Owner.Short()),
		}
	case assertion.Absent:
		return nil
	case !ok:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record for %s", assertion.Account),
			Actual:   "record not found",
		}
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, field := range keys {
		expected := assertion.Expect[field]
		actual, err := recordField(rec, field)
		if err != nil {
			return err
		}
		want, err := normalizeExpected(field, expected)
		if err != nil {
			return err
		}
		if actual != want {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %s", assertion.Account, field, want),
				Actual:   fmt.Sprintf("%s.%s = %s", assertion.Account, field, actual),
			}
		}
	}
	return nil
}

// recordField renders one record field as comparable text.
func recordField(rec ir.IdentityRecord, field string) (string, error) {
	switch field {
	case "owner":
		return rec.Owner.String(), nil
	case "attributes":
		return formatAttributes(rec.Attributes), nil
	case "claims":
		return fmt.Sprint(len(rec.Claims)), nil
	case "seq":
		return fmt.Sprint(rec.Seq), nil
	case "created_at":
		return fmt.Sprint(rec.CreatedAt), nil
	case "updated_at":
		return fmt.Sprint(rec.UpdatedAt), nil
	default:
		return "", fmt.Errorf("final_state: unknown record field %q", field)
	}
}

// normalizeExpected renders a YAML expectation the way recordField renders
// the record. Owners are caller names; attributes are plain strings.
func normalizeExpected(field string, v any) (string, error) {
	switch field {
	case "owner":
		name, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("final_state: owner must be a caller name, got %T", v)
		}
		return testutil.Account(name).String(), nil
	case "attributes":
		m, ok := v.(map[string]any)
		if !ok {
			return "", fmt.Errorf("final_state: attributes must be a map, got %T", v)
		}
		attrs := make(ir.Attributes, len(m))
		for name, value := range m {
			attrs[name] = []byte(fmt.Sprint(value))
		}
		return formatAttributes(attrs), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func formatAttributes(attrs ir.Attributes) string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%q", name, attrs[name])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// AssertionContext provides store access for final_state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a store", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
