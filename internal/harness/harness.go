package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/idreg/internal/codec"
	"github.com/roach88/idreg/internal/host"
	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/store"
	"github.com/roach88/idreg/internal/testutil"
)

// Harness executes one scenario against a fresh host.
type Harness struct {
	host   *host.Host
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory backend with deterministic
// time and tokens. A non-nil error means the scenario could not be executed
// at all; failed expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	st := store.New(store.NewMemoryBackend())
	defer st.Close()

	opts := []host.Option{
		host.WithClock(testutil.NewDeterministicClock()),
		host.WithTokenGenerator(testutil.NewFixedTokenGenerator(scenario.Name)),
		host.WithGasLimit(scenario.GasLimit),
		host.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if scenario.Limits != nil {
		opts = append(opts, host.WithLimits(*scenario.Limits))
	}
	hst, err := host.New(ctx, st, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	h := &Harness{
		host:   hst,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	result := NewResult()
	if result.Digest, err = st.Digest(ctx); err != nil {
		return nil, err
	}
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep sends one invocation and checks its reply.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	payload, err := buildMessage(step)
	if err != nil {
		return err
	}

	out := h.host.Invoke(ctx, testutil.Account(step.Caller), payload)

	reply, err := codec.DecodeReply(out.Reply)
	if err != nil {
		return fmt.Errorf("undecodable reply %s: %w", out.Reply, err)
	}
	digest, err := h.host.Store().Digest(ctx)
	if err != nil {
		return err
	}

	event := TraceEvent{
		Step:      i,
		Timestamp: int64(i + 1),
		Caller:    step.Caller,
		Action:    actionLabel(out.Action, step),
		Status:    reply.Status,
		Committed: out.Committed,
		Reply:     string(out.Reply),
		Digest:    digest,
	}
	if reply.Error != nil {
		event.Kind = reply.Error.Kind
	}

	if !reply.OK() && digest != result.Digest {
		result.AddError(fmt.Sprintf("step %d: %s replied %s but changed state", i, event.Action, event.Kind))
	}
	result.Digest = digest
	result.Trace = append(result.Trace, event)

	expect := Expect{Status: codec.StatusOK}
	if step.Expect != nil {
		expect = *step.Expect
	}
	if event.Status != expect.Status || (expect.Kind != "" && event.Kind != expect.Kind) {
		result.AddError(fmt.Sprintf("step %d (%s by %s): expected %s, got %s\n  reply: %s",
			i, event.Action, step.Caller, describe(expect.Status, expect.Kind), describe(event.Status, event.Kind), out.Reply))
	}

	h.logger.Info("step completed",
		"step", i,
		"caller", step.Caller,
		"action", event.Action,
		"status", event.Status,
		"committed", event.Committed,
	)
	return nil
}

func describe(status string, kind ir.ErrorKind) string {
	if kind == "" {
		return status
	}
	return status + " " + string(kind)
}

// actionLabel names a step in the trace. Undecodable messages fall back to
// the declared action, then to "message".
func actionLabel(decoded codec.ActionKind, step Step) string {
	switch {
	case decoded != "":
		return string(decoded)
	case step.Action != "":
		return step.Action
	default:
		return "message"
	}
}

// buildMessage returns the raw message for a step.
func buildMessage(step Step) ([]byte, error) {
	if step.Message != "" {
		return []byte(step.Message), nil
	}
	payload, err := convertArgsToObject(step.Payload)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return ir.MarshalCanonical(ir.Object{
		"version": ir.Int(ir.WireVersion),
		"action":  ir.String(step.Action),
		"payload": payload,
	})
}

// convertArgsToObject converts a YAML-parsed map to an ir.Object,
// resolving "@name" account references.
func convertArgsToObject(args map[string]any) (ir.Object, error) {
	result := make(ir.Object, len(args))
	for key, val := range args {
		v, err := convertToValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = v
	}
	return result, nil
}

// convertToValue converts a YAML-parsed value to an ir.Value.
// Nulls and non-integral numbers are rejected since canonical JSON has no
// representation for them.
func convertToValue(val any) (ir.Value, error) {
	if val == nil {
		return nil, fmt.Errorf("null values are not allowed in payloads")
	}

	switch v := val.(type) {
	case string:
		if name, ok := strings.CutPrefix(v, "@"); ok && name != "" {
			return ir.String(testutil.Account(name).String()), nil
		}
		return ir.String(v), nil
	case int:
		return ir.Int(int64(v)), nil
	case int64:
		return ir.Int(v), nil
	case uint64:
		return ir.Int(int64(v)), nil
	case float64:
		if v == float64(int64(v)) {
			return ir.Int(int64(v)), nil
		}
		return nil, fmt.Errorf("floats are not allowed in payloads: %v", v)
	case bool:
		return ir.Bool(v), nil
	case []any:
		list := make(ir.List, len(v))
		for i, elem := range v {
			item, err := convertToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			list[i] = item
		}
		return list, nil
	case map[string]any:
		return convertArgsToObject(v)
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
