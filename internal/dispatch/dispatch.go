// Package dispatch runs one invocation from raw bytes to reply bytes.
//
// Each invocation moves through Received, Decoded, Executed, then Committed
// or Aborted, and always ends in Replied. Commit is the only irreversible
// step and it runs only after the registry reports success.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/idreg/internal/codec"
	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/metrics"
	"github.com/roach88/idreg/internal/registry"
	"github.com/roach88/idreg/internal/store"
)

const tracerName = "github.com/roach88/idreg/internal/dispatch"

// StateStore loads and commits snapshots. *store.Store implements it.
type StateStore interface {
	Load(ctx context.Context) (*store.Snapshot, error)
	Commit(ctx context.Context, snap *store.Snapshot) error
}

// Invocation is one inbound message with its host context.
type Invocation struct {
	Caller    ir.AccountID
	Timestamp int64
	Payload   []byte
	// Token correlates the invocation in logs and traces. Optional.
	Token string
}

// Outcome describes how an invocation ended.
type Outcome struct {
	Token     string
	Action    codec.ActionKind
	Trail     []State
	Reply     []byte
	Committed bool
	// Kind is empty when the invocation succeeded.
	Kind ir.ErrorKind
	// Records is the record count after commit, or -1 if nothing was committed.
	Records  int
	Duration time.Duration
}

// Final returns the last state reached.
func (o Outcome) Final() State {
	if len(o.Trail) == 0 {
		return Received
	}
	return o.Trail[len(o.Trail)-1]
}

// Dispatcher executes invocations against a StateStore.
// It holds no per-invocation state and is not safe for concurrent use of
// the same store; the host serializes calls.
type Dispatcher struct {
	store   StateStore
	limits  registry.Limits
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLimits sets the registry limits.
func WithLimits(l registry.Limits) Option {
	return func(d *Dispatcher) { d.limits = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics records invocation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) { d.tracer = tp.Tracer(tracerName) }
}

// New creates a dispatcher over s.
func New(s StateStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  s,
		limits: registry.DefaultLimits(),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run carries one invocation through its states.
type run struct {
	d     *Dispatcher
	inv   Invocation
	start time.Time
	span  trace.Span
	log   *slog.Logger
	out   Outcome
}

func (r *run) enter(s State) {
	r.out.Trail = append(r.out.Trail, s)
	r.log.Debug("invocation state", "state", s.String())
}

// Handle runs inv to completion and returns its outcome. meter may be nil.
//
// Handle never returns without a reply, except when meter terminates the
// invocation by panicking; the panic propagates to the host before Commit
// can run.
func (d *Dispatcher) Handle(ctx context.Context, inv Invocation, meter registry.Meter) Outcome {
	ctx, span := d.tracer.Start(ctx, "dispatch.Handle", trace.WithAttributes(
		attribute.String("idreg.caller", inv.Caller.String()),
		attribute.String("idreg.token", inv.Token),
		attribute.Int64("idreg.timestamp", inv.Timestamp),
	))
	defer span.End()

	r := &run{
		d:     d,
		inv:   inv,
		start: time.Now(),
		span:  span,
		log:   d.logger.With("caller", inv.Caller.Short(), "token", inv.Token),
		out:   Outcome{Token: inv.Token, Records: -1},
	}
	r.enter(Received)

	action, err := codec.Decode(inv.Payload)
	if err != nil {
		return r.abort(err)
	}
	r.out.Action = action.Kind()
	span.SetAttributes(attribute.String("idreg.action", string(action.Kind())))
	r.log = r.log.With("action", string(action.Kind()))
	r.enter(Decoded)

	snap, err := d.store.Load(ctx)
	if err != nil {
		return r.abort(ir.NewError(ir.KindInternal, "load state: %v", err))
	}

	reg := registry.New(snap, inv.Timestamp, registry.WithLimits(d.limits), registry.WithMeter(meter))
	value, err := reg.Apply(inv.Caller, action)
	if err != nil {
		return r.abort(err)
	}
	r.enter(Executed)

	if err := d.store.Commit(ctx, snap); err != nil {
		return r.abort(ir.NewError(ir.KindInternal, "commit state: %v", err))
	}
	r.out.Committed = true
	r.out.Records = snap.Len()
	r.enter(Committed)
	if action.Kind().Mutates() {
		r.log.Info("invocation committed", "records", snap.Len())
	}
	d.metrics.IncrementCommit(snap.Len())

	return r.reply(codec.OK(action.Kind(), value))
}

func (r *run) abort(err error) Outcome {
	kind := ir.KindOf(err)
	r.out.Kind = kind
	r.enter(Aborted)
	r.log.Warn("invocation aborted", "kind", string(kind), "error", err)
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, string(kind))
	r.d.metrics.IncrementAbort(string(kind))
	return r.reply(codec.Failed(r.out.Action, err))
}

func (r *run) reply(result codec.Result) Outcome {
	r.out.Reply = codec.EncodeReply(result)
	r.enter(Replied)
	r.out.Duration = time.Since(r.start)

	status := codec.StatusOK
	if result.Err != nil {
		status = codec.StatusError
	}
	action := string(r.out.Action)
	if action == "" {
		action = "unknown"
	}
	r.d.metrics.ObserveInvocation(action, status, r.out.Duration)
	return r.out
}
