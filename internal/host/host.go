// Package host runs the registry the way a message-driven runtime would:
// one invocation at a time, each stamped with a logical timestamp, each
// metered, each ending in exactly one reply.
//
// Thread-safety model:
//   - Invoke and Submit: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// Invocations never overlap: Run and Invoke share one lock, so the store
// sees a strict sequence of load/commit pairs.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/idreg/internal/codec"
	"github.com/roach88/idreg/internal/dispatch"
	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/metrics"
	"github.com/roach88/idreg/internal/registry"
	"github.com/roach88/idreg/internal/store"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("host stopped")

// Host owns a store and serializes invocations against it.
type Host struct {
	store    *store.Store
	clock    TimeSource
	tokens   TokenGenerator
	gasLimit uint64
	logger   *slog.Logger
	metrics  *metrics.Metrics

	limits        registry.Limits
	traceProvider trace.TracerProvider

	dispatcher *dispatch.Dispatcher
	queue      *requestQueue
	mu         sync.Mutex
}

// Option configures a Host.
type Option func(*Host)

// WithClock replaces the clock seeded from the store.
func WithClock(c TimeSource) Option {
	return func(h *Host) { h.clock = c }
}

// WithTokenGenerator sets the correlation token source.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(h *Host) { h.tokens = g }
}

// WithGasLimit sets the per-invocation gas budget. Zero disables metering.
func WithGasLimit(limit uint64) Option {
	return func(h *Host) { h.gasLimit = limit }
}

// WithLimits sets the registry limits.
func WithLimits(l registry.Limits) Option {
	return func(h *Host) { h.limits = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithMetrics records host and dispatcher metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// WithTracerProvider sets the tracer provider handed to the dispatcher.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Host) { h.traceProvider = tp }
}

// New creates a host over s.
//
// Unless WithClock is given, the clock resumes after the latest timestamp
// in the store. A store that still needs an upgrade starts the clock at
// zero; Upgrade advances it once the records are readable.
func New(ctx context.Context, s *store.Store, opts ...Option) (*Host, error) {
	h := &Host{
		store:  s,
		tokens: UUIDv7Generator{},
		limits: registry.DefaultLimits(),
		logger: slog.Default(),
		queue:  newRequestQueue(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.clock == nil {
		clock := NewClock()
		snap, err := s.Load(ctx)
		switch {
		case err == nil:
			clock.AdvanceTo(snap.LatestTimestamp())
		case errors.Is(err, store.ErrUpgradeRequired):
			h.logger.Warn("state needs an upgrade before invocations can succeed", "error", err)
		default:
			return nil, fmt.Errorf("seed clock: %w", err)
		}
		h.clock = clock
	}

	dopts := []dispatch.Option{
		dispatch.WithLimits(h.limits),
		dispatch.WithLogger(h.logger),
		dispatch.WithMetrics(h.metrics),
	}
	if h.traceProvider != nil {
		dopts = append(dopts, dispatch.WithTracerProvider(h.traceProvider))
	}
	h.dispatcher = dispatch.New(s, dopts...)

	return h, nil
}

// Store returns the underlying store.
func (h *Host) Store() *store.Store {
	return h.store
}

// Invoke runs one invocation synchronously and returns its outcome.
func (h *Host) Invoke(ctx context.Context, caller ir.AccountID, payload []byte) dispatch.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invoke(ctx, caller, payload)
}

// invoke stamps, meters and dispatches one invocation. Callers hold h.mu.
func (h *Host) invoke(ctx context.Context, caller ir.AccountID, payload []byte) (out dispatch.Outcome) {
	inv := dispatch.Invocation{
		Caller:    caller,
		Timestamp: h.clock.Next(),
		Payload:   payload,
		Token:     h.tokens.Generate(),
	}

	var meter registry.Meter
	var gas *GasMeter
	if h.gasLimit > 0 {
		gas = NewGasMeter(h.gasLimit, inv.Token)
		meter = gas
	}

	defer func() {
		if gas != nil {
			h.metrics.ObserveGas(gas.Used())
		}
		p := recover()
		if p == nil {
			return
		}
		oog, ok := p.(*OutOfGasError)
		if !ok {
			panic(p)
		}
		out = h.terminated(inv, oog)
	}()

	return h.dispatcher.Handle(ctx, inv, meter)
}

// terminated builds the outcome of an invocation the meter cut short.
// Commit never ran, so there is nothing to undo.
func (h *Host) terminated(inv dispatch.Invocation, oog *OutOfGasError) dispatch.Outcome {
	h.logger.Warn("invocation terminated",
		"caller", inv.Caller.Short(),
		"token", inv.Token,
		"used", oog.Used,
		"limit", oog.Limit,
	)
	h.metrics.IncrementAbort(string(ir.KindResourceExceeded))

	var kind codec.ActionKind
	if action, err := codec.Decode(inv.Payload); err == nil {
		kind = action.Kind()
	}
	err := ir.NewError(ir.KindResourceExceeded, "gas limit %d exceeded", oog.Limit)
	return dispatch.Outcome{
		Token:   inv.Token,
		Action:  kind,
		Trail:   []dispatch.State{dispatch.Received, dispatch.Aborted, dispatch.Replied},
		Reply:   codec.EncodeReply(codec.Failed(kind, err)),
		Kind:    ir.KindResourceExceeded,
		Records: -1,
	}
}

// Submit queues an invocation for the Run loop. The returned channel
// receives its outcome once processed.
func (h *Host) Submit(caller ir.AccountID, payload []byte) (<-chan dispatch.Outcome, error) {
	done := make(chan dispatch.Outcome, 1)
	if !h.queue.Enqueue(request{caller: caller, payload: payload, done: done}) {
		return nil, ErrStopped
	}
	return done, nil
}

// Run drains submitted invocations in FIFO order until ctx is cancelled or
// Stop is called. Requests queued before Stop are still processed.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (h *Host) Run(ctx context.Context) error {
	h.logger.Info("host starting")
	for {
		if req, ok := h.queue.TryDequeue(); ok {
			h.mu.Lock()
			out := h.invoke(ctx, req.caller, req.payload)
			h.mu.Unlock()
			req.done <- out
			continue
		}

		select {
		case <-ctx.Done():
			h.logger.Info("host stopping: context cancelled")
			h.queue.Close()
			return ctx.Err()

		case <-h.queue.Wait():
			if h.queue.Len() == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if h.queue.Closed() {
					h.logger.Info("host stopping: queue closed")
					return nil
				}
			}
		}
	}
}

// Stop stops accepting submissions. Run returns after draining the queue.
func (h *Host) Stop() {
	h.queue.Close()
}

// Upgrade runs the store's upgrade hook between invocations and moves the
// clock past any timestamp the upgraded records carry.
func (h *Host) Upgrade(ctx context.Context) (store.UpgradeReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report, err := h.store.Upgrade(ctx)
	if err != nil {
		return report, err
	}
	h.logger.Info("state upgraded", "from", report.From, "to", report.To, "migrated", report.Migrated)

	if c, ok := h.clock.(interface{ AdvanceTo(int64) }); ok {
		snap, err := h.store.Load(ctx)
		if err != nil {
			return report, fmt.Errorf("reseed clock: %w", err)
		}
		c.AdvanceTo(snap.LatestTimestamp())
	}
	return report, nil
}
