package dispatch

//go:generate mockgen -source=dispatch.go -destination=mocks/mocks.go -package=mocks StateStore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/roach88/idreg/internal/codec"
	"github.com/roach88/idreg/internal/dispatch/mocks"
	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/metrics"
	"github.com/roach88/idreg/internal/store"
	"github.com/roach88/idreg/internal/testutil"
)

var (
	alice = testutil.Account("alice")
	bob   = testutil.Account("bob")
)

func encode(a codec.Action) []byte {
	raw, err := codec.Encode(a)
	if err != nil {
		panic(err)
	}
	return raw
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Dispatcher against a mocked StateStore
// =============================================================================

type DispatcherMockSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStateStore
	spans     *tracetest.SpanRecorder
	metrics   *metrics.Metrics
	d         *Dispatcher
}

func TestDispatcherMockSuite(t *testing.T) {
	suite.Run(t, new(DispatcherMockSuite))
}

func (s *DispatcherMockSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStateStore(s.ctrl)
	s.spans = tracetest.NewSpanRecorder()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.d = New(s.mockStore,
		WithLogger(discardLogger()),
		WithMetrics(s.metrics),
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.spans))),
	)
}

func (s *DispatcherMockSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DispatcherMockSuite) handle(caller ir.AccountID, payload []byte) Outcome {
	return s.d.Handle(context.Background(), Invocation{Caller: caller, Timestamp: 1, Payload: payload, Token: "tok"}, nil)
}

func (s *DispatcherMockSuite) TestDecodeErrorNeverLoads() {
	// No expectations: any Load or Commit fails the test.
	out := s.handle(alice, []byte(`{"version":1,"action":"explode","payload":{}}`))

	s.Equal([]State{Received, Aborted, Replied}, out.Trail)
	s.Equal(ir.KindDecodeError, out.Kind)
	s.False(out.Committed)
	s.Equal(-1, out.Records)

	reply, err := codec.DecodeReply(out.Reply)
	s.Require().NoError(err)
	s.ErrorIs(reply.Err(), ir.ErrDecode)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Invocations.WithLabelValues("unknown", "error")))
}

func (s *DispatcherMockSuite) TestRegistryFailureNeverCommits() {
	s.mockStore.EXPECT().Load(gomock.Any()).Return(store.NewSnapshot(), nil)
	s.mockStore.EXPECT().Commit(gomock.Any(), gomock.Any()).Times(0)

	out := s.handle(alice, encode(codec.Update{Attributes: testutil.Attrs("a", "b")}))

	s.Equal([]State{Received, Decoded, Aborted, Replied}, out.Trail)
	s.Equal(ir.KindNotFound, out.Kind)
	s.Equal(codec.KindUpdate, out.Action)
	s.False(out.Committed)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Aborts.WithLabelValues("NotFound")))
}

func (s *DispatcherMockSuite) TestSuccessCommits() {
	snap := store.NewSnapshot()
	s.mockStore.EXPECT().Load(gomock.Any()).Return(snap, nil)
	s.mockStore.EXPECT().Commit(gomock.Any(), snap).Return(nil)

	out := s.handle(alice, encode(codec.Register{Attributes: testutil.Attrs("name", "Alice")}))

	s.Equal([]State{Received, Decoded, Executed, Committed, Replied}, out.Trail)
	s.Equal(Replied, out.Final())
	s.Empty(out.Kind)
	s.True(out.Committed)
	s.Equal(1, out.Records)
	s.Equal("tok", out.Token)

	reply, err := codec.DecodeReply(out.Reply)
	s.Require().NoError(err)
	s.True(reply.OK())
	s.Equal(codec.KindRegister, reply.Action)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Commits))
}

func (s *DispatcherMockSuite) TestLoadFailureIsInternal() {
	s.mockStore.EXPECT().Load(gomock.Any()).Return(nil, errors.New("disk gone"))

	out := s.handle(alice, encode(codec.Query{}))

	s.Equal([]State{Received, Decoded, Aborted, Replied}, out.Trail)
	s.Equal(ir.KindInternal, out.Kind)
}

func (s *DispatcherMockSuite) TestCommitFailureIsInternal() {
	s.mockStore.EXPECT().Load(gomock.Any()).Return(store.NewSnapshot(), nil)
	s.mockStore.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(store.ErrStaleSnapshot)

	out := s.handle(alice, encode(codec.Register{Attributes: ir.Attributes{}}))

	s.Equal([]State{Received, Decoded, Executed, Aborted, Replied}, out.Trail)
	s.Equal(ir.KindInternal, out.Kind)
	s.False(out.Committed)

	reply, err := codec.DecodeReply(out.Reply)
	s.Require().NoError(err)
	s.Contains(reply.Error.Message, "commit state")
}

func (s *DispatcherMockSuite) TestSpans() {
	s.mockStore.EXPECT().Load(gomock.Any()).Return(store.NewSnapshot(), nil)

	s.handle(bob, encode(codec.Delete{}))

	ended := s.spans.Ended()
	s.Require().Len(ended, 1)
	s.Equal("dispatch.Handle", ended[0].Name())
	s.Equal(otelcodes.Error, ended[0].Status().Code)
	s.Equal("NotFound", ended[0].Status().Description)
}

// =============================================================================
// Dispatcher against a real backend
// =============================================================================

// dispatchSeq runs payloads in order against one memory backend.
func dispatchSeq(t *testing.T, b *store.MemoryBackend, steps ...Invocation) []Outcome {
	t.Helper()
	d := New(store.New(b), WithLogger(discardLogger()))
	out := make([]Outcome, len(steps))
	for i, inv := range steps {
		out[i] = d.Handle(context.Background(), inv, nil)
	}
	return out
}

func TestHandle_UnknownActionLeavesBackendUntouched(t *testing.T) {
	b := store.NewMemoryBackend()
	dispatchSeq(t, b, Invocation{Caller: alice, Timestamp: 1, Payload: encode(codec.Register{Attributes: testutil.Attrs("n", "v")})})
	before := b.Dump()

	out := dispatchSeq(t, b, Invocation{Caller: alice, Timestamp: 2, Payload: []byte(`{"version":1,"action":"rename","payload":{}}`)})

	if out[0].Kind != ir.KindDecodeError {
		t.Fatalf("kind = %q, want DecodeError", out[0].Kind)
	}
	if !equalDump(before, b.Dump()) {
		t.Fatal("backend changed after undecodable message")
	}
}

func TestHandle_ErrorsLeaveBackendUntouched(t *testing.T) {
	b := store.NewMemoryBackend()
	dispatchSeq(t, b,
		Invocation{Caller: alice, Timestamp: 1, Payload: encode(codec.Register{Attributes: testutil.Attrs("n", "v")})},
	)
	before := b.Dump()

	failing := []codec.Action{
		codec.Register{Attributes: testutil.Attrs("n", "again")},
		codec.Update{Subject: &alice, Attributes: ir.Attributes{}},
		codec.Transfer{Subject: &alice, NewOwner: bob},
		codec.Delete{Subject: &alice},
		codec.Query{Target: &bob},
		codec.VerifyClaim{Subject: alice, ClaimID: 42},
	}
	callers := []ir.AccountID{alice, bob, bob, bob, bob, bob}

	for i, a := range failing {
		out := dispatchSeq(t, b, Invocation{Caller: callers[i], Timestamp: int64(10 + i), Payload: encode(a)})
		if out[0].Committed || out[0].Kind == "" {
			t.Fatalf("%s: expected an aborted invocation, got %+v", a.Kind(), out[0])
		}
		if !equalDump(before, b.Dump()) {
			t.Fatalf("%s: backend changed after rejected invocation", a.Kind())
		}
	}
}

func TestHandle_QueryIsSideEffectFree(t *testing.T) {
	b := store.NewMemoryBackend()
	dispatchSeq(t, b, Invocation{Caller: alice, Timestamp: 1, Payload: encode(codec.Register{Attributes: testutil.Attrs("n", "v")})})
	before := b.Dump()

	outs := dispatchSeq(t, b,
		Invocation{Caller: bob, Timestamp: 2, Payload: encode(codec.Query{Target: &alice})},
		Invocation{Caller: bob, Timestamp: 3, Payload: encode(codec.Query{Target: &alice})},
	)
	if string(outs[0].Reply) != string(outs[1].Reply) {
		t.Fatalf("repeated query replies differ:\n%s\n%s", outs[0].Reply, outs[1].Reply)
	}
	if !equalDump(before, b.Dump()) {
		t.Fatal("query changed the backend")
	}
}

func equalDump(a, b map[string][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if string(b[k]) != string(v) {
			return false
		}
	}
	return true
}

func TestStateString(t *testing.T) {
	names := map[State]string{
		Received: "Received", Decoded: "Decoded", Executed: "Executed",
		Committed: "Committed", Aborted: "Aborted", Replied: "Replied",
		State(99): "Unknown", State(-1): "Unknown",
	}
	for s, want := range names {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
