package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/idreg/internal/codec"
	"github.com/roach88/idreg/internal/dispatch"
	"github.com/roach88/idreg/internal/host"
	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/metrics"
)

// maxLineSize bounds a single serve request line.
const maxLineSize = 4 << 20

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	MetricsAddr string
}

// serveRequest is one NDJSON input line.
type serveRequest struct {
	Caller  string          `json:"caller"`
	Message json.RawMessage `json:"message"`
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Process invocations from stdin until EOF",
		Long: `Read invocations from stdin, one JSON object per line, and write one
reply per line to stdout in the same order.

Each input line has the form:
  {"caller":"<64 hex chars>","message":{"version":1,"action":"query","payload":{}}}

A line that cannot be parsed gets a DecodeError reply. Invocations run one
at a time in arrival order. Interrupt or EOF stops the loop after queued
invocations finish.

Example:
  idreg serve --db registry.db < requests.ndjson
  idreg serve --metrics-addr :9090 --backend redis`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default $IDREG_METRICS_ADDR)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	metricsAddr := opts.Config.MetricsAddr
	if cmd.Flags().Changed("metrics-addr") {
		metricsAddr = opts.MetricsAddr
	}

	var (
		hostOpts []host.Option
		reg      *prometheus.Registry
	)
	if metricsAddr != "" {
		reg = prometheus.NewRegistry()
		hostOpts = append(hostOpts, host.WithMetrics(metrics.New(reg)))
	}

	h, closeHost, err := openHost(ctx, opts.RootOptions, hostOpts...)
	if err != nil {
		return err
	}
	defer closeHost()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return h.Run(runCtx)
	})

	if reg != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}

		g.Go(func() error {
			slog.Info("metrics listening", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.Config.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// The reader is not part of the group: a blocked stdin read cannot be
	// interrupted, and the loop must still exit on a signal.
	pending := make(chan (<-chan dispatch.Outcome), 64)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readRequests(gctx, cmd.InOrStdin(), h, pending)
	}()

	var served int
	g.Go(func() error {
		n, err := writeReplies(gctx, cmd.OutOrStdout(), pending)
		served = n
		return err
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "serve failed", err)
	}

	// pending was closed, so the reader has returned unless interrupted.
	if ctx.Err() == nil {
		if err := <-readErr; err != nil {
			return WrapExitError(ExitCommandError, "failed to read requests", err)
		}
	}

	slog.Info("serve stopped", "replies", served)
	return nil
}

// readRequests submits each input line to the host and forwards the outcome
// channels in input order. At EOF it closes pending and stops the host.
func readRequests(ctx context.Context, r io.Reader, h *host.Host, pending chan<- (<-chan dispatch.Outcome)) error {
	defer h.Stop()
	defer close(pending)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var done <-chan dispatch.Outcome
		caller, message, err := parseRequest(raw)
		if err != nil {
			slog.Debug("rejected request line", "line", line, "error", err)
			done = rejected(err)
		} else if done, err = h.Submit(caller, message); err != nil {
			return nil
		}

		select {
		case pending <- done:
		case <-ctx.Done():
			return nil
		}
	}
	return scanner.Err()
}

// writeReplies writes one reply line per outcome until pending is closed.
func writeReplies(ctx context.Context, w io.Writer, pending <-chan (<-chan dispatch.Outcome)) (int, error) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	n := 0
	for {
		var done <-chan dispatch.Outcome
		select {
		case ch, ok := <-pending:
			if !ok {
				return n, bw.Flush()
			}
			done = ch
		case <-ctx.Done():
			return n, ctx.Err()
		}

		select {
		case out := <-done:
			if _, err := bw.Write(out.Reply); err != nil {
				return n, err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return n, err
			}
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}

		// Flush whenever the backlog is empty.
		if len(pending) == 0 {
			if err := bw.Flush(); err != nil {
				return n, err
			}
		}
	}
}

func parseRequest(raw []byte) (ir.AccountID, []byte, error) {
	var req serveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ir.AccountID{}, nil, ir.NewError(ir.KindDecodeError, "request line: %v", err)
	}
	caller, err := ir.ParseAccountID(req.Caller)
	if err != nil {
		return ir.AccountID{}, nil, ir.NewError(ir.KindDecodeError, "request caller: %v", err)
	}
	if len(req.Message) == 0 {
		return ir.AccountID{}, nil, ir.NewError(ir.KindDecodeError, "request has no message")
	}
	return caller, req.Message, nil
}

// rejected returns a ready outcome carrying a decode error reply.
func rejected(err error) <-chan dispatch.Outcome {
	done := make(chan dispatch.Outcome, 1)
	done <- dispatch.Outcome{
		Trail:   []dispatch.State{dispatch.Received, dispatch.Aborted, dispatch.Replied},
		Reply:   codec.EncodeReply(codec.Failed("", err)),
		Kind:    ir.KindDecodeError,
		Records: -1,
	}
	return done
}
