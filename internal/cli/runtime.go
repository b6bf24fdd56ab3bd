package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/idreg/internal/config"
	"github.com/roach88/idreg/internal/host"
	"github.com/roach88/idreg/internal/policy"
	"github.com/roach88/idreg/internal/store"
)

// openStore opens the configured backend.
func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	var (
		backend store.Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		backend, err = store.OpenSQLite(cfg.DBPath)
	case config.BackendRedis:
		backend, err = store.OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case config.BackendMemory:
		backend = store.NewMemoryBackend()
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store.New(backend), nil
}

// loadPolicy returns the configured policy, or the defaults without one.
func loadPolicy(path string) (policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	return policy.Load(path)
}

// openHost opens the store, applies the policy and builds a host. The
// returned close function releases the backend.
func openHost(ctx context.Context, opts *RootOptions, extra ...host.Option) (*host.Host, func(), error) {
	pol, err := loadPolicy(opts.Config.PolicyPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load policy", err)
	}

	st, err := openStore(ctx, opts.Config)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open backend", err)
	}
	closeStore := func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing backend", "error", closeErr)
		}
	}

	hostOpts := append([]host.Option{
		host.WithLimits(pol.Limits),
		host.WithGasLimit(pol.GasLimit),
		host.WithLogger(slog.Default()),
	}, extra...)

	h, err := host.New(ctx, st, hostOpts...)
	if err != nil {
		closeStore()
		return nil, nil, WrapExitError(ExitCommandError, "failed to start host", err)
	}
	slog.Debug("host ready", "backend", opts.Config.Backend, "gas_limit", pol.GasLimit)
	return h, closeStore, nil
}
