package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/store"
)

// DumpOutput is the JSON shape of a dump.
type DumpOutput struct {
	Records    []json.RawMessage `json:"records"`
	Generation uint64            `json:"generation"`
	Digest     string            `json:"digest"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print every record and the state digest",
		Long: `Print every stored record as canonical JSON, in account order, followed
by the digest of the whole keyspace.

Two stores with the same digest hold byte-for-byte identical state.

Example:
  idreg dump --db registry.db
  idreg dump --format json --backend redis`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(rootOpts, cmd)
		},
	}
}

func runDump(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open backend", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing backend", "error", closeErr)
		}
	}()

	snap, err := st.Load(ctx)
	if errors.Is(err, store.ErrUpgradeRequired) {
		return WrapExitError(ExitCommandError, "state predates this version, run 'idreg upgrade' first", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load state", err)
	}

	out := DumpOutput{Records: make([]json.RawMessage, 0, snap.Len()), Generation: snap.Generation()}
	for _, account := range snap.Accounts() {
		rec, _ := snap.Get(account)
		data, err := ir.MarshalCanonical(rec.Value(account))
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode record", err)
		}
		out.Records = append(out.Records, data)
	}
	if out.Digest, err = st.Digest(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to compute digest", err)
	}

	f := NewOutputFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if f.Format == "json" {
		return f.Success(out)
	}
	for _, rec := range out.Records {
		fmt.Fprintln(f.Writer, string(rec))
	}
	fmt.Fprintf(f.Writer, "records: %d\ngeneration: %d\ndigest: %s\n", len(out.Records), out.Generation, out.Digest)
	return nil
}
