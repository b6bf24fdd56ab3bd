package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/idreg/internal/codec"
	"github.com/roach88/idreg/internal/dispatch"
	"github.com/roach88/idreg/internal/ir"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Caller string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <message|->",
		Short: "Run one invocation and print its reply",
		Long: `Run one invocation against the configured state and print the reply.

The message is a versioned JSON envelope. Use "-" to read it from stdin.

Exit codes:
  0 - The reply has status ok
  1 - The reply has status error
  2 - Command error (bad caller, unreachable backend, etc.)

Example:
  idreg invoke --caller 64219fdf...8262 '{"version":1,"action":"register","payload":{"attributes":{"name":"QWxpY2U="}}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeMessage(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Caller, "caller", "", "hex account id of the caller (required)")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

func invokeMessage(opts *InvokeOptions, arg string, cmd *cobra.Command) error {
	caller, err := ir.ParseAccountID(opts.Caller)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --caller", err)
	}

	message := []byte(arg)
	if arg == "-" {
		if message, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return WrapExitError(ExitCommandError, "failed to read message from stdin", err)
		}
		message = []byte(strings.TrimSpace(string(message)))
	}

	h, closeHost, err := openHost(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeHost()

	out := h.Invoke(cmd.Context(), caller, message)
	return printOutcome(opts.RootOptions, cmd, out)
}

// printOutcome writes the reply and maps an error reply to ExitFailure.
func printOutcome(opts *RootOptions, cmd *cobra.Command, out dispatch.Outcome) error {
	f := NewOutputFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	f.VerboseLog("token=%s action=%s committed=%t duration=%s", out.Token, out.Action, out.Committed, out.Duration)

	if err := f.Reply(out.Reply, out.Kind); err != nil {
		return WrapExitError(ExitCommandError, "failed to write reply", err)
	}
	if out.Kind != "" {
		return NewExitError(ExitFailure, fmt.Sprintf("invocation failed: %s", out.Kind))
	}
	return nil
}

// encodeAction builds a message for commands that construct actions from flags.
func encodeAction(a codec.Action) ([]byte, error) {
	raw, err := codec.Encode(a)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to encode message", err)
	}
	return raw, nil
}
