package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/idreg/internal/codec"
	"github.com/roach88/idreg/internal/ir"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <account>",
		Short: "Print the record stored for an account",
		Long: `Print the record stored for an account.

This is a query invocation sent by the account itself; it never commits.

Example:
  idreg query 64219fdf4de51189ba66c567d518c270cb06a5551aefbe7c5a7bb74a45a28262`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := ir.ParseAccountID(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid account", err)
			}
			message, err := encodeAction(codec.Query{Target: &account})
			if err != nil {
				return err
			}

			h, closeHost, err := openHost(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeHost()

			return printOutcome(rootOpts, cmd, h.Invoke(cmd.Context(), account, message))
		},
	}
}
