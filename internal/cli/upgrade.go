package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewUpgradeCommand creates the upgrade command.
func NewUpgradeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Migrate persisted state to the current layout",
		Long: `Migrate persisted state to the layout this build understands.

Upgrade is idempotent. Running it on current state changes nothing.
A failed upgrade leaves the state at its previous version.

Example:
  idreg upgrade --db registry.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeHost, err := openHost(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeHost()

			report, err := h.Upgrade(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "upgrade failed", err)
			}

			f := NewOutputFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if f.Format == "json" {
				return f.Success(report)
			}
			if report.From == report.To {
				return f.Success(fmt.Sprintf("state already at version %d", report.To))
			}
			return f.Success(fmt.Sprintf("upgraded state from version %d to %d (%d records migrated)", report.From, report.To, report.Migrated))
		},
	}
}
