package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"qrattend/internal/app"
	"qrattend/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the sessions and records schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackends(cmd.Context(), func(cfg config.App, b *app.Backends) error {
			if err := b.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.StoreBackend)
			return nil
		})
	},
}
