// Package commands implements the attendctl admin CLI.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qrattend/internal/app"
	"qrattend/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Administer the QR attendance service",
	Long: `attendctl manages the attendance store: it creates the schema,
issues bearer tokens for testing and operations, and exports records.
Configuration is read from the same environment as the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			return os.Setenv("CONFIG_PATH", configPath)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// withBackends loads configuration and opens the stores for fn.
func withBackends(ctx context.Context, fn func(config.App, *app.Backends) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	b, err := app.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer b.Close()
	return fn(cfg, b)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides CONFIG_PATH)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(subjectsCmd)
}
