package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nbrons/perp-prophet/internal/config"
	"github.com/nbrons/perp-prophet/internal/logging"
	"github.com/nbrons/perp-prophet/internal/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = telemetry.ServiceVersion

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "perp-prophet",
		Short: "Delta-neutral yield advisor for Helix perpetuals and Neptune lending",
		Long: `perp-prophet compares two delta-neutral strategies built from the Helix
perpetual funding rate and the Neptune money market against plain lending,
records the rates over time and alerts on Telegram when the picture changes.

Examples:
  perp-prophet serve
  perp-prophet opportunities --margin 2.5
  perp-prophet token --subject ops`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before configuration")

	root.AddCommand(
		newServeCmd(),
		newOpportunitiesCmd(),
		newCollectCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newAlertTestCmd(),
	)
	return root
}

// loadEnvFile loads path into the environment. A missing default file is fine;
// a missing file named explicitly is an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logging.New(cfg.Logging, telemetry.ServiceName), nil
}
