package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Take one rate snapshot, store it and evaluate alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Close() }()
			logger.SetOutput(cmd.ErrOrStderr())

			app, err := newApplication(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.alerts != nil {
				app.alerts.Prime(cmd.Context(), cfg.Strategy.BaseAsset)
			}
			report, collectErr := app.collector.CollectOnce(cmd.Context())
			if report == nil {
				return collectErr
			}
			logger.LogBusinessEvent("manual_collection", map[string]interface{}{
				"report_id":      report.ID,
				"recommendation": report.Comparison.Recommendation.Strategy,
				"stored":         collectErr == nil && app.repository != nil,
			})

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(report); err != nil {
				return err
			}
			if collectErr != nil {
				return fmt.Errorf("report generated but not stored: %w", collectErr)
			}
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the rate history schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Close() }()
			logger.SetOutput(cmd.ErrOrStderr())

			if !cfg.Database.Enabled {
				return errors.New("database is disabled (database.enabled=false)")
			}
			// newApplication runs EnsureSchema when the database is enabled.
			app, err := newApplication(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer app.Close()

			logger.WithComponent("migrate").Info("Rate history schema is up to date")
			return nil
		},
	}
}
