package main

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/nbrons/perp-prophet/internal/services"
)

func newAlertTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alert-test",
		Short: "Send a test alert to every configured Telegram chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Close() }()
			logger.SetOutput(cmd.ErrOrStderr())

			app, err := newApplication(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer app.Close()

			alerts := app.alerts
			if alerts == nil {
				alerts = services.NewAlertService(app.notifications, nil, nil, decimal.Zero, logger.Logger)
			}
			alert, err := alerts.SendTest(cmd.Context())
			if errors.Is(err, services.ErrNotificationsDisabled) {
				return errors.New("telegram is not configured: set TELEGRAM_BOT_TOKEN and telegram.alert_chat_ids")
			}
			if err != nil {
				return fmt.Errorf("failed to send test alert: %w", err)
			}
			logger.LogBusinessEvent("test_alert", map[string]interface{}{
				"chats": len(cfg.Telegram.AlertChatIDs),
			})
			fmt.Fprintf(cmd.OutOrStdout(), "Test alert delivered to %d chat(s) at %s\n",
				len(cfg.Telegram.AlertChatIDs), alert.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
			return nil
		},
	}
}
