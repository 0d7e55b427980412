package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nbrons/perp-prophet/internal/config"
	"github.com/nbrons/perp-prophet/internal/middleware"
	"github.com/nbrons/perp-prophet/internal/telemetry"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		expiry  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin JWT signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.Security.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if expiry <= 0 {
				expiry = config.Duration(cfg.Security.JWTExpiry, 24*time.Hour)
			}

			auth := middleware.NewAuthMiddleware(cfg.Security.JWTSecret, telemetry.ServiceName)
			token, expiresAt, err := auth.GenerateToken(subject, middleware.RoleAdmin, expiry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "Token lifetime (defaults to security.jwt_expiry)")
	return cmd
}
