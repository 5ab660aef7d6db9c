package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/internet-performance-optimizer/internal/auth"
)

func newCmdToken(a *app) *cobra.Command {
	var (
		subject string
		scope   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT for the report server",
		Long: `
Issue an HS256 token signed with IPO_JWT_SECRET. Clients send it as
"Authorization: Bearer <token>" or, for the websocket, as ?token=<token>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tm := auth.NewTokenManager("", a.cfg.HTTP.JWTSecret)
			token, expiresAt, err := tm.Issue(subject, scope, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token)
			a.logger.WithField("expires_at", expiresAt.Format(time.RFC3339)).Debug("Token issued")
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dashboard", "Token subject")
	cmd.Flags().StringVar(&scope, "scope", "read", "Token scope")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
