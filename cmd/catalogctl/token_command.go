package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sitecatalog/internal/web/middleware"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		userID int64
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := ctx.config.Security.JWTSecret
			if len(secret) < 32 {
				return errors.New("JWT_SECRET must be set and at least 32 bytes")
			}
			tok, err := middleware.IssueToken([]byte(secret), userID, role, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "User ID claim")
	cmd.Flags().StringVar(&role, "role", "", "Role claim (admin grants access to every site)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
