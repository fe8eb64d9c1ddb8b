package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orthodesk/orthodesk/internal/config"
	"github.com/orthodesk/orthodesk/services"
)

var (
	tokenTenantID string
	tokenEmail    string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue an access token for a user",
	Long: `Sign an access token with JWT_SECRET, for support and local testing.

The token is only accepted if the user exists, is active and belongs to --tenant.

Examples:
  orthoctl token 6f1c... --tenant 2b7e...
  orthoctl token 6f1c... --tenant 2b7e... --ttl 15m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.App.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required")
		}
		if tokenTenantID == "" {
			return fmt.Errorf("--tenant is required")
		}

		ttl := tokenTTL
		if ttl == 0 {
			ttl = config.App.JWTTTL
		}
		token, claims, err := services.NewJWTService(config.App.JWTSecret, ttl, nil).IssueToken(args[0], tokenTenantID, tokenEmail)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"user_id":    args[0],
			"tenant_id":  tokenTenantID,
			"jti":        claims.ID,
			"expires_at": claims.ExpiresAt.Time.Format(time.RFC3339),
		}).Info("Issued access token")
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenTenantID, "tenant", "", "Tenant ID of the user")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email claim (informational)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: JWT_TTL)")
}
