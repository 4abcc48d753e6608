package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/martijn/vmorch/internal/core/service"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue an API token",
	Long: `Issue a signed bearer token for the REST and WebSocket API. The subject
identifies the client in request logs and rate limiting.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.AuthEnabled() {
			return errors.New("authentication is disabled: set jwt_secret_key to issue tokens")
		}
		if tokenTTL <= 0 {
			return errors.New("--ttl must be positive")
		}

		tokens := service.NewTokenService(cfg.JWTSecretKey, cfg.JWTAlgorithm)
		token, err := tokens.Issue(args[0], tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
