package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/internal/adapter/outbound/settings"
	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/service"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage per-user access tokens",
	Long: `Issue or revoke per-user access tokens.

Each user holds at most one active token; issuing a new one immediately
invalidates the previous token.`,
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <username>",
	Short: "Issue a new access token for a user",
	Long: `Issue a new access token for the named user.

The token is printed once and cannot be recovered later; issuing again
replaces it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := tokenServiceFromConfig()
		if err != nil {
			return err
		}
		token, err := tokens.Issue(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <username>",
	Short: "Revoke a user's access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := tokenServiceFromConfig()
		if err != nil {
			return err
		}
		if err := tokens.Revoke(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		fmt.Printf("access token revoked for %s\n", args[0])
		return nil
	},
}

func tokenServiceFromConfig() (*service.TokenService, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Server.LogLevel)
	store := settings.NewFileStore(cfg.Settings.Path, logger)
	return service.NewTokenService(store, logger), nil
}

func init() {
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}
