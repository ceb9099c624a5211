package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencraft/opencraft/pkg/types"
)

var tokenCmd = &cobra.Command{
	Use:     "token <subject>",
	Short:   "Issue a scoped power token (requires the API key)",
	Example: `  opencraft token steve --scope power:on --scope status --ttl 168h`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if apiKey == "" {
			return fmt.Errorf("API key is required. Set OPENCRAFT_API_KEY environment variable or use --api-key flag")
		}

		scopes, _ := cmd.Flags().GetStringSlice("scope")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := newClient().IssueToken(ctx, types.TokenRequest{
			Subject: args[0],
			Scopes:  scopes,
			TTL:     int(ttl.Seconds()),
		})
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", resp.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringSlice("scope", []string{"power:on", "status"}, "Scopes to grant (power:on, power:off, status)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}
