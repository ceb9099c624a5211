package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencraft/opencraft/pkg/client"
	"github.com/opencraft/opencraft/pkg/types"
)

var onCmd = &cobra.Command{
	Use:   "on",
	Short: "Start the game server VM",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		resp, err := newClient().PowerOn(ctx)
		if client.IsAlreadyRunning(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "The server is already up and running, nothing to do")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to power on: %w", err)
		}
		return printPower(cmd, resp)
	},
}

var offCmd = &cobra.Command{
	Use:   "off",
	Short: "Stop the game server and deallocate its VM",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		resp, err := newClient().PowerOff(ctx)
		if err != nil {
			return fmt.Errorf("failed to power off: %w", err)
		}
		return printPower(cmd, resp)
	},
}

func printPower(cmd *cobra.Command, resp *types.PowerResponse) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s (%s)\n", resp.Provider, resp.MachineID, resp.Status, resp.Action)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{onCmd, offCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
		c.Flags().Duration("timeout", 15*time.Minute, "How long to wait for the provider")
		rootCmd.AddCommand(c)
	}
}
