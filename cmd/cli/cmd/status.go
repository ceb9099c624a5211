package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show VM power state and game server liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		st, err := newClient().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(st, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "VM:\t%s\n", st.VMStatus)
		if st.Server != nil {
			fmt.Fprintf(w, "Server:\tonline (%s:%d)\n", st.Server.Host, st.Server.Port)
			fmt.Fprintf(w, "Players:\t%d/%d\n", st.Server.PlayersOnline, st.Server.PlayersMax)
			if st.Server.Version != "" {
				fmt.Fprintf(w, "Version:\t%s\n", st.Server.Version)
			}
		} else {
			fmt.Fprintln(w, "Server:\toffline")
		}
		if !st.Consistent {
			fmt.Fprintln(w, "Warning:\tthe server appears to be down but the VM appears to be running")
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}
