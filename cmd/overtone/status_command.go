package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Daemon running (pid %d)\n", status.PID)
			fmt.Fprintf(cmd.OutOrStdout(), "Ledger: %s\n", status.LedgerPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Workers: %d/%d busy\n\n", status.ActiveSlots, status.Capacity)

			rows := make([][]string, 0, len(status.Counts))
			for _, state := range []string{"queued", "running", "completed", "failed", "total"} {
				rows = append(rows, []string{state, strconv.Itoa(status.Counts[state])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"State", "Jobs"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}
