package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show the latest health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			metrics, err := client.Metrics(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, metrics)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queue depth: %d", metrics.QueueDepth)
			if metrics.QueueAlert {
				fmt.Fprint(out, "  [ALERT]")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Running:     %d (%d/%d slots busy)\n", metrics.Running, metrics.ActiveSlots, metrics.Capacity)
			fmt.Fprintf(out, "Error rate:  %.1f%% over last %d jobs", metrics.ErrorRate*100, metrics.WindowSize)
			if metrics.ErrorAlert {
				fmt.Fprint(out, "  [ALERT]")
			}
			fmt.Fprintln(out)
			if metrics.SampledAt != "" {
				fmt.Fprintf(out, "Sampled:     %s\n", metrics.SampledAt)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}
