package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "progress <project-id>",
		Short: "Show progress of a project's latest job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := client.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			switch report.State {
			case "queued":
				fmt.Fprintf(out, "Job %s (%s) is queued\n", report.JobID, report.Operation)
			case "running":
				fmt.Fprintf(out, "Job %s (%s) running: %.0f%%", report.JobID, report.Operation, report.Percent)
				if report.ETASeconds > 0 {
					eta := time.Duration(report.ETASeconds * float64(time.Second)).Round(time.Second)
					fmt.Fprintf(out, " (about %s remaining)", eta)
				}
				fmt.Fprintln(out)
			case "completed":
				fmt.Fprintf(out, "Job %s (%s) completed\n", report.JobID, report.Operation)
			case "failed":
				fmt.Fprintf(out, "Job %s (%s) failed [%s]: %s\n", report.JobID, report.Operation, report.ErrorCode, report.Error)
			default:
				fmt.Fprintf(out, "Job %s is %s\n", report.JobID, report.State)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}
