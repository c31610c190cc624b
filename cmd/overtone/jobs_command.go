package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overtone/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsStaleCommand(ctx))
	cmd.AddCommand(newJobsRequeueCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOutput bool
		states     []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.Jobs(cmd.Context(), states...)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]any{"jobs": jobs})
			}
			printJobTable(cmd, jobs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	cmd.Flags().StringSliceVar(&states, "state", nil, "Filter by state (queued, running, completed, failed)")
	return cmd
}

func newJobsStaleCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List running jobs with expired heartbeats",
		Long: `List running jobs whose worker has stopped heartbeating. These jobs
belong to slots presumed crashed; inspect them and requeue the ones
that should run again. Nothing is requeued automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.Stale(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]any{"jobs": jobs})
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stale jobs")
				return nil
			}
			printJobTable(cmd, jobs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newJobsRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Return a stale running job to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Requeue(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued\n", args[0])
			return nil
		},
	}
}

func printJobTable(cmd *cobra.Command, jobs []api.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
		return
	}
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		detail := job.Output
		if job.State == "failed" {
			detail = job.ErrorCode
		}
		rows = append(rows, []string{
			job.ID,
			job.ProjectID,
			job.Operation,
			job.State,
			fmt.Sprintf("%.0f%%", job.Percent),
			detail,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Job", "Project", "Operation", "State", "Progress", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}
