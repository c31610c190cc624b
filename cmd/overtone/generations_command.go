package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGenerationsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generations",
		Short: "List and delete project generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newGenerationsListCommand(ctx))
	cmd.AddCommand(newGenerationsDeleteCommand(ctx))
	return cmd
}

func newGenerationsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's generations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			gens, err := client.Generations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]any{"generations": gens})
			}
			if len(gens) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No generations")
				return nil
			}
			rows := make([][]string, 0, len(gens))
			for _, gen := range gens {
				rows = append(rows, []string{gen.ID, gen.Name, gen.Artifact, gen.CreatedAt})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Generation", "Name", "Artifact", "Created"},
				rows,
				nil,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newGenerationsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <generation-id>",
		Short: "Delete a generation pointer (the producing job is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.DeleteGeneration(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generation %s deleted\n", args[0])
			return nil
		},
	}
}
