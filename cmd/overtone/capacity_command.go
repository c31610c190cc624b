package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCapacityCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "capacity <workers>",
		Short: "Adjust the worker pool capacity",
		Long: `Set the number of worker slots allowed to claim new jobs. The value
is clamped to the configured min/max bounds; the applied value is
printed. Busy slots above a lowered capacity finish their current job
before parking.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid worker count %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			applied, err := client.SetCapacity(cmd.Context(), requested)
			if err != nil {
				return err
			}
			if applied != requested {
				fmt.Fprintf(cmd.OutOrStdout(), "Capacity set to %d (requested %d, clamped to bounds)\n", applied, requested)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Capacity set to %d\n", applied)
			return nil
		},
	}
}
