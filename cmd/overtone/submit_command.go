package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"overtone/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOutput bool
		denoise    bool
		declip     bool
		stereo     bool
		background bool
		normalize  bool
		regions    []string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "submit <project-id> <operation> <input>",
		Short: "Submit a processing job",
		Long: `Submit a job for a project. The operation is one of process,
reprocess, inpaint, or export. The input is an artifact ref (art:...)
or a generation ref (gen:<id>) naming a previous result to build on.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedRegions, err := parseRegions(regions)
			if err != nil {
				return err
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Submit(cmd.Context(), api.SubmitRequest{
				ProjectID: args[0],
				Operation: args[1],
				Input:     args[2],
				Settings: api.SettingsPayload{
					Denoise:          denoise,
					Declip:           declip,
					StereoEnhance:    stereo,
					RemoveBackground: background,
					Normalize:        normalize,
					Regions:          parsedRegions,
					Format:           format,
				},
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued for project %s\n", job.ID, job.ProjectID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	cmd.Flags().BoolVar(&denoise, "denoise", false, "Enable noise reduction")
	cmd.Flags().BoolVar(&declip, "declip", false, "Enable clip repair")
	cmd.Flags().BoolVar(&stereo, "stereo-enhance", false, "Enable stereo widening")
	cmd.Flags().BoolVar(&background, "remove-background", false, "Enable background removal")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "Enable peak normalization")
	cmd.Flags().StringSliceVar(&regions, "region", nil, "Inpaint region as start-end in seconds (repeatable)")
	cmd.Flags().StringVar(&format, "format", "", "Export format (wav16, wav24, wav32f)")
	return cmd
}

// parseRegions converts "start-end" flag values into region payloads.
func parseRegions(values []string) ([]api.RegionPayload, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]api.RegionPayload, 0, len(values))
	for _, value := range values {
		startStr, endStr, ok := strings.Cut(strings.TrimSpace(value), "-")
		if !ok {
			return nil, fmt.Errorf("invalid region %q (want start-end)", value)
		}
		start, err := strconv.ParseFloat(startStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid region start %q", startStr)
		}
		end, err := strconv.ParseFloat(endStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid region end %q", endStr)
		}
		out = append(out, api.RegionPayload{Start: start, End: end})
	}
	return out, nil
}
