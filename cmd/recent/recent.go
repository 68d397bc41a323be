package recent

import (
	"github.com/spf13/cobra"

	"github.com/bearwatch/bearwatch/cmd/output"
	"github.com/bearwatch/bearwatch/internal/api"
	"github.com/bearwatch/bearwatch/internal/app"
	"github.com/bearwatch/bearwatch/internal/buildinfo"
	"github.com/bearwatch/bearwatch/internal/conf"
)

// Command creates the recent command, which prints the newest detections.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recent detections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Validate(format); err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = settings.Detection.RecentLimit
			}

			a, err := app.New(cmd.Context(), settings, build)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.History.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), format, api.RecentResponse{Success: true, Detections: events})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of detections (default: detection.recentlimit)")
	output.AddFlag(cmd, &format)
	return cmd
}
