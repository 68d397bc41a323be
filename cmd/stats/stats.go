package stats

import (
	"github.com/spf13/cobra"

	"github.com/bearwatch/bearwatch/cmd/output"
	"github.com/bearwatch/bearwatch/internal/api"
	"github.com/bearwatch/bearwatch/internal/app"
	"github.com/bearwatch/bearwatch/internal/buildinfo"
	"github.com/bearwatch/bearwatch/internal/conf"
)

// Command creates the stats command, which prints detection statistics
// computed from the configured datastore.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print detection statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Validate(format); err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), settings, build)
			if err != nil {
				return err
			}
			defer a.Close()

			snapshot, err := a.Statistics.ComputeStatistics(cmd.Context())
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), format, api.StatisticsResponse{Success: true, Statistics: snapshot})
		},
	}

	output.AddFlag(cmd, &format)
	return cmd
}
