package detect

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bearwatch/bearwatch/cmd/output"
	"github.com/bearwatch/bearwatch/internal/api"
	"github.com/bearwatch/bearwatch/internal/app"
	"github.com/bearwatch/bearwatch/internal/buildinfo"
	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/submission"
)

// Command creates the detect command, which submits one image file.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		location   string
		capturedAt string
		notify     bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Classify and record a single image",
		Long: `Classify an image file and record the verdict in the configured datastore.

Examples:
  bearwatch detect cam01.jpg --location=north-trail
  bearwatch detect cam01.jpg --captured-at=2024-06-01T04:12:00Z --output=yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Validate(format); err != nil {
				return err
			}

			req := submission.Request{Location: location}
			if capturedAt != "" {
				t, err := time.Parse(time.RFC3339, capturedAt)
				if err != nil {
					return fmt.Errorf("invalid --captured-at, expected RFC3339: %w", err)
				}
				req.CapturedAt = &t
			}

			img, err := readImage(args[0], settings.Detection.MaxImageSize)
			if err != nil {
				return err
			}
			req.Image = img

			var opts []app.Option
			if notify {
				opts = append(opts, app.WithObservers())
			}
			a, err := app.New(cmd.Context(), settings, build, opts...)
			if err != nil {
				return err
			}
			defer a.Close()

			ev, err := a.Submissions.Submit(cmd.Context(), req)
			if err != nil {
				resp := api.NewErrorResponse(err, uuid.NewString())
				// pending results do not outlive this process
				resp.RetryToken = ""
				if werr := output.Write(cmd.OutOrStdout(), format, resp); werr != nil {
					return werr
				}
				return err
			}

			return output.Write(cmd.OutOrStdout(), format, api.NewDetectionResponse(ev))
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "Camera location (default: detection.defaultlocation)")
	cmd.Flags().StringVar(&capturedAt, "captured-at", "", "Capture time in RFC3339, used under the client timestamp policy")
	cmd.Flags().BoolVar(&notify, "notify", false, "Publish to MQTT and send bear alerts when enabled in config")
	output.AddFlag(cmd, &format)

	return cmd
}

// readImage reads path, refusing files far beyond the size limit before
// loading them. The service applies the exact limit.
func readImage(path string, maxSize int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error reading image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if maxSize > 0 && info.Size() > maxSize+1 {
		return nil, fmt.Errorf("image %s is %d bytes, limit is %d", path, info.Size(), maxSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading image: %w", err)
	}
	return data, nil
}
