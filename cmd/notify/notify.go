package notify

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/notification"
)

// Command returns a cobra command that sends a test bear alert to the configured notification URLs
func Command(settings *conf.Settings) *cobra.Command {
	var (
		location   string
		confidence float64
		title      string
		urls       []string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test bear alert",
		Long: `Send a test bear alert through the configured shoutrrr services.
Cooldown and confidence thresholds are not applied.

Examples:
  # Alert using notification.urls from the config file
  bearwatch notify --location=north-trail --confidence=0.92

  # Alert to an explicit service
  bearwatch notify --url="ntfy://ntfy.sh/my-bear-topic"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if confidence < 0 || confidence > 1 {
				return fmt.Errorf("confidence must be within [0, 1]: %v", confidence)
			}
			if len(urls) == 0 {
				urls = settings.Notification.URLs
			}
			if title == "" {
				title = settings.Notification.Title
			}

			sender, err := notification.NewShoutrrrSender(urls, timeout)
			if err != nil {
				return err
			}

			if location == "" {
				location = settings.Detection.DefaultLocation
			}
			ev := detection.Event{
				Location:     location,
				DetectedAt:   time.Now(),
				BearDetected: true,
				Confidence:   confidence,
			}
			message := notification.FormatAlert(ev)

			if err := sender.Send(cmd.Context(), title, message); err != nil {
				return fmt.Errorf("failed to send alert: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Alert sent to %d service(s): %s\n", len(urls), message)
			return nil
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "Camera location shown in the alert (default: detection.defaultlocation)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.9, "Confidence shown in the alert")
	cmd.Flags().StringVar(&title, "title", "", "Alert title (default: notification.title)")
	cmd.Flags().StringArrayVar(&urls, "url", nil, "Shoutrrr service URL, repeatable (default: notification.urls)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Delivery timeout")

	return cmd
}
