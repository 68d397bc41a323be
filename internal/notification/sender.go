// Package notification sends bear alerts through shoutrrr services.
package notification

import (
	"context"
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/logger"
)

// Sender delivers one alert message.
type Sender interface {
	Send(ctx context.Context, title, message string) error
}

// ShoutrrrSender sends to every configured shoutrrr URL through one router.
type ShoutrrrSender struct {
	sender *router.ServiceRouter
}

// NewShoutrrrSender validates urls and builds the router.
func NewShoutrrrSender(urls []string, timeout time.Duration) (*ShoutrrrSender, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// shoutrrr errors may echo the URL, tokens included
		return nil, errors.Newf("invalid notification URL: %s", errors.Scrub(err.Error())).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(urls)).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrSender{sender: sender}, nil
}

// Send delivers message to all services. The router applies its own
// timeout, so ctx is only checked before sending.
func (s *ShoutrrrSender) Send(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}

	var errs []error
	for _, err := range s.sender.Send(message, &params) {
		if err != nil {
			errs = append(errs, errors.Newf("%s", errors.Scrub(err.Error())).
				Component("notification").
				Category(errors.CategoryNotification).
				Build())
		}
	}
	if len(errs) > 0 {
		GetLogger().Debug("alert delivery failed", logger.Int("failures", len(errs)))
		return errors.Join(errs...)
	}
	return nil
}

// GetLogger returns the notification module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}
