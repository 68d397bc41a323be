package app

import (
	"time"

	"github.com/bearwatch/bearwatch/internal/buildinfo"
	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/logger"
)

const telemetryFlushTimeout = 2 * time.Second

// SetupLogging installs the global logger from settings. --debug raises the
// default and console levels. The returned func flushes and closes outputs.
func SetupLogging(settings *conf.Settings) (func(), error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = string(logger.LogLevelDebug)
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = string(logger.LogLevelDebug)
			cfg.Console = &console
		}
	}

	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_logging").
			Build()
	}
	logger.SetGlobal(cl)

	return func() {
		_ = cl.Flush()
		_ = cl.Close()
	}, nil
}

// SetupTelemetry enables Sentry error reporting when configured. The
// returned func flushes pending events.
func SetupTelemetry(settings *conf.Settings, build buildinfo.BuildInfo) (func(), error) {
	if !settings.Sentry.Enabled {
		return func() {}, nil
	}
	if err := errors.InitSentry(settings.Sentry.DSN, settings.Sentry.Environment, build.GetVersion()); err != nil {
		return nil, err
	}
	GetLogger().Info("error telemetry enabled", logger.String("environment", settings.Sentry.Environment))
	return func() { errors.FlushTelemetry(telemetryFlushTimeout) }, nil
}
