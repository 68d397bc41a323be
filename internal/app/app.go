// Package app assembles the BearWatch components from settings. The serve
// command and the one-shot CLI commands share this wiring.
package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bearwatch/bearwatch/internal/analytics"
	"github.com/bearwatch/bearwatch/internal/buildinfo"
	"github.com/bearwatch/bearwatch/internal/classifier"
	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/datastore"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/history"
	"github.com/bearwatch/bearwatch/internal/logger"
	"github.com/bearwatch/bearwatch/internal/mqtt"
	"github.com/bearwatch/bearwatch/internal/notification"
	"github.com/bearwatch/bearwatch/internal/observability"
	"github.com/bearwatch/bearwatch/internal/submission"
)

// GetLogger returns the app module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// App holds the wired components.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Metrics  *observability.Metrics

	Store       datastore.Interface
	Gateway     *classifier.HTTPGateway
	Submissions *submission.Service
	Statistics  *analytics.Aggregator
	History     *history.Provider

	mqttClient mqtt.Client
	log        logger.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	observers   bool
	gatewayOpts []classifier.Option
}

// WithObservers enables the MQTT publisher and bear alerts when they are
// enabled in settings. One-shot commands leave them off.
func WithObservers() Option {
	return func(o *options) { o.observers = true }
}

// WithGatewayOptions passes extra options to the classifier gateway.
func WithGatewayOptions(opts ...classifier.Option) Option {
	return func(o *options) { o.gatewayOpts = append(o.gatewayOpts, opts...) }
}

// New opens the datastore and builds every component. Close releases them.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Settings: settings,
		Build:    build,
		log:      GetLogger(),
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategorySystem).
			Context("operation", "init_metrics").
			Build()
	}
	a.Metrics = m

	store, err := datastore.Open(settings, m.Datastore)
	if err != nil {
		return nil, err
	}
	a.Store = store

	gatewayOpts := append([]classifier.Option{classifier.WithMetrics(m.Classifier)}, o.gatewayOpts...)
	gateway, err := classifier.NewHTTPGateway(&settings.Classifier, gatewayOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = gateway

	var observers []submission.Observer
	if o.observers {
		observers = a.buildObservers(ctx)
	}

	svc, err := submission.NewService(gateway, store, &settings.Detection,
		submission.WithObservers(observers...),
		submission.WithMetrics(m.Detection))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Submissions = svc

	loc, err := settings.Detection.StatsLocation()
	if err != nil {
		a.Close()
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("setting", "detection.timezone").
			Build()
	}
	a.Statistics = analytics.NewAggregator(store, loc, analytics.WithRecorder(m.Detection))
	a.History = history.NewProvider(store, settings.Detection.MaxRecentLimit, history.WithRecorder(m.Detection))

	a.log.Info("components initialized",
		logger.String("datastore", settings.Datastore.Type),
		logger.String("classifier", errors.Scrub(settings.Classifier.Endpoint)),
		logger.String("timezone", loc.String()),
		logger.Int("observers", len(observers)))

	return a, nil
}

// buildObservers connects the optional observers. A broker or notification
// URL that cannot be used disables that observer and logs why, the
// submission pipeline runs without it.
func (a *App) buildObservers(ctx context.Context) []submission.Observer {
	var observers []submission.Observer

	if a.Settings.MQTT.Enabled {
		if p, err := a.connectMQTT(ctx); err != nil {
			a.log.Warn("MQTT publishing disabled", logger.Error(err))
		} else {
			observers = append(observers, p)
		}
	}

	if a.Settings.Notification.Enabled {
		sender, err := notification.NewShoutrrrSender(a.Settings.Notification.URLs, 10*time.Second)
		if err != nil {
			a.log.Warn("bear alerts disabled", logger.Error(err))
		} else {
			observers = append(observers, notification.NewBearAlerter(sender, &a.Settings.Notification,
				notification.WithMetrics(a.Metrics.Notification)))
		}
	}

	return observers
}

func (a *App) connectMQTT(ctx context.Context) (*mqtt.Publisher, error) {
	cfg := mqtt.ConfigFromSettings(&a.Settings.MQTT, a.Settings.Main.Name)
	client, err := mqtt.NewClient(cfg, a.Metrics.MQTT)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	a.mqttClient = client
	a.log.Info("connected to MQTT broker",
		logger.String("broker", errors.Scrub(cfg.Broker)),
		logger.String("topic", a.Settings.MQTT.Topic))
	return mqtt.NewPublisher(client, a.Settings.MQTT.Topic, a.Settings.Main.Name), nil
}

// DiskPath is the directory whose filesystem the health endpoint reports.
func (a *App) DiskPath() string {
	if a.Settings.Datastore.Type == conf.DatastoreSQLite && a.Settings.Datastore.SQLite.Path != "" {
		return filepath.Dir(a.Settings.Datastore.SQLite.Path)
	}
	return "."
}

// Close waits for observers, then disconnects MQTT and closes the store.
func (a *App) Close() {
	if a.Submissions != nil {
		a.Submissions.Close()
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.Gateway != nil {
		a.Gateway.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.log.Warn("failed to close datastore", logger.Error(err))
		}
	}
}
