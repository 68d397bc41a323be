// Package api provides the BearWatch HTTP server: detection submission,
// persistence retries, statistics, recent history, health and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"

	mw "github.com/bearwatch/bearwatch/internal/api/middleware"
	"github.com/bearwatch/bearwatch/internal/buildinfo"
	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/logger"
	"github.com/bearwatch/bearwatch/internal/observability"
)

// Server is the HTTP server.
type Server struct {
	echo   *echo.Echo
	config *Config

	submissions Submitter
	statistics  StatisticsProvider
	history     HistoryProvider
	store       Pinger
	buildInfo   buildinfo.BuildInfo
	metrics     *observability.Metrics
	diskPath    string

	controller *Controller
	log        logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSubmitter sets the submission service.
func WithSubmitter(s Submitter) ServerOption {
	return func(srv *Server) { srv.submissions = s }
}

// WithStatistics sets the statistics provider.
func WithStatistics(p StatisticsProvider) ServerOption {
	return func(srv *Server) { srv.statistics = p }
}

// WithHistory sets the recent history provider.
func WithHistory(p HistoryProvider) ServerOption {
	return func(srv *Server) { srv.history = p }
}

// WithDataStore sets the store pinged by the health endpoint and the path
// whose filesystem usage it reports.
func WithDataStore(store Pinger, diskPath string) ServerOption {
	return func(srv *Server) {
		srv.store = store
		srv.diskPath = diskPath
	}
}

// WithBuildInfo sets the version reported by the health endpoint.
func WithBuildInfo(b buildinfo.BuildInfo) ServerOption {
	return func(srv *Server) { srv.buildInfo = b }
}

// WithMetrics enables request metrics and the metrics endpoint.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(srv *Server) { srv.metrics = m }
}

// New creates a server from settings. The submission, statistics and
// history components are required.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config: config,
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.submissions == nil || s.statistics == nil || s.history == nil {
		return nil, errors.Newf("api server requires submission, statistics and history components").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.Logger.SetLevel(gommonlog.OFF)
	s.echo.HTTPErrorHandler = httpErrorHandler(s.log)

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.String("body_limit", config.BodyLimit),
		logger.Bool("metrics", s.metricsEnabled()))

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(mw.NewRequestID())

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, s.skipRequestLog))

	s.echo.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.log.WithContext(c.Request().Context()).Error("panic in handler",
				logger.Error(err),
				logger.String("stack", string(stack)))
			return err
		},
	}))

	security := mw.SecurityConfig{AllowedOrigins: s.config.AllowedOrigins}
	s.echo.Use(mw.NewCORS(security))
	s.echo.Use(mw.NewSecureHeaders(security))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
}

// skipRequestLog keeps scrapes and health probes out of the request log.
func (s *Server) skipRequestLog(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/api/health" || (s.metricsEnabled() && p == s.config.MetricsPath)
}

func (s *Server) setupRoutes() {
	health := NewHealthChecker(s.store, s.buildInfo, s.diskPath)
	s.controller = NewController(s.echo, s.config, s.submissions, s.statistics, s.history, health)

	if s.metricsEnabled() {
		s.echo.GET(s.config.MetricsPath, echo.WrapHandler(s.metrics.Handler()))
	}
}

func (s *Server) metricsEnabled() bool {
	return s.config.MetricsEnabled && s.metrics != nil
}

// Start listens and serves until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.log.Info("starting HTTP server", logger.String("address", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", addr).
			Build()
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded
// by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return errors.New(err).
			Component("api").
			Category(errors.CategorySystem).
			Timing("shutdown", time.Since(start)).
			Build()
	}

	s.log.Info("server shutdown complete", logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Controller returns the API controller.
func (s *Server) Controller() *Controller {
	return s.controller
}

// ServeHTTP lets tests drive the server without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
