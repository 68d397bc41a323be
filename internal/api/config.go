package api

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/logger"
)

// GetLogger returns the api module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default server timeouts
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultBodyLimit   = "12M"
	DefaultRecentLimit = 10
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string // empty binds all interfaces
	Port int

	AllowedOrigins []string // CORS allowed origins

	ReadTimeout     time.Duration // maximum duration for reading a request
	WriteTimeout    time.Duration // maximum duration for writing a response
	IdleTimeout     time.Duration // keep-alive idle time
	ShutdownTimeout time.Duration // graceful shutdown budget

	BodyLimit string // maximum request body size, e.g. "12M"

	MaxImageSize int64 // bytes read from an uploaded image
	RecentLimit  int   // page size when ?limit is absent

	MetricsEnabled bool
	MetricsPath    string

	Debug bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		RecentLimit:     DefaultRecentLimit,
		MetricsPath:     "/metrics",
	}
}

// ConfigFromSettings creates a server Config from application settings.
// Zero values in settings keep the defaults.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	cfg.Host = settings.Server.Host
	if settings.Server.Port != 0 {
		cfg.Port = settings.Server.Port
	}
	cfg.AllowedOrigins = settings.Server.CORSOrigins
	if settings.Server.BodyLimit != "" {
		cfg.BodyLimit = settings.Server.BodyLimit
	}
	if settings.Server.ReadTimeout > 0 {
		cfg.ReadTimeout = settings.Server.ReadTimeout
	}
	if settings.Server.WriteTimeout > 0 {
		cfg.WriteTimeout = settings.Server.WriteTimeout
	}
	if settings.Server.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = settings.Server.ShutdownTimeout
	}

	cfg.MaxImageSize = settings.Detection.MaxImageSize
	if settings.Detection.RecentLimit > 0 {
		cfg.RecentLimit = settings.Detection.RecentLimit
	}

	cfg.MetricsEnabled = settings.Metrics.Enabled
	if settings.Metrics.Path != "" {
		cfg.MetricsPath = settings.Metrics.Path
	}

	cfg.Debug = settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.RecentLimit <= 0 {
		return fmt.Errorf("recent limit must be positive")
	}
	if c.MetricsEnabled && (c.MetricsPath == "" || c.MetricsPath[0] != '/') {
		return fmt.Errorf("metrics path must start with /: %q", c.MetricsPath)
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
