// config.go: settings struct for BearWatch and functions to load it.
package conf

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bearwatch/bearwatch/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Timestamp policies for detected_at assignment
const (
	TimestampPolicyServer = "server" // arrival time at write
	TimestampPolicyClient = "client" // camera capture time when plausible
)

// Datastore backends
const (
	DatastoreSQLite = "sqlite"
	DatastoreMySQL  = "mysql"
	DatastoreMemory = "memory"
)

// MainSettings contains application identity settings.
type MainSettings struct {
	Name string // instance name shown in health output and alerts
}

// ServerSettings contains HTTP server settings.
type ServerSettings struct {
	Host            string
	Port            int
	BodyLimit       string        // echo body limit, e.g. "12M"
	CORSOrigins     []string      // allowed origins, empty allows all
	ReadTimeout     time.Duration // http.Server read timeout
	WriteTimeout    time.Duration // http.Server write timeout
	ShutdownTimeout time.Duration // graceful shutdown budget
}

// DetectionSettings controls submission, statistics and history behaviour.
type DetectionSettings struct {
	DefaultLocation string        // used when a submission omits location
	Timezone        string        // IANA zone for daily statistics buckets
	TimestampPolicy string        // "server" or "client"
	MaxClockSkew    time.Duration // tolerated future offset for client timestamps
	MaxImageSize    int64         // bytes
	RecentLimit     int           // default recent-detections page size
	MaxRecentLimit  int           // larger requests are capped
	RetryTTL        time.Duration // how long a failed persistence can be retried
}

// ClassifierSettings configures the external image classification service.
type ClassifierSettings struct {
	Endpoint   string        // URL accepting multipart image uploads
	APIKey     string        // optional bearer token
	Timeout    time.Duration // per-attempt timeout
	MaxRetries int           // retries after the first attempt on transient failures
	RetryDelay time.Duration // base delay, doubled per retry
	RateLimit  float64       // requests per second, 0 disables limiting
	Burst      int
}

// SQLiteSettings for the sqlite backend.
type SQLiteSettings struct {
	Path string
}

// MySQLSettings for the mysql backend.
type MySQLSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// DatastoreSettings selects and configures the detection store.
type DatastoreSettings struct {
	Type          string // sqlite, mysql or memory
	SlowThreshold time.Duration
	SQLite        SQLiteSettings
	MySQL         MySQLSettings
}

// MQTTSettings configures detection publishing.
type MQTTSettings struct {
	Enabled        bool
	Broker         string // tcp://host:1883
	ClientID       string // generated when empty
	Username       string
	Password       string
	Topic          string
	QoS            int
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// NotificationSettings configures bear alerts through shoutrrr.
type NotificationSettings struct {
	Enabled       bool
	URLs          []string // shoutrrr service URLs
	MinConfidence float64  // alerts below this confidence are skipped
	Cooldown      time.Duration
	Title         string
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
	Path    string
}

// Settings is the root configuration struct.
type Settings struct {
	Debug bool

	Main         MainSettings
	Logging      logger.LoggingConfig
	Server       ServerSettings
	Detection    DetectionSettings
	Classifier   ClassifierSettings
	Datastore    DatastoreSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Sentry       SentrySettings
	Metrics      MetricsSettings
}

// StatsLocation returns the time zone used for daily buckets.
func (d *DetectionSettings) StatsLocation() (*time.Location, error) {
	if d.Timezone == "" || d.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(d.Timezone)
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file, .env and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults and reads the configuration file. An explicit
// "config" key (bound to the --config flag) takes precedence over search paths.
func initViper() error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := loadDotEnv(); err != nil {
		GetLogger().Warn("failed to load .env file", logger.Error(err))
	}
	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file anywhere, run on embedded defaults
			GetLogger().Info("no config file found, using embedded defaults")
			return viper.ReadConfig(bytes.NewReader(getDefaultConfig()))
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Info("loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// loadDotEnv loads ./.env into the process environment if present.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(".env")
}

// getDefaultConfig returns the embedded config.yaml.
func getDefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// embedded at build time, cannot fail at runtime
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return data
}

// WriteDefaultConfig writes the embedded default configuration to path.
// An existing file is never overwritten.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(path, getDefaultConfig(), 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// RedactedYAML renders settings with secrets redacted, for "config print".
func (s *Settings) RedactedYAML() ([]byte, error) {
	c := *s
	c.MQTT.Password = redact(c.MQTT.Password)
	c.Datastore.MySQL.Password = redact(c.Datastore.MySQL.Password)
	c.Classifier.APIKey = redact(c.Classifier.APIKey)
	c.Sentry.DSN = redact(c.Sentry.DSN)
	if len(c.Notification.URLs) > 0 {
		c.Notification.URLs = []string{fmt.Sprintf("[%d redacted]", len(s.Notification.URLs))}
	}
	return yaml.Marshal(&c)
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	return "[REDACTED]"
}

// Defaults returns settings built from the embedded config.yaml only,
// without touching the global viper instance.
func Defaults() (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(getDefaultConfig())); err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling embedded config: %w", err)
	}
	return settings, nil
}
