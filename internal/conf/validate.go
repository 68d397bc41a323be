// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/bearwatch/bearwatch/internal/logger"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

var bodyLimitPattern = regexp.MustCompile(`^\d+[KMGTP]?$`)

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateLoggingSettings,
		validateServerSettings,
		validateDetectionSettings,
		validateClassifierSettings,
		validateDatastoreSettings,
		validateMQTTSettings,
		validateNotificationSettings,
		validateSentrySettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLoggingSettings(s *Settings) []string {
	var errs []string
	if s.Logging.DefaultLevel != "" && !logger.ValidLevel(s.Logging.DefaultLevel) {
		errs = append(errs, fmt.Sprintf("logging.defaultlevel %q is not a valid level", s.Logging.DefaultLevel))
	}
	for module, level := range s.Logging.ModuleLevels {
		if !logger.ValidLevel(level) {
			errs = append(errs, fmt.Sprintf("logging.modulelevels.%s %q is not a valid level", module, level))
		}
	}
	return errs
}

func validateServerSettings(s *Settings) []string {
	var errs []string
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !bodyLimitPattern.MatchString(s.Server.BodyLimit) {
		errs = append(errs, fmt.Sprintf("server.bodylimit %q must look like 12M", s.Server.BodyLimit))
	}
	if s.Server.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdowntimeout must not be negative")
	}
	return errs
}

func validateDetectionSettings(s *Settings) []string {
	var errs []string
	d := &s.Detection
	if strings.TrimSpace(d.DefaultLocation) == "" {
		errs = append(errs, "detection.defaultlocation must not be empty")
	}
	if _, err := d.StatsLocation(); err != nil {
		errs = append(errs, fmt.Sprintf("detection.timezone %q: %v", d.Timezone, err))
	}
	switch d.TimestampPolicy {
	case TimestampPolicyServer, TimestampPolicyClient:
	default:
		errs = append(errs, fmt.Sprintf("detection.timestamppolicy must be %q or %q", TimestampPolicyServer, TimestampPolicyClient))
	}
	if d.MaxClockSkew < 0 {
		errs = append(errs, "detection.maxclockskew must not be negative")
	}
	if d.MaxImageSize <= 0 {
		errs = append(errs, "detection.maximagesize must be positive")
	}
	if d.RecentLimit <= 0 {
		errs = append(errs, "detection.recentlimit must be positive")
	}
	if d.MaxRecentLimit < d.RecentLimit {
		errs = append(errs, "detection.maxrecentlimit must be at least detection.recentlimit")
	}
	if d.RetryTTL <= 0 {
		errs = append(errs, "detection.retryttl must be positive")
	}
	return errs
}

func validateClassifierSettings(s *Settings) []string {
	var errs []string
	c := &s.Classifier
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("classifier.endpoint %q must be an http(s) URL", c.Endpoint))
	}
	if c.Timeout <= 0 {
		errs = append(errs, "classifier.timeout must be positive")
	}
	if c.MaxRetries < 0 {
		errs = append(errs, "classifier.maxretries must not be negative")
	}
	if c.RetryDelay < 0 {
		errs = append(errs, "classifier.retrydelay must not be negative")
	}
	if c.RateLimit < 0 {
		errs = append(errs, "classifier.ratelimit must not be negative")
	}
	if c.RateLimit > 0 && c.Burst < 1 {
		errs = append(errs, "classifier.burst must be at least 1 when rate limiting is enabled")
	}
	return errs
}

func validateDatastoreSettings(s *Settings) []string {
	var errs []string
	ds := &s.Datastore
	switch ds.Type {
	case DatastoreSQLite:
		if ds.SQLite.Path == "" {
			errs = append(errs, "datastore.sqlite.path must be set")
		}
	case DatastoreMySQL:
		if ds.MySQL.Host == "" {
			errs = append(errs, "datastore.mysql.host must be set")
		}
		if ds.MySQL.Database == "" {
			errs = append(errs, "datastore.mysql.database must be set")
		}
		if ds.MySQL.Port < 1 || ds.MySQL.Port > 65535 {
			errs = append(errs, "datastore.mysql.port must be between 1 and 65535")
		}
	case DatastoreMemory:
	default:
		errs = append(errs, fmt.Sprintf("datastore.type %q must be sqlite, mysql or memory", ds.Type))
	}
	return errs
}

func validateMQTTSettings(s *Settings) []string {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	if s.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker must be set when mqtt is enabled")
	}
	if s.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic must be set when mqtt is enabled")
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}
	return errs
}

func validateNotificationSettings(s *Settings) []string {
	if !s.Notification.Enabled {
		return nil
	}
	var errs []string
	if len(s.Notification.URLs) == 0 {
		errs = append(errs, "notification.urls must list at least one service when notifications are enabled")
	}
	if s.Notification.MinConfidence < 0 || s.Notification.MinConfidence > 1 {
		errs = append(errs, "notification.minconfidence must be between 0 and 1")
	}
	return errs
}

func validateSentrySettings(s *Settings) []string {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return []string{"sentry.dsn must be set when sentry is enabled"}
	}
	return nil
}
