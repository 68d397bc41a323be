// env.go - environment variable configuration and validation for BearWatch
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "BEARWATCH_DEBUG", validateEnvBool},

		// Detection pipeline
		{"detection.defaultlocation", "BEARWATCH_DEFAULT_LOCATION", validateEnvNonEmpty},
		{"detection.timezone", "BEARWATCH_TIMEZONE", validateEnvTimezone},
		{"detection.timestamppolicy", "BEARWATCH_TIMESTAMP_POLICY", validateEnvTimestampPolicy},

		// Classifier service
		{"classifier.endpoint", "BEARWATCH_CLASSIFIER_URL", validateEnvURL},
		{"classifier.apikey", "BEARWATCH_CLASSIFIER_API_KEY", nil},
		{"classifier.timeout", "BEARWATCH_CLASSIFIER_TIMEOUT", validateEnvDuration},

		// Datastore
		{"datastore.type", "BEARWATCH_DATASTORE", validateEnvDatastoreType},
		{"datastore.sqlite.path", "BEARWATCH_SQLITE_PATH", validateEnvNonEmpty},
		{"datastore.mysql.host", "BEARWATCH_MYSQL_HOST", validateEnvNonEmpty},
		{"datastore.mysql.port", "BEARWATCH_MYSQL_PORT", validateEnvPort},
		{"datastore.mysql.username", "BEARWATCH_MYSQL_USER", nil},
		{"datastore.mysql.password", "BEARWATCH_MYSQL_PASSWORD", nil},
		{"datastore.mysql.database", "BEARWATCH_MYSQL_DATABASE", validateEnvNonEmpty},

		// HTTP server
		{"server.port", "BEARWATCH_PORT", validateEnvPort},

		// Integrations
		{"mqtt.enabled", "BEARWATCH_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "BEARWATCH_MQTT_BROKER", validateEnvURL},
		{"mqtt.username", "BEARWATCH_MQTT_USERNAME", nil},
		{"mqtt.password", "BEARWATCH_MQTT_PASSWORD", nil},
		{"sentry.dsn", "BEARWATCH_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvNonEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("must not be blank")
	}
	return nil
}

func validateEnvTimezone(value string) error {
	if value == "Local" {
		return nil
	}
	if _, err := time.LoadLocation(value); err != nil {
		return fmt.Errorf("unknown time zone")
	}
	return nil
}

func validateEnvTimestampPolicy(value string) error {
	switch value {
	case TimestampPolicyServer, TimestampPolicyClient:
		return nil
	}
	return fmt.Errorf("must be %q or %q", TimestampPolicyServer, TimestampPolicyClient)
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fmt.Errorf("must be a positive duration such as 30s")
	}
	return nil
}

func validateEnvDatastoreType(value string) error {
	switch value {
	case DatastoreSQLite, DatastoreMySQL, DatastoreMemory:
		return nil
	}
	return fmt.Errorf("must be one of sqlite, mysql, memory")
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
