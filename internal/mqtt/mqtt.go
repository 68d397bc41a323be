// Package mqtt publishes recorded detections to an MQTT broker.
package mqtt

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/logger"
)

// Client defines the MQTT operations the publisher needs.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. It fails when not connected.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retain   bool

	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	MaxReconnectDelay time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		QoS:               1,
		ConnectTimeout:    10 * time.Second,
		PublishTimeout:    5 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		MaxReconnectDelay: 2 * time.Minute,
	}
}

// ConfigFromSettings maps settings onto a client Config. An empty client
// ID is generated from the instance name.
func ConfigFromSettings(s *conf.MQTTSettings, instance string) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.Broker
	cfg.ClientID = s.ClientID
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Retain = s.Retain
	if s.QoS >= 0 && s.QoS <= 2 {
		cfg.QoS = byte(s.QoS)
	}
	if s.ConnectTimeout > 0 {
		cfg.ConnectTimeout = s.ConnectTimeout
	}
	if s.PublishTimeout > 0 {
		cfg.PublishTimeout = s.PublishTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = generateClientID(instance)
	}
	return cfg
}

func generateClientID(instance string) string {
	prefix := strings.ToLower(strings.Join(strings.Fields(instance), "-"))
	if prefix == "" {
		prefix = "bearwatch"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
