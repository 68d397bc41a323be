// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "BearWatch")

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/bearwatch.log")
	viper.SetDefault("logging.fileoutput.level", "info")

	viper.SetDefault("server.host", "")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.bodylimit", "12M")
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 60*time.Second)
	viper.SetDefault("server.shutdowntimeout", 15*time.Second)

	viper.SetDefault("detection.defaultlocation", "台東縣")
	viper.SetDefault("detection.timezone", "Asia/Taipei")
	viper.SetDefault("detection.timestamppolicy", TimestampPolicyServer)
	viper.SetDefault("detection.maxclockskew", 5*time.Minute)
	viper.SetDefault("detection.maximagesize", 10*1024*1024)
	viper.SetDefault("detection.recentlimit", 10)
	viper.SetDefault("detection.maxrecentlimit", 100)
	viper.SetDefault("detection.retryttl", 15*time.Minute)

	viper.SetDefault("classifier.endpoint", "http://localhost:5000/predict")
	viper.SetDefault("classifier.timeout", 30*time.Second)
	viper.SetDefault("classifier.maxretries", 2)
	viper.SetDefault("classifier.retrydelay", 500*time.Millisecond)
	viper.SetDefault("classifier.ratelimit", 5.0)
	viper.SetDefault("classifier.burst", 5)

	viper.SetDefault("datastore.type", DatastoreSQLite)
	viper.SetDefault("datastore.slowthreshold", 200*time.Millisecond)
	viper.SetDefault("datastore.sqlite.path", "bearwatch.db")
	viper.SetDefault("datastore.mysql.host", "localhost")
	viper.SetDefault("datastore.mysql.port", 3306)
	viper.SetDefault("datastore.mysql.username", "bearwatch")
	viper.SetDefault("datastore.mysql.database", "bearwatch")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "bearwatch/detections")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.connecttimeout", 10*time.Second)
	viper.SetDefault("mqtt.publishtimeout", 5*time.Second)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.minconfidence", 0.5)
	viper.SetDefault("notification.cooldown", 5*time.Minute)
	viper.SetDefault("notification.title", "BearWatch alert")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}
