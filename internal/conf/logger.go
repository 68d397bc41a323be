// Package conf provides configuration management for BearWatch.
package conf

import "github.com/bearwatch/bearwatch/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched on each call so it follows the central logger once installed.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
