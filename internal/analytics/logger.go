package analytics

import "github.com/bearwatch/bearwatch/internal/logger"

// GetLogger returns the analytics module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analytics")
}
