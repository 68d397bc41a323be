package observability

import "github.com/bearwatch/bearwatch/internal/logger"

// GetLogger returns the observability module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("observability")
}
