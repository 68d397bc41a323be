package history

import "github.com/bearwatch/bearwatch/internal/logger"

// GetLogger returns the history module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("history")
}
