package submission

import "github.com/bearwatch/bearwatch/internal/logger"

// GetLogger returns the submission module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("submission")
}
