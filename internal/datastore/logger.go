package datastore

import (
	"time"

	gorm_logger "gorm.io/gorm/logger"

	"github.com/bearwatch/bearwatch/internal/logger"
)

// GetLogger returns the datastore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

// createGormLogger routes GORM output through the module logger.
func createGormLogger(backend string, slowThreshold time.Duration) gorm_logger.Interface {
	return logger.NewGormLoggerAdapter(GetLogger().Module(backend), slowThreshold)
}
