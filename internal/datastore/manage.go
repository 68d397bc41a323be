package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/logger"
)

// performAutoMigration creates or updates the detections table.
func performAutoMigration(db *gorm.DB, dbType, connectionInfo string) error {
	migrationStart := time.Now()
	migrationLogger := GetLogger().With(logger.String("db_type", dbType))

	migrationLogger.Debug("starting database migration")

	if err := db.AutoMigrate(&Detection{}); err != nil {
		return dbError(err, "auto_migrate", errors.PriorityCritical,
			"db_type", dbType,
			"connection", connectionInfo)
	}

	migrationLogger.Debug("database migration completed",
		logger.Duration("total_duration", time.Since(migrationStart)))
	return nil
}

// closeOnError closes db after a failed open so the pool does not leak.
func closeOnError(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
