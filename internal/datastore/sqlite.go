package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/logger"
)

const sqliteMemoryPath = ":memory:"

// SQLiteStore implements Interface for SQLite.
//
// All access goes through a single connection, so concurrent appends are
// serialized by database/sql and ids are assigned without gaps or reuse.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

func validateSQLiteConfig(settings *conf.Settings) error {
	if settings.Datastore.SQLite.Path == "" {
		return validationError("sqlite path must not be empty", "datastore.sqlite.path", "")
	}
	return nil
}

// sqliteDSN adds the WAL and busy-timeout pragmas to file databases.
func sqliteDSN(path string) string {
	if path == sqliteMemoryPath {
		return path
	}
	return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
}

// Open sets up the SQLite database connection and schema.
func (store *SQLiteStore) Open() error {
	if err := validateSQLiteConfig(store.Settings); err != nil {
		return err
	}

	path := store.Settings.Datastore.SQLite.Path
	if path != sqliteMemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return dbError(err, "create_directory", errors.PriorityHigh, "path", dir)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger: createGormLogger("sqlite", store.Settings.Datastore.SlowThreshold),
	})
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "db_type", "sqlite", "path", path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "db_type", "sqlite")
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := performAutoMigration(db, "SQLite", path); err != nil {
		closeOnError(db)
		return err
	}

	store.DB = db
	GetLogger().Info("sqlite datastore opened", logger.String("path", path))
	return nil
}
