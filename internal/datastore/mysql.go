package datastore

import (
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/logger"
)

// MySQL connection pool limits
const (
	mysqlMaxIdleConns    = 10
	mysqlMaxOpenConns    = 50
	mysqlConnMaxLifetime = time.Hour
	mysqlDialTimeout     = 10 * time.Second
)

// MySQLStore implements Interface for MySQL. Ids come from AUTO_INCREMENT,
// so concurrent appends across connections never share an id.
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	cfg := settings.Datastore.MySQL
	switch {
	case cfg.Host == "":
		return validationError("mysql host must not be empty", "datastore.mysql.host", cfg.Host)
	case cfg.Database == "":
		return validationError("mysql database must not be empty", "datastore.mysql.database", cfg.Database)
	case cfg.Port <= 0 || cfg.Port > 65535:
		return validationError("mysql port out of range", "datastore.mysql.port", cfg.Port)
	}
	return nil
}

// mysqlDSN builds the driver DSN. Times are read and written in UTC.
func mysqlDSN(settings *conf.Settings) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = settings.Datastore.MySQL.Username
	cfg.Passwd = settings.Datastore.MySQL.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(settings.Datastore.MySQL.Host, strconv.Itoa(settings.Datastore.MySQL.Port))
	cfg.DBName = settings.Datastore.MySQL.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Timeout = mysqlDialTimeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open sets up the MySQL database connection and schema.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	mysqlLogger := GetLogger().Module("mysql")
	location := net.JoinHostPort(store.Settings.Datastore.MySQL.Host, strconv.Itoa(store.Settings.Datastore.MySQL.Port)) +
		"/" + store.Settings.Datastore.MySQL.Database

	db, err := gorm.Open(mysql.Open(mysqlDSN(store.Settings)), &gorm.Config{
		Logger: createGormLogger("mysql", store.Settings.Datastore.SlowThreshold),
	})
	if err != nil {
		mysqlLogger.Error("failed to open MySQL database",
			logger.String("location", location),
			logger.Error(err))
		return dbError(err, "open", errors.PriorityCritical, "db_type", "mysql", "location", location)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "db_type", "mysql")
	}
	sqlDB.SetMaxIdleConns(mysqlMaxIdleConns)
	sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
	sqlDB.SetConnMaxLifetime(mysqlConnMaxLifetime)

	// location rather than the DSN keeps the password out of error context
	if err := performAutoMigration(db, "MySQL", location); err != nil {
		closeOnError(db)
		return err
	}

	store.DB = db
	mysqlLogger.Info("mysql datastore opened", logger.String("location", location))
	return nil
}
