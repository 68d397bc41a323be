// Package datastore provides error handling helpers for database operations
package datastore

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"github.com/bearwatch/bearwatch/internal/errors"
)

// MySQL server error numbers
const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrLockTimeout    = 1205
	mysqlErrDeadlock       = 1213
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.NewStd("datastore: store is closed")

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error (not sent to telemetry)
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// categorizeError returns a low-cardinality error_type label for metrics.
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, ErrStoreClosed) {
		return "closed"
	}
	if label := categorizeDriverError(err); label != "" {
		return label
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate"):
		return "constraint_violation"
	case strings.Contains(errStr, "deadlock"):
		return "deadlock"
	case strings.Contains(errStr, "database is locked") || strings.Contains(errStr, "busy"):
		return "database_locked"
	case strings.Contains(errStr, "context canceled"):
		return "canceled"
	case strings.Contains(errStr, "deadline exceeded") || strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "bad conn"):
		return "connection_error"
	case strings.Contains(errStr, "no such table") || strings.Contains(errStr, "doesn't exist"):
		return "schema_error"
	case strings.Contains(errStr, "disk") || strings.Contains(errStr, "no space"):
		return "disk_error"
	default:
		return "other"
	}
}

// categorizeDriverError labels typed driver errors. Message matching in
// categorizeError covers everything else.
func categorizeDriverError(err error) string {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return "database_locked"
		case sqlite3.ErrConstraint:
			return "constraint_violation"
		case sqlite3.ErrFull, sqlite3.ErrIoErr:
			return "disk_error"
		}
		return ""
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDuplicateEntry:
			return "constraint_violation"
		case mysqlErrDeadlock:
			return "deadlock"
		case mysqlErrLockTimeout:
			return "database_locked"
		}
	}
	return ""
}
