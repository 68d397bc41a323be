// Package datastore implements the durable detection event store on GORM,
// with SQLite and MySQL backends and an in-memory store for tests and demos.
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

// Interface is a detection.Repository that must be opened before use.
type Interface interface {
	detection.Repository
	Open() error
	SetMetrics(m *Metrics)
}

// New returns an unopened store for the configured backend.
func New(settings *conf.Settings) (Interface, error) {
	switch settings.Datastore.Type {
	case conf.DatastoreSQLite:
		return &SQLiteStore{Settings: settings}, nil
	case conf.DatastoreMySQL:
		return &MySQLStore{Settings: settings}, nil
	case conf.DatastoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, validationError("unsupported datastore type", "datastore.type", settings.Datastore.Type)
	}
}

// Open creates, instruments and opens the configured store.
// m may be nil when metrics are disabled.
func Open(settings *conf.Settings, m *Metrics) (Interface, error) {
	store, err := New(settings)
	if err != nil {
		return nil, err
	}
	if m != nil {
		store.SetMetrics(m)
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	return store, nil
}

// DataStore implements detection.Repository on a GORM database.
type DataStore struct {
	DB *gorm.DB

	recorder  metrics.Recorder
	dbMetrics *Metrics
}

// SetMetrics instruments the store with Prometheus collectors.
func (ds *DataStore) SetMetrics(m *Metrics) {
	if m == nil {
		return
	}
	ds.dbMetrics = m
	ds.recorder = m
}

// SetRecorder instruments the store with a plain Recorder.
func (ds *DataStore) SetRecorder(r metrics.Recorder) {
	ds.recorder = r
}

// observe records status, duration and error type for one operation.
func (ds *DataStore) observe(operation string, start time.Time, err error) {
	r := metrics.OrNoOp(ds.recorder)
	r.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		r.RecordOperation(operation, metrics.StatusError)
		r.RecordError(operation, categorizeError(err))
		return
	}
	r.RecordOperation(operation, metrics.StatusSuccess)
}

func (ds *DataStore) db(ctx context.Context) (*gorm.DB, error) {
	if ds.DB == nil {
		return nil, ErrStoreClosed
	}
	return ds.DB.WithContext(ctx), nil
}

// validateEvent rejects events that violate the domain invariants before
// they reach the database.
func validateEvent(e *detection.Event) error {
	switch {
	case e == nil:
		return validationError("event is nil", "event", nil)
	case e.Location == "":
		return validationError("location must not be empty", "location", e.Location)
	case !e.Verdict().Valid():
		return validationError("confidence must be within [0, 1]", "confidence", e.Confidence)
	case e.DetectedAt.IsZero():
		return validationError("detected_at must be set", "detected_at", e.DetectedAt)
	}
	return nil
}

// Append stores e and sets e.ID from the auto-increment key. e.DetectedAt
// is replaced by the stored, normalized time.
func (ds *DataStore) Append(ctx context.Context, e *detection.Event) (err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpDbInsert, start, err) }()

	if err := validateEvent(e); err != nil {
		return err
	}
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}

	row := fromEvent(e)
	if err := db.Create(&row).Error; err != nil {
		return dbError(err, "append", errors.PriorityHigh,
			"location", e.Location,
			"bear_detected", e.BearDetected)
	}
	e.ID = row.ID
	e.DetectedAt = row.DetectedAt
	return nil
}

// All returns every stored event in insertion order.
func (ds *DataStore) All(ctx context.Context) (events []detection.Event, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpDbQueryAll, start, err) }()

	db, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}

	var rows []Detection
	if err := db.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, dbError(err, "query_all", errors.PriorityMedium)
	}
	if ds.dbMetrics != nil {
		ds.dbMetrics.RecordQueryResultSize(metrics.OpDbQueryAll, len(rows))
	}
	return toEvents(rows), nil
}

// Recent returns at most limit events, newest first with ties broken by
// descending ID.
func (ds *DataStore) Recent(ctx context.Context, limit int) (events []detection.Event, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpDbQueryRecent, start, err) }()

	if limit <= 0 {
		return nil, validationError("limit must be positive", "limit", limit)
	}
	db, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}

	var rows []Detection
	if err := db.Order("detected_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, dbError(err, "query_recent", errors.PriorityMedium, "limit", limit)
	}
	if ds.dbMetrics != nil {
		ds.dbMetrics.RecordQueryResultSize(metrics.OpDbQueryRecent, len(rows))
	}
	return toEvents(rows), nil
}

// Ping checks the connection and refreshes pool metrics.
func (ds *DataStore) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpDbPing, start, err) }()

	if ds.DB == nil {
		return ErrStoreClosed
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "ping", errors.PriorityMedium)
	}
	if ds.dbMetrics != nil {
		stats := sqlDB.Stats()
		ds.dbMetrics.UpdateConnectionMetrics(stats.OpenConnections, stats.InUse)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dbError(err, "ping", errors.PriorityMedium)
	}
	return nil
}

// Close closes the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", errors.PriorityLow)
	}
	ds.DB = nil
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", errors.PriorityLow)
	}
	return nil
}
