package datastore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

// MemoryStore keeps events in process memory. Ids are allocated under the
// write lock, so they are unique and strictly increasing.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []detection.Event
	nextID   uint64
	closed   bool
	recorder metrics.Recorder
}

// NewMemoryStore returns an empty, ready to use store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Open is a no-op; the store is usable immediately.
func (m *MemoryStore) Open() error {
	GetLogger().Warn("using in-memory datastore, detections will not survive a restart")
	return nil
}

// SetMetrics instruments the store with Prometheus collectors.
func (m *MemoryStore) SetMetrics(dm *Metrics) {
	if dm != nil {
		m.recorder = dm
	}
}

func (m *MemoryStore) observe(operation string, start time.Time, err error) {
	r := metrics.OrNoOp(m.recorder)
	r.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		r.RecordOperation(operation, metrics.StatusError)
		r.RecordError(operation, categorizeError(err))
		return
	}
	r.RecordOperation(operation, metrics.StatusSuccess)
}

// Append stores a copy of e and sets e.ID. e.DetectedAt is replaced by the
// stored, normalized time.
func (m *MemoryStore) Append(ctx context.Context, e *detection.Event) (err error) {
	start := time.Now()
	defer func() { m.observe(metrics.OpDbInsert, start, err) }()

	if err := validateEvent(e); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dbError(err, "append", "")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	stored := *e
	stored.ID = m.nextID
	stored.DetectedAt = detection.NormalizeTime(stored.DetectedAt)
	m.nextID++
	m.events = append(m.events, stored)
	e.ID = stored.ID
	e.DetectedAt = stored.DetectedAt
	return nil
}

// All returns a copy of every stored event in insertion order.
func (m *MemoryStore) All(ctx context.Context) (events []detection.Event, err error) {
	start := time.Now()
	defer func() { m.observe(metrics.OpDbQueryAll, start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, dbError(err, "query_all", "")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make([]detection.Event, len(m.events))
	copy(out, m.events)
	return out, nil
}

// Recent returns at most limit events ordered by detection.CompareRecent.
func (m *MemoryStore) Recent(ctx context.Context, limit int) (events []detection.Event, err error) {
	start := time.Now()
	defer func() { m.observe(metrics.OpDbQueryRecent, start, err) }()

	if limit <= 0 {
		return nil, validationError("limit must be positive", "limit", limit)
	}
	if err := ctx.Err(); err != nil {
		return nil, dbError(err, "query_recent", "")
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	sorted := slices.Clone(m.events)
	m.mu.RUnlock()

	slices.SortFunc(sorted, detection.CompareRecent)
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	if sorted == nil {
		sorted = []detection.Event{}
	}
	return sorted, nil
}

// Ping reports whether the store is still open.
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Stored events are released.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = nil
	return nil
}
