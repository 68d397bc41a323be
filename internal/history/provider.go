// Package history serves the most recent detections.
package history

import (
	"context"
	"time"

	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/logger"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

// DefaultMaxLimit caps a single page when no cap is configured.
const DefaultMaxLimit = 100

// Provider returns recent detections newest first.
type Provider struct {
	store    detection.Repository
	maxLimit int
	recorder metrics.Recorder
	log      logger.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithRecorder records operation metrics to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Provider) { p.recorder = metrics.OrNoOp(r) }
}

// NewProvider returns a provider capping pages at maxLimit. A non-positive
// maxLimit uses DefaultMaxLimit.
func NewProvider(store detection.Repository, maxLimit int, opts ...Option) *Provider {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	p := &Provider{
		store:    store,
		maxLimit: maxLimit,
		recorder: metrics.NoOpRecorder{},
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxLimit returns the page size cap.
func (p *Provider) MaxLimit() int { return p.maxLimit }

// Recent returns up to limit events ordered by descending DetectedAt, ties
// broken by descending ID. limit must be positive and is capped at
// MaxLimit. An empty store yields an empty, non-nil slice.
func (p *Provider) Recent(ctx context.Context, limit int) ([]detection.Event, error) {
	start := time.Now()
	events, err := p.recent(ctx, limit)

	p.recorder.RecordDuration(metrics.OpRecent, time.Since(start).Seconds())
	if err != nil {
		p.recorder.RecordOperation(metrics.OpRecent, metrics.StatusError)
		p.recorder.RecordError(metrics.OpRecent, string(detection.KindOf(err)))
		return nil, err
	}
	p.recorder.RecordOperation(metrics.OpRecent, metrics.StatusSuccess)
	return events, nil
}

func (p *Provider) recent(ctx context.Context, limit int) ([]detection.Event, error) {
	if limit <= 0 {
		return nil, detection.InvalidInput("limit must be a positive integer, got %d", limit)
	}
	if limit > p.maxLimit {
		p.log.Debug("recent limit capped",
			logger.Int("requested", limit),
			logger.Int("max", p.maxLimit))
		limit = p.maxLimit
	}

	events, err := p.store.Recent(ctx, limit)
	if err != nil {
		p.log.Error("failed to read recent detections",
			logger.Int("limit", limit),
			logger.Error(err))
		return nil, detection.Unavailable("recent detections", err)
	}
	if events == nil {
		events = []detection.Event{}
	}
	return events, nil
}
