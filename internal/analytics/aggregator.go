package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/logger"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

const flightKey = "statistics"

// Aggregator serves statistics snapshots. Concurrent callers share one
// store scan; nothing is cached between scans.
type Aggregator struct {
	store    detection.Repository
	loc      *time.Location
	group    singleflight.Group
	recorder metrics.Recorder
	log      logger.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRecorder records operation metrics to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(a *Aggregator) { a.recorder = metrics.OrNoOp(r) }
}

// NewAggregator returns an aggregator bucketing days in loc.
func NewAggregator(store detection.Repository, loc *time.Location, opts ...Option) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	a := &Aggregator{
		store:    store,
		loc:      loc,
		recorder: metrics.NoOpRecorder{},
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ComputeStatistics summarizes every stored event. Callers that arrive
// while a scan is running receive that scan's snapshot, which must be
// treated as read-only. A store failure returns an Unavailable error.
func (a *Aggregator) ComputeStatistics(ctx context.Context) (*detection.StatisticsSnapshot, error) {
	start := time.Now()

	// the shared scan must not die with whichever caller started it
	ch := a.group.DoChan(flightKey, func() (any, error) {
		return a.compute(context.WithoutCancel(ctx))
	})

	var (
		snapshot *detection.StatisticsSnapshot
		err      error
	)
	select {
	case <-ctx.Done():
		err = detection.Unavailable("statistics", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			err = res.Err
		} else {
			snapshot = res.Val.(*detection.StatisticsSnapshot)
		}
		if res.Shared {
			a.log.Trace("statistics scan shared")
		}
	}

	a.recorder.RecordDuration(metrics.OpStatistics, time.Since(start).Seconds())
	if err != nil {
		a.recorder.RecordOperation(metrics.OpStatistics, metrics.StatusError)
		a.recorder.RecordError(metrics.OpStatistics, string(detection.KindOf(err)))
		return nil, err
	}
	a.recorder.RecordOperation(metrics.OpStatistics, metrics.StatusSuccess)
	return snapshot, nil
}

func (a *Aggregator) compute(ctx context.Context) (*detection.StatisticsSnapshot, error) {
	events, err := a.store.All(ctx)
	if err != nil {
		a.log.Error("failed to read detections for statistics", logger.Error(err))
		return nil, detection.Unavailable("statistics", err)
	}

	snapshot := Summarize(events, a.loc)
	a.log.Debug("statistics computed",
		logger.Int64("total", snapshot.TotalDetections),
		logger.Int64("bear", snapshot.BearDetections),
		logger.Int("days", len(snapshot.DailyStats)),
		logger.Int("locations", len(snapshot.LocationStats)))
	return snapshot, nil
}
