package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bearwatch/bearwatch/internal/datastore"
	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func taipei(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)
	return loc
}

func event(id uint64, location string, at time.Time, bear bool) detection.Event {
	return detection.Event{ID: id, Location: location, DetectedAt: at, BearDetected: bear, Confidence: 0.5}
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil, time.UTC)
	assert.Zero(t, s.TotalDetections)
	assert.Zero(t, s.BearDetections)
	assert.NotNil(t, s.DailyStats)
	assert.NotNil(t, s.LocationStats)
	assert.Empty(t, s.DailyStats)
	assert.Empty(t, s.LocationStats)
}

func TestSummarizeCountsAndBuckets(t *testing.T) {
	t.Parallel()

	loc := taipei(t)
	events := []detection.Event{
		// 2024-03-01 17:00 UTC is 2024-03-02 01:00 in Taipei
		event(1, "台東縣", time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC), true),
		event(2, "台東縣", time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC), false),
		event(3, "花蓮縣", time.Date(2024, 2, 28, 2, 0, 0, 0, time.UTC), true),
		event(4, "Taitung", time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC), false),
		event(5, "台東縣 ", time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), true),
	}

	s := Summarize(events, loc)
	assert.Equal(t, int64(5), s.TotalDetections)
	assert.Equal(t, int64(3), s.BearDetections)

	assert.Equal(t, []detection.DailyCount{
		{Date: "2024-02-28", Count: 1},
		{Date: "2024-03-02", Count: 2},
		{Date: "2024-03-05", Count: 2},
	}, s.DailyStats, "sparse and ascending, bucketed in local time")

	require.Len(t, s.LocationStats, 4, "locations are not normalized")
	assert.Equal(t, detection.LocationCount{Location: "台東縣", Count: 2}, s.LocationStats[0])

	var dailySum, locationSum int64
	for _, d := range s.DailyStats {
		dailySum += d.Count
	}
	for _, l := range s.LocationStats {
		locationSum += l.Count
	}
	assert.Equal(t, s.TotalDetections, dailySum)
	assert.Equal(t, s.TotalDetections, locationSum)
}

func TestSummarizeTimezoneChangesDay(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC)
	events := []detection.Event{event(1, "玉山", at, true)}

	assert.Equal(t, "2024-12-31", Summarize(events, time.UTC).DailyStats[0].Date)
	assert.Equal(t, "2025-01-01", Summarize(events, taipei(t)).DailyStats[0].Date)
}

func TestSummarizeLocationOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Now()
	events := []detection.Event{
		event(1, "b", now, false),
		event(2, "a", now, false),
		event(3, "c", now, false),
		event(4, "c", now, false),
		event(5, "B", now, false),
	}

	s := Summarize(events, time.UTC)
	locations := make([]string, 0, len(s.LocationStats))
	for _, l := range s.LocationStats {
		locations = append(locations, l.Location)
	}
	assert.Equal(t, "c", locations[0], "highest count first")
	assert.ElementsMatch(t, []string{"c", "a", "b", "B"}, locations)

	again := Summarize(events, time.UTC)
	assert.Equal(t, s.LocationStats, again.LocationStats)
}

// gatedStore blocks All until release is closed.
type gatedStore struct {
	*datastore.MemoryStore
	calls   atomic.Int32
	release chan struct{}
}

func (s *gatedStore) All(ctx context.Context) ([]detection.Event, error) {
	s.calls.Add(1)
	<-s.release
	return s.MemoryStore.All(ctx)
}

type failingStore struct {
	*datastore.MemoryStore
}

func (failingStore) All(context.Context) ([]detection.Event, error) {
	return nil, errors.NewStd("connection reset")
}

func seed(t *testing.T, store *datastore.MemoryStore, n int) {
	t.Helper()
	for i := range n {
		e := detection.NewEvent("台東縣", time.Now().Add(-time.Duration(i)*time.Hour),
			detection.Verdict{BearDetected: i%2 == 0, Confidence: 0.8})
		require.NoError(t, store.Append(t.Context(), e))
	}
}

func TestComputeStatistics(t *testing.T) {
	t.Parallel()

	store := datastore.NewMemoryStore()
	seed(t, store, 3)
	rec := metrics.NewTestRecorder()
	agg := NewAggregator(store, taipei(t), WithRecorder(rec))

	s, err := agg.ComputeStatistics(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.TotalDetections)
	assert.Equal(t, int64(2), s.BearDetections)

	seed(t, store, 1)
	s, err = agg.ComputeStatistics(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(4), s.TotalDetections, "sequential calls are not cached")
	assert.Equal(t, 2, rec.OperationCount(metrics.OpStatistics, metrics.StatusSuccess))
}

func TestComputeStatisticsCollapsesConcurrentCalls(t *testing.T) {
	t.Parallel()

	store := &gatedStore{MemoryStore: datastore.NewMemoryStore(), release: make(chan struct{})}
	seed(t, store.MemoryStore, 2)
	agg := NewAggregator(store, time.UTC)

	const callers = 8
	var started, done sync.WaitGroup
	results := make([]*detection.StatisticsSnapshot, callers)
	for i := range callers {
		started.Add(1)
		done.Add(1)
		go func() {
			defer done.Done()
			started.Done()
			s, err := agg.ComputeStatistics(context.Background())
			assert.NoError(t, err)
			results[i] = s
		}()
	}
	started.Wait()
	require.Eventually(t, func() bool { return store.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	done.Wait()

	assert.Equal(t, int32(1), store.calls.Load())
	for _, s := range results {
		require.NotNil(t, s)
		assert.Same(t, results[0], s)
	}
}

func TestComputeStatisticsStoreFailure(t *testing.T) {
	t.Parallel()

	rec := metrics.NewTestRecorder()
	agg := NewAggregator(failingStore{datastore.NewMemoryStore()}, time.UTC, WithRecorder(rec))

	s, err := agg.ComputeStatistics(t.Context())
	assert.Nil(t, s)
	require.ErrorIs(t, err, detection.ErrUnavailable)
	assert.Equal(t, detection.KindUnavailable, detection.KindOf(err))
	assert.Equal(t, 1, rec.ErrorCount(metrics.OpStatistics, string(detection.KindUnavailable)))
}

func TestComputeStatisticsCallerCancelled(t *testing.T) {
	t.Parallel()

	store := &gatedStore{MemoryStore: datastore.NewMemoryStore(), release: make(chan struct{})}
	agg := NewAggregator(store, time.UTC)

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() {
		_, err := agg.ComputeStatistics(ctx)
		errc <- err
	}()
	require.Eventually(t, func() bool { return store.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	err := <-errc
	require.ErrorIs(t, err, detection.ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	// let the abandoned scan finish so no goroutine outlives the test
	close(store.release)
	s, err := agg.ComputeStatistics(t.Context())
	require.NoError(t, err)
	assert.Zero(t, s.TotalDetections)
}
