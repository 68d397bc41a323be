package submission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bearwatch/bearwatch/internal/classifier"
	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/datastore"
	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
	"github.com/bearwatch/bearwatch/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

func testSettings() *conf.DetectionSettings {
	return &conf.DetectionSettings{
		DefaultLocation: "台東縣",
		Timezone:        "Asia/Taipei",
		TimestampPolicy: conf.TimestampPolicyServer,
		MaxClockSkew:    5 * time.Minute,
		MaxImageSize:    1 << 20,
		RetryTTL:        time.Minute,
	}
}

func testImage(t *testing.T, format string) []byte {
	t.Helper()
	switch format {
	case "png":
		return testutil.PNGImage(t)
	case "jpeg":
		return testutil.JPEGImage(t)
	default:
		t.Fatalf("unknown format %s", format)
		return nil
	}
}

// countingGateway returns a fixed result and counts calls.
type countingGateway struct {
	calls   atomic.Int32
	verdict detection.Verdict
	err     error
}

func (g *countingGateway) Classify(context.Context, []byte) (detection.Verdict, error) {
	g.calls.Add(1)
	return g.verdict, g.err
}

// flakyStore fails the next failures appends.
type flakyStore struct {
	*datastore.MemoryStore
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *flakyStore) Append(ctx context.Context, e *detection.Event) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.NewStd("database is locked")
	}
	s.mu.Unlock()
	return s.MemoryStore.Append(ctx, e)
}

func newTestService(t *testing.T, gw classifier.Gateway, store detection.Repository, settings *conf.DetectionSettings, opts ...Option) *Service {
	t.Helper()
	if settings == nil {
		settings = testSettings()
	}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	svc, err := NewService(gw, store, settings, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestSubmitRecordsVerdictVerbatim(t *testing.T) {
	t.Parallel()

	store := datastore.NewMemoryStore()
	gw := &countingGateway{verdict: detection.Verdict{BearDetected: true, Confidence: 0.42}}
	svc := newTestService(t, gw, store, nil)

	ev, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png"), Location: "  "})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), ev.ID)
	assert.Equal(t, "台東縣", ev.Location, "blank location uses the default")
	assert.True(t, ev.BearDetected)
	assert.InDelta(t, 0.42, ev.Confidence, 1e-9, "no thresholding")
	assert.True(t, fixedNow.Equal(ev.DetectedAt))

	all, err := store.All(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ev.ID, all[0].ID)
}

func TestSubmitReturnsStoredTime(t *testing.T) {
	t.Parallel()

	taipei := time.FixedZone("CST", 8*60*60)
	local := time.Date(2024, 7, 1, 17, 30, 0, 456789123, taipei)
	store := datastore.NewMemoryStore()
	svc := newTestService(t, &countingGateway{verdict: detection.Verdict{BearDetected: true, Confidence: 0.9}},
		store, nil, WithClock(func() time.Time { return local }))

	ev, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png")})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ev.DetectedAt.Location())
	assert.True(t, time.Date(2024, 7, 1, 9, 30, 0, 456000000, time.UTC).Equal(ev.DetectedAt))

	recent, err := store.Recent(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, ev.DetectedAt.Equal(recent[0].DetectedAt))
	assert.Equal(t, ev.DetectedAt.Format(time.RFC3339Nano), recent[0].DetectedAt.Format(time.RFC3339Nano))
}

func TestSubmitKeepsLocationExactly(t *testing.T) {
	t.Parallel()

	store := datastore.NewMemoryStore()
	svc := newTestService(t, &countingGateway{verdict: detection.Verdict{Confidence: 0.1}}, store, nil)

	ev, err := svc.Submit(t.Context(), Request{Image: testImage(t, "jpeg"), Location: " 花蓮縣 "})
	require.NoError(t, err)
	assert.Equal(t, " 花蓮縣 ", ev.Location)
}

func TestSubmitRejectsInvalidImages(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.MaxImageSize = 64 * 1024

	tests := []struct {
		name  string
		image []byte
	}{
		{"empty", nil},
		{"text", []byte("definitely not an image")},
		{"gif", []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")},
		{"truncated png", []byte("\x89PNG\r\n\x1a\n")},
		{"oversized", append(testImage(t, "png"), make([]byte, 64*1024)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := datastore.NewMemoryStore()
			gw := &countingGateway{verdict: detection.Verdict{BearDetected: true, Confidence: 0.9}}
			svc := newTestService(t, gw, store, settings)

			ev, err := svc.Submit(t.Context(), Request{Image: tt.image, Location: "Hualien"})
			assert.Nil(t, ev)
			require.ErrorIs(t, err, detection.ErrInvalidInput)
			assert.Zero(t, gw.calls.Load(), "classifier must not be called")

			all, err := store.All(t.Context())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestSubmitClassificationFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		gw     *countingGateway
		reason string
	}{
		{
			name:   "gateway failure passes through",
			gw:     &countingGateway{err: detection.ClassificationFailure(detection.ReasonTimeout, context.DeadlineExceeded)},
			reason: detection.ReasonTimeout,
		},
		{
			name:   "foreign error is wrapped",
			gw:     &countingGateway{err: errors.NewStd("boom")},
			reason: detection.ReasonUnavailable,
		},
		{
			name:   "out of range verdict",
			gw:     &countingGateway{verdict: detection.Verdict{BearDetected: true, Confidence: 1.5}},
			reason: detection.ReasonMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := datastore.NewMemoryStore()
			rec := metrics.NewTestRecorder()
			svc := newTestService(t, tt.gw, store, nil, WithRecorder(rec))

			ev, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png")})
			assert.Nil(t, ev)
			require.ErrorIs(t, err, detection.ErrClassificationFailure)
			de, ok := detection.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, de.Reason)

			all, err := store.All(t.Context())
			require.NoError(t, err)
			assert.Empty(t, all, "nothing is recorded without a verdict")
			assert.Equal(t, 1, rec.ErrorCount(metrics.OpSubmit, string(detection.KindClassificationFailure)))
		})
	}
}

func TestSubmitPersistenceFailureAndRetry(t *testing.T) {
	t.Parallel()

	store := &flakyStore{MemoryStore: datastore.NewMemoryStore()}
	store.failNext(1)
	gw := &countingGateway{verdict: detection.Verdict{BearDetected: true, Confidence: 0.93}}
	svc := newTestService(t, gw, store, nil)

	ev, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png"), Location: "玉山"})
	assert.Nil(t, ev)
	require.ErrorIs(t, err, detection.ErrPersistenceFailure)

	de, ok := detection.AsError(err)
	require.True(t, ok)
	require.NotNil(t, de.Event)
	assert.Equal(t, "玉山", de.Event.Location)
	assert.Equal(t, detection.Verdict{BearDetected: true, Confidence: 0.93}, de.Event.Verdict())
	assert.Zero(t, de.Event.ID)
	require.NotEmpty(t, de.RetryToken)
	assert.Equal(t, 1, svc.PendingCount())

	stored, err := svc.RetryPersist(t.Context(), de.RetryToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.ID)
	assert.Equal(t, "玉山", stored.Location)
	assert.InDelta(t, 0.93, stored.Confidence, 1e-9)
	assert.Equal(t, int32(1), gw.calls.Load(), "retry must not classify again")
	assert.Zero(t, svc.PendingCount())

	_, err = svc.RetryPersist(t.Context(), de.RetryToken)
	assert.ErrorIs(t, err, detection.ErrInvalidInput, "token is consumed")
}

func TestRetryPersistFailureKeepsToken(t *testing.T) {
	t.Parallel()

	store := &flakyStore{MemoryStore: datastore.NewMemoryStore()}
	store.failNext(2)
	svc := newTestService(t, &countingGateway{verdict: detection.Verdict{Confidence: 0.2}}, store, nil)

	_, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png")})
	de, ok := detection.AsError(err)
	require.True(t, ok)
	token := de.RetryToken

	_, err = svc.RetryPersist(t.Context(), token)
	require.ErrorIs(t, err, detection.ErrPersistenceFailure)
	retryErr, ok := detection.AsError(err)
	require.True(t, ok)
	assert.Equal(t, token, retryErr.RetryToken)
	assert.Equal(t, 1, svc.PendingCount())

	ev, err := svc.RetryPersist(t.Context(), token)
	require.NoError(t, err)
	assert.NotZero(t, ev.ID)
}

func TestRetryPersistUnknownOrExpiredToken(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.RetryTTL = 10 * time.Millisecond
	store := &flakyStore{MemoryStore: datastore.NewMemoryStore()}
	store.failNext(1)
	svc := newTestService(t, &countingGateway{verdict: detection.Verdict{Confidence: 0.2}}, store, settings)

	_, err := svc.RetryPersist(t.Context(), "")
	require.ErrorIs(t, err, detection.ErrInvalidInput)
	_, err = svc.RetryPersist(t.Context(), "no-such-token")
	require.ErrorIs(t, err, detection.ErrInvalidInput)

	_, err = svc.Submit(t.Context(), Request{Image: testImage(t, "png")})
	de, ok := detection.AsError(err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, err = svc.RetryPersist(t.Context(), de.RetryToken)
	require.ErrorIs(t, err, detection.ErrInvalidInput)
	assert.Zero(t, svc.PendingCount())
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	store := &flakyStore{MemoryStore: datastore.NewMemoryStore()}
	store.failNext(1)
	svc := newTestService(t, &countingGateway{verdict: detection.Verdict{Confidence: 0.2}}, store, nil)

	_, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png")})
	de, ok := detection.AsError(err)
	require.True(t, ok)

	require.NoError(t, svc.Discard(de.RetryToken))
	assert.Zero(t, svc.PendingCount())
	assert.ErrorIs(t, svc.Discard(de.RetryToken), detection.ErrInvalidInput)

	_, err = svc.RetryPersist(t.Context(), de.RetryToken)
	assert.ErrorIs(t, err, detection.ErrInvalidInput)
}

func TestSubmitSurvivesCancellationAfterClassification(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	store := datastore.NewMemoryStore()
	gw := classifier.GatewayFunc(func(gctx context.Context, _ []byte) (detection.Verdict, error) {
		cancel()
		assert.NoError(t, gctx.Err(), "classification must not observe request cancellation")
		return detection.Verdict{BearDetected: true, Confidence: 0.8}, nil
	})
	svc := newTestService(t, gw, store, nil)

	ev, err := svc.Submit(ctx, Request{Image: testImage(t, "png")})
	require.NoError(t, err)
	assert.NotZero(t, ev.ID)
}

func TestSubmitCancelledBeforeClassification(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	gw := &countingGateway{verdict: detection.Verdict{Confidence: 0.5}}
	svc := newTestService(t, gw, datastore.NewMemoryStore(), nil)

	_, err := svc.Submit(ctx, Request{Image: testImage(t, "png")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, gw.calls.Load())
}

func TestSubmitTimestampPolicy(t *testing.T) {
	t.Parallel()

	past := fixedNow.Add(-2 * time.Hour)
	nearFuture := fixedNow.Add(time.Minute)
	farFuture := fixedNow.Add(time.Hour)

	tests := []struct {
		name       string
		policy     string
		capturedAt *time.Time
		want       time.Time
	}{
		{"server ignores capture time", conf.TimestampPolicyServer, &past, fixedNow},
		{"client uses capture time", conf.TimestampPolicyClient, &past, past},
		{"client tolerates small skew", conf.TimestampPolicyClient, &nearFuture, nearFuture},
		{"client rejects far future", conf.TimestampPolicyClient, &farFuture, fixedNow},
		{"client without capture time", conf.TimestampPolicyClient, nil, fixedNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings := testSettings()
			settings.TimestampPolicy = tt.policy
			svc := newTestService(t, &countingGateway{verdict: detection.Verdict{Confidence: 0.3}},
				datastore.NewMemoryStore(), settings)

			ev, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png"), CapturedAt: tt.capturedAt})
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(ev.DetectedAt), "got %s want %s", ev.DetectedAt, tt.want)
		})
	}
}

func TestObserversAreNotifiedAsynchronously(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []detection.Event
	recording := ObserverFunc{ObserverName: "recording", Fn: func(_ context.Context, ev detection.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev)
		return nil
	}}
	failing := ObserverFunc{ObserverName: "failing", Fn: func(context.Context, detection.Event) error {
		return errors.NewStd("broker down")
	}}
	panicking := ObserverFunc{ObserverName: "panicking", Fn: func(context.Context, detection.Event) error {
		panic("observer bug")
	}}

	svc := newTestService(t, &countingGateway{verdict: detection.Verdict{BearDetected: true, Confidence: 0.7}},
		datastore.NewMemoryStore(), nil, WithObservers(recording, failing, panicking))

	ev, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png"), Location: "Taroko"})
	require.NoError(t, err)

	svc.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, *ev, seen[0])
}

func TestObserversNotCalledAfterClose(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	obs := ObserverFunc{ObserverName: "counter", Fn: func(context.Context, detection.Event) error {
		calls.Add(1)
		return nil
	}}
	svc := newTestService(t, &countingGateway{verdict: detection.Verdict{Confidence: 0.7}},
		datastore.NewMemoryStore(), nil, WithObservers(obs))
	svc.Close()

	_, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png")})
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
}

func TestConcurrentSubmissionsGetDistinctIDs(t *testing.T) {
	t.Parallel()

	const n = 25
	store := datastore.NewMemoryStore()
	svc := newTestService(t, &countingGateway{verdict: detection.Verdict{BearDetected: true, Confidence: 0.6}}, store, nil)
	img := testImage(t, "png")

	var wg sync.WaitGroup
	ids := make(chan uint64, n)
	for range n {
		wg.Go(func() {
			ev, err := svc.Submit(context.Background(), Request{Image: img})
			if assert.NoError(t, err) {
				ids <- ev.ID
			}
		})
	}
	wg.Wait()
	close(ids)

	unique := make(map[uint64]struct{})
	for id := range ids {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, n)
}

func TestNewServiceValidation(t *testing.T) {
	t.Parallel()

	gw := &countingGateway{}
	store := datastore.NewMemoryStore()

	_, err := NewService(nil, store, testSettings())
	require.Error(t, err)

	settings := testSettings()
	settings.DefaultLocation = ""
	_, err = NewService(gw, store, settings)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestSubmitRecordsMetrics(t *testing.T) {
	t.Parallel()

	rec := metrics.NewTestRecorder()
	svc := newTestService(t, &countingGateway{verdict: detection.Verdict{Confidence: 0.5}},
		datastore.NewMemoryStore(), nil, WithRecorder(rec))

	_, err := svc.Submit(t.Context(), Request{Image: testImage(t, "png")})
	require.NoError(t, err)
	_, err = svc.Submit(t.Context(), Request{})
	require.Error(t, err)

	assert.Equal(t, 1, rec.OperationCount(metrics.OpSubmit, metrics.StatusSuccess))
	assert.Equal(t, 1, rec.OperationCount(metrics.OpSubmit, metrics.StatusError))
	assert.Equal(t, 1, rec.ErrorCount(metrics.OpSubmit, string(detection.KindInvalidInput)))
	assert.Len(t, rec.Durations(metrics.OpSubmit), 2)
}
