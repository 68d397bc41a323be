// Package submission implements the detection submission pipeline:
// validate, classify, record and notify.
package submission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/bearwatch/bearwatch/internal/classifier"
	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/logger"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

const (
	defaultRetryTTL        = 15 * time.Minute
	defaultObserverTimeout = 30 * time.Second
)

// Request is a single image submission.
type Request struct {
	Image      []byte
	Location   string     // blank falls back to the configured default
	CapturedAt *time.Time // only honoured under the client timestamp policy
}

// pendingResult is a classified event whose append failed.
type pendingResult struct {
	Event detection.Event
}

// Service runs submissions. It is safe for concurrent use.
type Service struct {
	gateway  classifier.Gateway
	store    detection.Repository
	settings conf.DetectionSettings

	// pending holds persistence failures by retry token. retryMu makes
	// taking a token atomic.
	pending *cache.Cache
	retryMu sync.Mutex

	observers       []Observer
	observerTimeout time.Duration
	observerWG      sync.WaitGroup
	closeMu         sync.RWMutex
	closed          bool

	now      func() time.Time
	metrics  *metrics.DetectionMetrics
	recorder metrics.Recorder
	log      logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithObservers registers observers notified after every stored detection.
func WithObservers(observers ...Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, observers...) }
}

// WithObserverTimeout bounds each observer call.
func WithObserverTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.observerTimeout = d
		}
	}
}

// WithMetrics instruments the service.
func WithMetrics(m *metrics.DetectionMetrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
			s.recorder = m
		}
	}
}

// WithRecorder records operation metrics to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) { s.recorder = metrics.OrNoOp(r) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a submission service.
func NewService(gateway classifier.Gateway, store detection.Repository, settings *conf.DetectionSettings, opts ...Option) (*Service, error) {
	if gateway == nil || store == nil || settings == nil {
		return nil, errors.Newf("submission service requires a gateway, a store and settings").
			Component("submission").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.DefaultLocation == "" {
		return nil, errors.Newf("default location must not be empty").
			Component("submission").
			Category(errors.CategoryConfiguration).
			Context("setting", "detection.defaultlocation").
			Build()
	}

	ttl := settings.RetryTTL
	if ttl <= 0 {
		ttl = defaultRetryTTL
	}

	s := &Service{
		gateway:         gateway,
		store:           store,
		settings:        *settings,
		pending:         cache.New(ttl, 0), // no janitor, expired tokens are swept on insert
		observerTimeout: defaultObserverTimeout,
		now:             time.Now,
		recorder:        metrics.NoOpRecorder{},
		log:             GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit validates, classifies and records one image.
//
// Validation failures return before the classifier is called. Once the
// classifier has been called, cancelling ctx no longer abandons the
// submission. If the append fails the returned *detection.Error carries the
// classified event and a retry token for RetryPersist.
func (s *Service) Submit(ctx context.Context, req Request) (*detection.Event, error) {
	start := time.Now()
	ev, err := s.submit(ctx, req)
	s.observe(metrics.OpSubmit, start, err)
	return ev, err
}

func (s *Service) submit(ctx context.Context, req Request) (*detection.Event, error) {
	if err := validateImage(req.Image, s.settings.MaxImageSize); err != nil {
		return nil, err
	}
	location := resolveLocation(req.Location, s.settings.DefaultLocation)

	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("submission").
			Category(errors.CategoryTimeout).
			Context("operation", "submit").
			Build()
	}
	work := context.WithoutCancel(ctx)

	verdict, err := s.gateway.Classify(work, req.Image)
	if err != nil {
		return nil, asClassificationFailure(err)
	}
	if !verdict.Valid() {
		return nil, detection.ClassificationFailure(detection.ReasonMalformedResponse,
			errors.Newf("confidence %v outside [0, 1]", verdict.Confidence).
				Component("submission").
				Category(errors.CategoryClassification).
				Build())
	}
	if s.metrics != nil {
		s.metrics.RecordVerdict(verdict.BearDetected, verdict.Confidence)
	}

	detectedAt := resolveTimestamp(s.settings.TimestampPolicy, req.CapturedAt, s.now(), s.settings.MaxClockSkew)
	ev := detection.NewEvent(location, detectedAt, verdict)

	if err := s.store.Append(work, ev); err != nil {
		ev.ID = 0
		return nil, s.persistenceFailure(*ev, err)
	}

	s.log.Info("detection recorded",
		logger.Uint64("id", ev.ID),
		logger.String("location", ev.Location),
		logger.Bool("bear_detected", ev.BearDetected),
		logger.Float64("confidence", ev.Confidence))

	s.dispatch(*ev)
	return ev, nil
}

// asClassificationFailure keeps gateway errors as classification failures
// and wraps anything else.
func asClassificationFailure(err error) error {
	if detection.KindOf(err) == detection.KindClassificationFailure {
		return err
	}
	return detection.ClassificationFailure(detection.ReasonUnavailable, err)
}

// persistenceFailure parks the event under a new retry token.
func (s *Service) persistenceFailure(ev detection.Event, cause error) error {
	token := uuid.NewString()

	s.pending.DeleteExpired()
	s.pending.SetDefault(token, pendingResult{Event: ev})
	s.updatePendingGauge()

	s.log.Error("detection classified but not recorded",
		logger.String("location", ev.Location),
		logger.Bool("bear_detected", ev.BearDetected),
		logger.Float64("confidence", ev.Confidence),
		logger.String("retry_token", token),
		logger.Error(cause))

	perr := detection.PersistenceFailure(&ev, cause)
	perr.RetryToken = token
	return perr
}

// RetryPersist re-attempts the append of a result whose persistence failed,
// without classifying again. The token is consumed on success and kept,
// with its original expiry, on another failure.
func (s *Service) RetryPersist(ctx context.Context, token string) (*detection.Event, error) {
	start := time.Now()
	ev, err := s.retryPersist(ctx, token)
	s.observe(metrics.OpRetryPersist, start, err)
	return ev, err
}

func (s *Service) retryPersist(ctx context.Context, token string) (*detection.Event, error) {
	p, expires, err := s.take(token)
	if err != nil {
		return nil, err
	}

	ev := p.Event
	if err := s.store.Append(context.WithoutCancel(ctx), &ev); err != nil {
		s.log.Warn("retry of detection persistence failed",
			logger.String("retry_token", token),
			logger.Error(err))

		failed := p.Event
		perr := detection.PersistenceFailure(&failed, err)
		if s.requeue(token, p, expires) {
			perr.RetryToken = token
		}
		return nil, perr
	}

	s.log.Info("detection recorded on retry",
		logger.Uint64("id", ev.ID),
		logger.String("location", ev.Location),
		logger.String("retry_token", token))

	s.dispatch(ev)
	return &ev, nil
}

// take removes and returns the pending result for token.
func (s *Service) take(token string) (pendingResult, time.Time, error) {
	if token == "" {
		return pendingResult{}, time.Time{}, detection.InvalidInput("retry token is required")
	}

	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	v, expires, ok := s.pending.GetWithExpiration(token)
	if !ok {
		return pendingResult{}, time.Time{}, detection.InvalidInput("retry token is unknown or expired")
	}
	s.pending.Delete(token)
	s.updatePendingGauge()

	p, ok := v.(pendingResult)
	if !ok {
		return pendingResult{}, time.Time{}, detection.InvalidInput("retry token is unknown or expired")
	}
	return p, expires, nil
}

// requeue puts a pending result back until its original expiry. It reports
// false when the token has expired in the meantime.
func (s *Service) requeue(token string, p pendingResult, expires time.Time) bool {
	d := cache.NoExpiration
	if !expires.IsZero() {
		d = time.Until(expires)
		if d <= 0 {
			return false
		}
	}
	s.pending.Set(token, p, d)
	s.updatePendingGauge()
	return true
}

// Discard drops a pending result the caller chose not to record.
func (s *Service) Discard(token string) error {
	if _, _, err := s.take(token); err != nil {
		return err
	}
	s.log.Debug("pending detection discarded", logger.String("retry_token", token))
	return nil
}

// PendingCount returns the number of results awaiting a persistence retry.
func (s *Service) PendingCount() int {
	s.pending.DeleteExpired()
	return s.pending.ItemCount()
}

func (s *Service) updatePendingGauge() {
	if s.metrics != nil {
		s.metrics.SetPendingRetries(s.pending.ItemCount())
	}
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.recorder.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		s.recorder.RecordOperation(op, metrics.StatusError)
		s.recorder.RecordError(op, string(detection.KindOf(err)))
		return
	}
	s.recorder.RecordOperation(op, metrics.StatusSuccess)
}

// Close stops dispatching to observers and waits for in-flight observer
// calls. Submissions after Close still work but notify nobody.
func (s *Service) Close() {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	s.observerWG.Wait()
}
