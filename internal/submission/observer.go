package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/logger"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

// Observer is notified after a detection has been recorded. Observers run
// asynchronously and their errors never reach the submitter.
type Observer interface {
	Name() string
	Observe(ctx context.Context, ev detection.Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc struct {
	ObserverName string
	Fn           func(ctx context.Context, ev detection.Event) error
}

// Name returns the observer name.
func (f ObserverFunc) Name() string { return f.ObserverName }

// Observe calls Fn.
func (f ObserverFunc) Observe(ctx context.Context, ev detection.Event) error {
	return f.Fn(ctx, ev)
}

// dispatch hands ev to every observer in its own goroutine.
func (s *Service) dispatch(ev detection.Event) {
	if len(s.observers) == 0 {
		return
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}

	for _, o := range s.observers {
		s.observerWG.Go(func() {
			s.notify(o, ev)
		})
	}
}

func (s *Service) notify(o Observer, ev detection.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.observerTimeout)
	defer cancel()

	start := time.Now()
	err := safeObserve(ctx, o, ev)

	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		s.log.Warn("detection observer failed",
			logger.String("observer", o.Name()),
			logger.Uint64("id", ev.ID),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordObserverDispatch(o.Name(), status)
	}
}

// safeObserve turns an observer panic into an error.
func safeObserve(ctx context.Context, o Observer, ev detection.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer %s panicked: %v", o.Name(), r)
		}
	}()
	return o.Observe(ctx, ev)
}
