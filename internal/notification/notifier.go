package notification

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/logger"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

// Suppression reasons
const (
	SuppressedLowConfidence = "low_confidence"
	SuppressedCooldown      = "cooldown"
)

// BearAlerter is a detection observer that alerts on bear-positive events
// at or above a confidence floor, at most once per cooldown per location.
type BearAlerter struct {
	sender        Sender
	minConfidence float64
	cooldown      time.Duration
	title         string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	now     func() time.Time
	metrics *metrics.NotificationMetrics
	log     logger.Logger
}

// AlerterOption configures a BearAlerter.
type AlerterOption func(*BearAlerter)

// WithMetrics instruments the alerter.
func WithMetrics(m *metrics.NotificationMetrics) AlerterOption {
	return func(a *BearAlerter) { a.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AlerterOption {
	return func(a *BearAlerter) { a.now = now }
}

// NewBearAlerter returns an alerter sending through sender.
func NewBearAlerter(sender Sender, settings *conf.NotificationSettings, opts ...AlerterOption) *BearAlerter {
	a := &BearAlerter{
		sender:        sender,
		minConfidence: settings.MinConfidence,
		cooldown:      settings.Cooldown,
		title:         settings.Title,
		limiters:      make(map[string]*rate.Limiter),
		now:           time.Now,
		log:           GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name identifies the observer.
func (a *BearAlerter) Name() string { return "bear_alert" }

// Observe sends an alert for ev when it qualifies.
func (a *BearAlerter) Observe(ctx context.Context, ev detection.Event) error {
	if !ev.BearDetected {
		return nil
	}
	if ev.Confidence < a.minConfidence {
		a.suppress(SuppressedLowConfidence, ev)
		return nil
	}
	if !a.allow(ev.Location) {
		a.suppress(SuppressedCooldown, ev)
		return nil
	}

	start := time.Now()
	err := a.sender.Send(ctx, a.title, FormatAlert(ev))
	elapsed := time.Since(start)

	if err != nil {
		a.recordDelivery("error", elapsed)
		return err
	}
	a.recordDelivery("success", elapsed)
	if a.metrics != nil {
		a.metrics.MarkAlerted(ev.Location)
	}
	a.log.Info("bear alert sent",
		logger.Uint64("id", ev.ID),
		logger.String("location", ev.Location),
		logger.Float64("confidence", ev.Confidence))
	return nil
}

// FormatAlert renders the alert text for ev.
func FormatAlert(ev detection.Event) string {
	return fmt.Sprintf("Bear detected at %s (confidence %d%%)", ev.Location, int(math.Round(ev.Confidence*100)))
}

// allow takes a token from the location's bucket. Each bucket holds one
// token and refills once per cooldown.
func (a *BearAlerter) allow(location string) bool {
	if a.cooldown <= 0 {
		return true
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.limiters[location]
	if !ok {
		l = rate.NewLimiter(rate.Every(a.cooldown), 1)
		a.limiters[location] = l
	}
	return l.AllowN(a.now(), 1)
}

func (a *BearAlerter) suppress(reason string, ev detection.Event) {
	if a.metrics != nil {
		a.metrics.RecordSuppressed(reason)
	}
	a.log.Debug("bear alert suppressed",
		logger.String("reason", reason),
		logger.String("location", ev.Location),
		logger.Float64("confidence", ev.Confidence))
}

func (a *BearAlerter) recordDelivery(status string, elapsed time.Duration) {
	if a.metrics != nil {
		a.metrics.RecordDelivery(status, elapsed.Seconds())
	}
}
