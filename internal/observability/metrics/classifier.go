package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClassifierMetrics contains Prometheus metrics for the image classification gateway.
type ClassifierMetrics struct {
	operationSet

	registry *prometheus.Registry

	retriesTotal     prometheus.Counter
	failuresByReason *prometheus.CounterVec
	imageSizeBytes   prometheus.Histogram
	rateLimitWait    prometheus.Histogram

	collectors collectorList
}

// NewClassifierMetrics creates and registers classifier metrics.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() {
	m.operationSet = newOperationSet("classifier", "classification",
		prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12)) // 10ms to ~20s

	m.retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "classifier_retries_total",
		Help: "Total number of classification attempts retried after a transient failure",
	})
	m.failuresByReason = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_failures_total",
			Help: "Classification failures by reason (timeout, unavailable, malformed_response, rejected)",
		},
		[]string{"reason"},
	)
	m.imageSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "classifier_image_size_bytes",
		Help:    "Size of images sent for classification",
		Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor2, BucketCount15), // 1KB to ~16MB
	})
	m.rateLimitWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "classifier_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the classifier rate limiter",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	})

	m.collectors = append(m.operationSet.list(),
		m.retriesTotal,
		m.failuresByReason,
		m.imageSizeBytes,
		m.rateLimitWait,
	)
}

// Describe implements the Collector interface
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.collectors.Describe(ch)
}

// Collect implements the Collector interface
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collectors.Collect(ch)
}

// RecordRetry counts one retried attempt.
func (m *ClassifierMetrics) RecordRetry() {
	m.retriesTotal.Inc()
}

// RecordFailure counts a final classification failure by reason.
func (m *ClassifierMetrics) RecordFailure(reason string) {
	m.failuresByReason.WithLabelValues(reason).Inc()
}

// ObserveImageSize records the size of an uploaded image.
func (m *ClassifierMetrics) ObserveImageSize(bytes int) {
	m.imageSizeBytes.Observe(float64(bytes))
}

// ObserveRateLimitWait records time spent blocked on the rate limiter.
func (m *ClassifierMetrics) ObserveRateLimitWait(seconds float64) {
	m.rateLimitWait.Observe(seconds)
}
