package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectionMetrics covers the submission, statistics and history pipelines.
type DetectionMetrics struct {
	operationSet

	registry *prometheus.Registry

	verdictsTotal      *prometheus.CounterVec
	confidenceHist     *prometheus.HistogramVec
	pendingRetries     prometheus.Gauge
	observerDispatches *prometheus.CounterVec

	collectors collectorList
}

// NewDetectionMetrics creates and registers detection pipeline metrics.
func NewDetectionMetrics(registry *prometheus.Registry) (*DetectionMetrics, error) {
	m := &DetectionMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DetectionMetrics) initMetrics() {
	m.operationSet = newOperationSet("detection", "detection pipeline",
		prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15))

	m.verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_verdicts_total",
			Help: "Recorded detections by verdict",
		},
		[]string{"bear_detected"},
	)
	m.confidenceHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detection_confidence",
			Help:    "Distribution of classifier confidence for recorded detections",
			Buckets: prometheus.LinearBuckets(0, BucketConfidenceWidth, BucketConfidenceCount),
		},
		[]string{"bear_detected"},
	)
	m.pendingRetries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detection_pending_persistence_retries",
		Help: "Classified detections waiting for a persistence retry",
	})
	m.observerDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_observer_dispatches_total",
			Help: "Detection events handed to observers",
		},
		[]string{"observer", "status"},
	)

	m.collectors = append(m.operationSet.list(),
		m.verdictsTotal,
		m.confidenceHist,
		m.pendingRetries,
		m.observerDispatches,
	)
}

// Describe implements the Collector interface
func (m *DetectionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.collectors.Describe(ch)
}

// Collect implements the Collector interface
func (m *DetectionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collectors.Collect(ch)
}

// RecordVerdict records a stored detection's verdict.
func (m *DetectionMetrics) RecordVerdict(bearDetected bool, confidence float64) {
	label := strconv.FormatBool(bearDetected)
	m.verdictsTotal.WithLabelValues(label).Inc()
	m.confidenceHist.WithLabelValues(label).Observe(confidence)
}

// SetPendingRetries sets the number of held retry tokens.
func (m *DetectionMetrics) SetPendingRetries(n int) {
	m.pendingRetries.Set(float64(n))
}

// RecordObserverDispatch counts one observer notification.
func (m *DetectionMetrics) RecordObserverDispatch(observer, status string) {
	m.observerDispatches.WithLabelValues(observer, status).Inc()
}
