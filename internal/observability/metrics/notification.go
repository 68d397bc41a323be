// Package metrics provides custom Prometheus metrics for notification operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains Prometheus metrics for bear alert delivery.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec // deliveries by status
	DeliveryDuration prometheus.Histogram   // send latency
	SuppressedTotal  *prometheus.CounterVec // alerts not sent, by reason
	LastAlertTime    *prometheus.GaugeVec   // timestamp of the last alert per location

	registry *prometheus.Registry
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total bear alert deliveries by status",
		},
		[]string{"status"},
	)
	m.DeliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notification_delivery_duration_seconds",
		Help:    "Time taken to deliver a bear alert to all services",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})
	m.SuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_suppressed_total",
			Help: "Bear alerts not sent, by reason (low_confidence, cooldown)",
		},
		[]string{"reason"},
	)
	m.LastAlertTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_last_alert_time_seconds",
			Help: "Timestamp of the last bear alert sent for a location",
		},
		[]string{"location"},
	)
}

// RecordDelivery records the outcome and latency of one alert.
func (m *NotificationMetrics) RecordDelivery(status string, seconds float64) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryDuration.Observe(seconds)
}

// RecordSuppressed counts an alert that was not sent.
func (m *NotificationMetrics) RecordSuppressed(reason string) {
	m.SuppressedTotal.WithLabelValues(reason).Inc()
}

// MarkAlerted sets the last-alert timestamp for location to now.
func (m *NotificationMetrics) MarkAlerted(location string) {
	m.LastAlertTime.WithLabelValues(location).SetToCurrentTime()
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.list().Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.list().Collect(ch)
}

func (m *NotificationMetrics) list() collectorList {
	return collectorList{m.DeliveriesTotal, m.DeliveryDuration, m.SuppressedTotal, m.LastAlertTime}
}
