package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// operationSet is the counter/histogram/error triple behind every Recorder
// implementation in this package. Embedding it promotes the Recorder methods.
type operationSet struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

func newOperationSet(prefix, what string, buckets []float64) operationSet {
	return operationSet{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_operations_total",
				Help: "Total number of " + what + " operations",
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_operation_duration_seconds",
				Help:    "Time taken by " + what + " operations",
				Buckets: buckets,
			},
			[]string{"operation"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_operation_errors_total",
				Help: "Total number of " + what + " operation errors",
			},
			[]string{"operation", "error_type"},
		),
	}
}

// RecordOperation implements Recorder.
func (o operationSet) RecordOperation(operation, status string) {
	o.total.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (o operationSet) RecordDuration(operation string, seconds float64) {
	o.duration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (o operationSet) RecordError(operation, errorType string) {
	o.errors.WithLabelValues(operation, errorType).Inc()
}

func (o operationSet) list() []prometheus.Collector {
	return []prometheus.Collector{o.total, o.duration, o.errors}
}

// collectorList implements prometheus.Collector over a fixed slice.
type collectorList []prometheus.Collector

// Describe implements the Collector interface
func (l collectorList) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range l {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (l collectorList) Collect(ch chan<- prometheus.Metric) {
	for _, c := range l {
		c.Collect(ch)
	}
}
