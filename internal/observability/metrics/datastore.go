// Package metrics provides datastore metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for detection store operations
type DatastoreMetrics struct {
	operationSet

	registry *prometheus.Registry

	// Connection pool metrics
	dbConnectionsOpenGauge  prometheus.Gauge
	dbConnectionsInUseGauge prometheus.Gauge

	// Result size for read queries
	dbQueryResultSizeHist *prometheus.HistogramVec

	// Rows currently stored
	dbEventCountGauge prometheus.Gauge

	collectors collectorList
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.operationSet = newOperationSet("datastore_db", "database",
		prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15)) // 1ms to ~16s

	m.dbConnectionsOpenGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datastore_db_connections_open",
		Help: "Number of established database connections",
	})
	m.dbConnectionsInUseGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datastore_db_connections_in_use",
		Help: "Number of database connections currently in use",
	})
	m.dbQueryResultSizeHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_db_query_result_size",
			Help:    "Number of rows returned by read queries",
			Buckets: prometheus.ExponentialBuckets(1, BucketFactor2, BucketCount15),
		},
		[]string{"operation"},
	)
	m.dbEventCountGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datastore_detection_events",
		Help: "Number of detection events seen by the last full scan",
	})

	m.collectors = append(m.operationSet.list(),
		m.dbConnectionsOpenGauge,
		m.dbConnectionsInUseGauge,
		m.dbQueryResultSizeHist,
		m.dbEventCountGauge,
	)
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.collectors.Describe(ch)
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collectors.Collect(ch)
}

// UpdateConnectionMetrics records database/sql pool statistics.
func (m *DatastoreMetrics) UpdateConnectionMetrics(open, inUse int) {
	m.dbConnectionsOpenGauge.Set(float64(open))
	m.dbConnectionsInUseGauge.Set(float64(inUse))
}

// RecordQueryResultSize records the number of rows a read returned.
func (m *DatastoreMetrics) RecordQueryResultSize(operation string, rows int) {
	m.dbQueryResultSizeHist.WithLabelValues(operation).Observe(float64(rows))
	if operation == OpDbQueryAll {
		m.dbEventCountGauge.Set(float64(rows))
	}
}
