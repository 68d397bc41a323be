// Package datastore provides type aliases and integration with the observability metrics package
package datastore

import (
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

// Metrics is a type alias for metrics.DatastoreMetrics so callers can
// instrument a store without importing the metrics package.
type Metrics = metrics.DatastoreMetrics
