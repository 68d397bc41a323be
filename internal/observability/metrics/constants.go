// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation names recorded through the Recorder interface.
const (
	// OpDbInsert is a detection append.
	OpDbInsert = "db_insert"
	// OpDbQueryAll is a full scan used for statistics.
	OpDbQueryAll = "db_query_all"
	// OpDbQueryRecent is a bounded newest-first read.
	OpDbQueryRecent = "db_query_recent"
	// OpDbPing is a reachability check.
	OpDbPing = "db_ping"

	// OpClassify is one classification request including retries.
	OpClassify = "classify"
	// OpClassifyAttempt is a single HTTP attempt to the classifier.
	OpClassifyAttempt = "classify_attempt"

	// OpSubmit is a full detection submission.
	OpSubmit = "submit"
	// OpRetryPersist is a persistence retry using a retry token.
	OpRetryPersist = "retry_persist"
	// OpStatistics is a statistics computation.
	OpStatistics = "statistics"
	// OpRecent is a recent-history query.
	OpRecent = "recent"

	// OpMQTTPublish is a detection publish to the broker.
	OpMQTTPublish = "mqtt_publish"
	// OpNotify is a bear alert delivery.
	OpNotify = "notify"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms.
	BucketStart10ms = 0.01
	// BucketStart1KB is the starting bucket for 1KB histograms.
	BucketStart1KB = 1024.0
	// BucketConfidenceWidth is the width of each confidence bucket (0.0 to 1.0).
	BucketConfidenceWidth = 0.1
	// BucketConfidenceCount is the number of confidence buckets.
	BucketConfidenceCount = 11

	// BucketFactor2 is the common exponential growth factor.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics server.
const ShutdownTimeout = 5 * time.Second
