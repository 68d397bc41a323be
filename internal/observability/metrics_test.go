package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Datastore.RecordOperation(metrics.OpDbInsert, metrics.StatusSuccess)
	m.Detection.RecordVerdict(true, 0.9)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `datastore_db_operations_total{operation="db_insert",status="success"} 1`)
	assert.Contains(t, string(body), `detection_verdicts_total{bear_detected="true"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewMetricsIndependentRegistries(t *testing.T) {
	t.Parallel()

	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err)
	assert.NotSame(t, a.Registry(), b.Registry())
}
