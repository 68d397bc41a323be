package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	client := New(cfg)
	t.Cleanup(client.Close)
	return client
}

func closeBody(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	client := New(nil)
	assert.Equal(t, DefaultTimeout, client.defaultTimeout)
	assert.Equal(t, defaultUserAgent, client.userAgent)

	custom := Config{DefaultTimeout: 5 * time.Second, UserAgent: "BearWatch-Test/1.0"}
	client = New(&custom)
	assert.Equal(t, 5*time.Second, client.defaultTimeout)
	assert.Equal(t, "BearWatch-Test/1.0", client.userAgent)

	zero := Config{}
	client = New(&zero)
	assert.Equal(t, DefaultTimeout, client.defaultTimeout)
	assert.Equal(t, Config{}, zero, "caller config must not be modified")
}

func TestDoSetsUserAgent(t *testing.T) {
	t.Parallel()

	var received atomic.Value
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		received.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	})
	client := newTestClient(t, &Config{UserAgent: "CameraTrap/2.0"})

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(t.Context(), req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "CameraTrap/2.0", received.Load())
}

func TestDoDefaultTimeout(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	client := newTestClient(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	closeBody(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoBodyReadableAfterDefaultTimeoutApplied(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"bear_detected":true}`))
	})
	client := newTestClient(t, &Config{DefaultTimeout: time.Second})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bear_detected":true}`, string(body))
	require.NoError(t, resp.Body.Close())
	require.NoError(t, resp.Body.Close(), "closing twice is safe")
}

func TestDoContextCancellation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(ctx, req)
	closeBody(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoHooks(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "http://classifier.local/predict",
		httpmock.NewStringResponder(http.StatusAccepted, ""))
	client := newTestClient(t, &Config{Transport: transport})

	var before, after atomic.Int32
	var status atomic.Int32
	client.SetBeforeRequestHook(func(*http.Request) { before.Add(1) })
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error) {
		after.Add(1)
		if err == nil {
			status.Store(int32(resp.StatusCode))
		}
	})

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, "http://classifier.local/predict", http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(t.Context(), req)
	require.NoError(t, err)
	closeBody(t, resp)

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, int32(http.StatusAccepted), status.Load())
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestDoNilRequest(t *testing.T) {
	t.Parallel()

	resp, err := New(nil).Do(t.Context(), nil) //nolint:bodyclose // nil response
	assert.Nil(t, resp)
	assert.Error(t, err)
}
