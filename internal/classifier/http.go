package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/httpclient"
	"github.com/bearwatch/bearwatch/internal/logger"
	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

const (
	// imageField is the multipart form field carrying the image.
	imageField = "image"

	// maxResponseBytes bounds how much of a classifier response is read.
	maxResponseBytes = 1 << 20

	userAgent = "BearWatch-Classifier"
)

// predictResponse is the classification service reply. The success/error
// envelope is optional; the verdict fields are required.
type predictResponse struct {
	Success      *bool    `json:"success"`
	Error        string   `json:"error"`
	BearDetected *bool    `json:"bear_detected"`
	Confidence   *float64 `json:"confidence"`
}

// HTTPGateway posts images to the classification service as multipart form
// uploads. Transient failures (transport errors, 429 and 5xx) are retried
// with exponential backoff, and outgoing calls share a rate limiter.
type HTTPGateway struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration

	client   *httpclient.Client
	limiter  *rate.Limiter
	metrics  *metrics.ClassifierMetrics
	recorder metrics.Recorder
	log      logger.Logger
}

// Option configures an HTTPGateway.
type Option func(*HTTPGateway)

// WithHTTPClient replaces the default outbound client.
func WithHTTPClient(c *httpclient.Client) Option {
	return func(g *HTTPGateway) { g.client = c }
}

// WithMetrics instruments the gateway.
func WithMetrics(m *metrics.ClassifierMetrics) Option {
	return func(g *HTTPGateway) {
		if m != nil {
			g.metrics = m
			g.recorder = m
		}
	}
}

// WithRecorder records operation metrics to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(g *HTTPGateway) { g.recorder = r }
}

// NewHTTPGateway validates settings and builds a gateway.
func NewHTTPGateway(settings *conf.ClassifierSettings, opts ...Option) (*HTTPGateway, error) {
	u, err := url.Parse(settings.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("invalid classifier endpoint %q", settings.Endpoint).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Timeout <= 0 {
		return nil, errors.Newf("classifier timeout must be positive, got %s", settings.Timeout).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if settings.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(settings.RateLimit), max(settings.Burst, 1))
	}

	g := &HTTPGateway{
		endpoint:   settings.Endpoint,
		apiKey:     settings.APIKey,
		timeout:    settings.Timeout,
		maxRetries: max(settings.MaxRetries, 0),
		retryDelay: settings.RetryDelay,
		limiter:    limiter,
		recorder:   metrics.NoOpRecorder{},
		log:        GetLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.client == nil {
		g.client = httpclient.New(&httpclient.Config{
			DefaultTimeout: settings.Timeout,
			UserAgent:      userAgent,
		})
	}
	return g, nil
}

// Classify sends image to the classification service and returns its
// verdict verbatim.
func (g *HTTPGateway) Classify(ctx context.Context, image []byte) (detection.Verdict, error) {
	if len(image) == 0 {
		return detection.Verdict{}, detection.ClassificationFailure(detection.ReasonRejected,
			errors.NewStd("image is empty"))
	}

	start := time.Now()
	if g.metrics != nil {
		g.metrics.ObserveImageSize(len(image))
	}

	verdict, err := g.classifyWithRetry(ctx, image)

	g.recorder.RecordDuration(metrics.OpClassify, time.Since(start).Seconds())
	if err != nil {
		reason := detection.ReasonUnavailable
		if de, ok := detection.AsError(err); ok && de.Reason != "" {
			reason = de.Reason
		}
		g.recorder.RecordOperation(metrics.OpClassify, metrics.StatusError)
		g.recorder.RecordError(metrics.OpClassify, reason)
		if g.metrics != nil {
			g.metrics.RecordFailure(reason)
		}
		g.log.Warn("classification failed",
			logger.String("reason", reason),
			logger.Int("image_bytes", len(image)),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return detection.Verdict{}, err
	}

	g.recorder.RecordOperation(metrics.OpClassify, metrics.StatusSuccess)
	g.log.Debug("image classified",
		logger.Bool("bear_detected", verdict.BearDetected),
		logger.Float64("confidence", verdict.Confidence),
		logger.Duration("elapsed", time.Since(start)))
	return verdict, nil
}

func (g *HTTPGateway) classifyWithRetry(ctx context.Context, image []byte) (detection.Verdict, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.retryDelay << (attempt - 1)
			g.log.Debug("retrying classification",
				logger.Int("attempt", attempt+1),
				logger.Duration("delay", delay),
				logger.Error(lastErr))
			if g.metrics != nil {
				g.metrics.RecordRetry()
			}
			if err := sleepCtx(ctx, delay); err != nil {
				return detection.Verdict{}, contextFailure(err, lastErr)
			}
		}

		if err := g.waitRateLimit(ctx); err != nil {
			return detection.Verdict{}, err
		}

		verdict, retryable, err := g.attempt(ctx, image)
		if err == nil {
			return verdict, nil
		}
		if !retryable {
			return detection.Verdict{}, err
		}
		lastErr = err
	}
	return detection.Verdict{}, lastErr
}

func (g *HTTPGateway) waitRateLimit(ctx context.Context) error {
	waitStart := time.Now()
	err := g.limiter.Wait(ctx)
	if g.metrics != nil {
		g.metrics.ObserveRateLimitWait(time.Since(waitStart).Seconds())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contextFailure(ctxErr, err)
		}
		// Wait fails early when the deadline would pass before a token frees up
		return detection.ClassificationFailure(detection.ReasonTimeout,
			g.enhance(err, errors.CategoryLimit, "rate_limit"))
	}
	return nil
}

// attempt performs a single request. retryable reports whether a failure
// is transient.
func (g *HTTPGateway) attempt(ctx context.Context, image []byte) (v detection.Verdict, retryable bool, err error) {
	start := time.Now()
	defer func() {
		g.recorder.RecordDuration(metrics.OpClassifyAttempt, time.Since(start).Seconds())
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
		}
		g.recorder.RecordOperation(metrics.OpClassifyAttempt, status)
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := g.newRequest(attemptCtx, image)
	if err != nil {
		return v, false, detection.ClassificationFailure(detection.ReasonUnavailable,
			g.enhance(err, errors.CategoryHTTP, "build_request"))
	}

	resp, err := g.client.Do(attemptCtx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return v, false, contextFailure(ctxErr, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return v, false, detection.ClassificationFailure(detection.ReasonTimeout,
				g.enhance(err, errors.CategoryTimeout, "request"))
		}
		return v, true, detection.ClassificationFailure(detection.ReasonUnavailable,
			g.enhance(err, errors.CategoryNetwork, "request"))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return v, false, detection.ClassificationFailure(detection.ReasonTimeout,
				g.enhance(err, errors.CategoryTimeout, "read_response"))
		}
		return v, true, detection.ClassificationFailure(detection.ReasonUnavailable,
			g.enhance(err, errors.CategoryNetwork, "read_response"))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return v, true, detection.ClassificationFailure(detection.ReasonUnavailable,
			g.statusError(resp.StatusCode, body))
	case resp.StatusCode >= http.StatusBadRequest:
		return v, false, detection.ClassificationFailure(detection.ReasonRejected,
			g.statusError(resp.StatusCode, body))
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return v, false, detection.ClassificationFailure(detection.ReasonMalformedResponse,
			g.statusError(resp.StatusCode, body))
	}

	v, err = parseVerdict(body)
	if err != nil {
		return v, false, err
	}
	return v, false, nil
}

func (g *HTTPGateway) newRequest(ctx context.Context, image []byte) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	contentType := http.DetectContentType(image)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, imageField, "upload"+extensionFor(contentType)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	return req, nil
}

// parseVerdict decodes and validates a 2xx response body.
func parseVerdict(body []byte) (detection.Verdict, error) {
	var pr predictResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return detection.Verdict{}, detection.ClassificationFailure(detection.ReasonMalformedResponse,
			errors.New(err).Component("classifier").Category(errors.CategoryClassification).
				Context("operation", "decode_response").Build())
	}

	if pr.Success != nil && !*pr.Success {
		msg := pr.Error
		if msg == "" {
			msg = "classifier reported failure"
		}
		return detection.Verdict{}, detection.ClassificationFailure(detection.ReasonRejected,
			errors.Newf("classifier: %s", msg).Component("classifier").
				Category(errors.CategoryClassification).Build())
	}

	if pr.BearDetected == nil || pr.Confidence == nil {
		return detection.Verdict{}, detection.ClassificationFailure(detection.ReasonMalformedResponse,
			errors.Newf("classifier response lacks bear_detected or confidence").Component("classifier").
				Category(errors.CategoryClassification).Build())
	}

	v := detection.Verdict{BearDetected: *pr.BearDetected, Confidence: *pr.Confidence}
	if !v.Valid() {
		return detection.Verdict{}, detection.ClassificationFailure(detection.ReasonMalformedResponse,
			errors.Newf("classifier confidence %v outside [0, 1]", v.Confidence).Component("classifier").
				Category(errors.CategoryClassification).Build())
	}
	return v, nil
}

func (g *HTTPGateway) statusError(status int, body []byte) error {
	msg := http.StatusText(status)
	var pr predictResponse
	if json.Unmarshal(body, &pr) == nil && pr.Error != "" {
		msg = pr.Error
	}
	return errors.Newf("classifier returned HTTP %d: %s", status, msg).
		Component("classifier").
		Category(errors.CategoryHTTP).
		Context("status_code", status).
		NetworkContext(g.endpoint, g.timeout).
		Build()
}

func (g *HTTPGateway) enhance(err error, category errors.ErrorCategory, operation string) error {
	return errors.New(err).
		Component("classifier").
		Category(category).
		Context("operation", operation).
		NetworkContext(g.endpoint, g.timeout).
		Build()
}

// contextFailure maps cancellation of the caller's context to a
// classification failure.
func contextFailure(ctxErr, cause error) error {
	if cause == nil {
		cause = ctxErr
	}
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return detection.ClassificationFailure(detection.ReasonTimeout, cause)
	}
	return detection.ClassificationFailure(detection.ReasonUnavailable, cause)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}

// Close releases idle connections.
func (g *HTTPGateway) Close() {
	g.client.Close()
}
