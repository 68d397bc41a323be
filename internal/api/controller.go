package api

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/logger"
	"github.com/bearwatch/bearwatch/internal/submission"
)

const timeFormat = time.RFC3339

// Submitter runs image submissions and persistence retries.
type Submitter interface {
	Submit(ctx context.Context, req submission.Request) (*detection.Event, error)
	RetryPersist(ctx context.Context, token string) (*detection.Event, error)
	Discard(token string) error
}

// StatisticsProvider computes the statistics snapshot.
type StatisticsProvider interface {
	ComputeStatistics(ctx context.Context) (*detection.StatisticsSnapshot, error)
}

// HistoryProvider returns the most recent detections.
type HistoryProvider interface {
	Recent(ctx context.Context, limit int) ([]detection.Event, error)
}

// DetectionResponse is the body of a successful submission or retry.
type DetectionResponse struct {
	Success      bool             `json:"success"`
	BearDetected bool             `json:"bear_detected"`
	Confidence   float64          `json:"confidence"`
	Detection    *detection.Event `json:"detection"`
}

// StatisticsResponse wraps the statistics snapshot.
type StatisticsResponse struct {
	Success    bool                          `json:"success"`
	Statistics *detection.StatisticsSnapshot `json:"statistics"`
}

// RecentResponse wraps the recent detections.
type RecentResponse struct {
	Success    bool              `json:"success"`
	Detections []detection.Event `json:"detections"`
}

// RetryRequest is the body of POST /api/detect/retry.
type RetryRequest struct {
	RetryToken string `json:"retry_token"`
}

// Controller serves the detection API.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	submissions Submitter
	statistics  StatisticsProvider
	history     HistoryProvider
	health      *HealthChecker

	maxImageSize int64
	recentLimit  int
	log          logger.Logger
}

// NewController registers the API routes on e under /api.
func NewController(e *echo.Echo, cfg *Config, submissions Submitter, statistics StatisticsProvider, history HistoryProvider, health *HealthChecker) *Controller {
	c := &Controller{
		Echo:         e,
		Group:        e.Group("/api"),
		submissions:  submissions,
		statistics:   statistics,
		history:      history,
		health:       health,
		maxImageSize: cfg.MaxImageSize,
		recentLimit:  cfg.RecentLimit,
		log:          GetLogger(),
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.POST("/detect", c.SubmitDetection)
	c.Group.POST("/detect/retry", c.RetryDetection)
	c.Group.DELETE("/detect/retry/:token", c.DiscardDetection)

	c.Group.GET("/statistics", c.GetStatistics)
	c.Group.GET("/recent-detections", c.GetRecentDetections)

	if c.health != nil {
		c.Group.GET("/health", c.health.Handle)
	}
}

// SubmitDetection handles POST /api/detect.
//
// Multipart fields: image (file, required), location (optional) and
// captured_at (RFC 3339, optional).
func (c *Controller) SubmitDetection(ctx echo.Context) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, detection.InvalidInput("multipart field \"image\" is required"))
	}
	img, err := c.readImage(file)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	req := submission.Request{
		Image:    img,
		Location: ctx.FormValue("location"),
	}
	if raw := strings.TrimSpace(ctx.FormValue("captured_at")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.HandleError(ctx, detection.InvalidInput("captured_at must be an RFC 3339 timestamp"))
		}
		req.CapturedAt = &t
	}

	ev, err := c.submissions.Submit(ctx.Request().Context(), req)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, NewDetectionResponse(ev))
}

// readImage reads at most one byte past the size limit so the service can
// reject oversized images without buffering them whole.
func (c *Controller) readImage(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, detection.InvalidInput("image upload could not be read")
	}
	defer f.Close()

	var r io.Reader = f
	if c.maxImageSize > 0 {
		r = io.LimitReader(f, c.maxImageSize+1)
	}
	img, err := io.ReadAll(r)
	if err != nil {
		return nil, detection.InvalidInput("image upload could not be read")
	}
	return img, nil
}

// RetryDetection handles POST /api/detect/retry.
func (c *Controller) RetryDetection(ctx echo.Context) error {
	var req RetryRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, detection.InvalidInput("request body must be JSON with a retry_token"))
	}

	ev, err := c.submissions.RetryPersist(ctx.Request().Context(), strings.TrimSpace(req.RetryToken))
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, NewDetectionResponse(ev))
}

// DiscardDetection handles DELETE /api/detect/retry/:token.
func (c *Controller) DiscardDetection(ctx echo.Context) error {
	if err := c.submissions.Discard(ctx.Param("token")); err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"success": true})
}

// GetStatistics handles GET /api/statistics.
func (c *Controller) GetStatistics(ctx echo.Context) error {
	stats, err := c.statistics.ComputeStatistics(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, StatisticsResponse{Success: true, Statistics: stats})
}

// GetRecentDetections handles GET /api/recent-detections?limit=N.
func (c *Controller) GetRecentDetections(ctx echo.Context) error {
	limit := c.recentLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.HandleError(ctx, detection.InvalidInput("limit must be an integer, got %q", raw))
		}
		limit = n
	}

	events, err := c.history.Recent(ctx.Request().Context(), limit)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, RecentResponse{Success: true, Detections: events})
}

// NewDetectionResponse wraps a recorded event in the success body.
func NewDetectionResponse(ev *detection.Event) DetectionResponse {
	return DetectionResponse{
		Success:      true,
		BearDetected: ev.BearDetected,
		Confidence:   ev.Confidence,
		Detection:    ev,
	}
}
