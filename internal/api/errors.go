package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/logger"
)

// ErrorResponse is the failure body of every endpoint. Success is always
// false so clients can tell a failed request from a negative verdict.
type ErrorResponse struct {
	Success       bool                `json:"success"`
	ErrorKind     detection.ErrorKind `json:"error_kind"`
	Error         string              `json:"error"`
	Message       string              `json:"message"`
	Reason        string              `json:"reason,omitempty"`      // classification failures
	Verdict       *detection.Verdict  `json:"verdict,omitempty"`     // persistence failures
	Detection     *UnsavedDetection   `json:"detection,omitempty"`   // persistence failures
	RetryToken    string              `json:"retry_token,omitempty"` // persistence failures
	CorrelationID string              `json:"correlation_id"`
}

// UnsavedDetection is a classified event that was not recorded.
type UnsavedDetection struct {
	Location   string `json:"location"`
	DetectedAt string `json:"detected_at"`
}

// StatusForKind maps an error kind onto an HTTP status code.
func StatusForKind(kind detection.ErrorKind) int {
	switch kind {
	case detection.KindInvalidInput:
		return http.StatusBadRequest
	case detection.KindClassificationFailure:
		return http.StatusBadGateway
	case detection.KindPersistenceFailure, detection.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the failure body for err.
func NewErrorResponse(err error, correlationID string) *ErrorResponse {
	resp := &ErrorResponse{
		ErrorKind:     detection.KindOf(err),
		Error:         errors.Scrub(err.Error()),
		CorrelationID: correlationID,
	}

	de, ok := detection.AsError(err)
	if !ok {
		resp.Message = "An internal error occurred"
		return resp
	}

	resp.Message = de.Message
	resp.Reason = de.Reason
	if de.Kind == detection.KindPersistenceFailure && de.Event != nil {
		v := de.Event.Verdict()
		resp.Verdict = &v
		resp.Detection = &UnsavedDetection{
			Location:   de.Event.Location,
			DetectedAt: de.Event.DetectedAt.Format(timeFormat),
		}
		resp.RetryToken = de.RetryToken
	}
	return resp
}

// correlationID returns the request ID assigned by the request ID
// middleware, or a fresh one.
func correlationID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleError logs err and writes the failure body with the status for its kind.
func (c *Controller) HandleError(ctx echo.Context, err error) error {
	resp := NewErrorResponse(err, correlationID(ctx))
	status := StatusForKind(resp.ErrorKind)

	fields := []logger.Field{
		logger.String("path", ctx.Path()),
		logger.String("error_kind", string(resp.ErrorKind)),
		logger.Int("status", status),
		logger.String("correlation_id", resp.CorrelationID),
		logger.Error(err),
	}
	log := c.log.WithContext(ctx.Request().Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
	} else {
		log.Debug("request rejected", fields...)
	}

	return ctx.JSON(status, resp)
}

// httpErrorHandler renders errors escaping handlers, such as unknown
// routes or oversized bodies, in the same failure shape.
func httpErrorHandler(log logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "An internal error occurred"
		kind := detection.KindInternal

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
			if status < http.StatusInternalServerError {
				kind = detection.KindInvalidInput
			}
		} else if de, ok := detection.AsError(err); ok {
			resp := NewErrorResponse(de, correlationID(c))
			writeError(c, log, StatusForKind(de.Kind), resp)
			return
		}

		if status >= http.StatusInternalServerError {
			log.WithContext(c.Request().Context()).Error("unhandled request error",
				logger.String("uri", c.Request().RequestURI),
				logger.Error(err))
		}

		writeError(c, log, status, &ErrorResponse{
			ErrorKind:     kind,
			Error:         errors.Scrub(err.Error()),
			Message:       message,
			CorrelationID: correlationID(c),
		})
	}
}

func writeError(c echo.Context, log logger.Logger, status int, resp *ErrorResponse) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, resp)
	}
	if err != nil {
		log.Warn("failed to write error response", logger.Error(err))
	}
}
