package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bearwatch/bearwatch/internal/observability/metrics"
)

// NewMetrics records request counts, latency and response size per route
// template, so path parameters do not explode label cardinality.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if m == nil {
			return next
		}
		return func(c echo.Context) error {
			m.InFlightInc()
			defer m.InFlightDec()

			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the response so Status is final
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.RecordRequest(c.Request().Method, route, c.Response().Status,
				time.Since(start).Seconds(), c.Response().Size)
			return nil
		}
	}
}
