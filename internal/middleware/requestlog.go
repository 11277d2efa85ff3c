package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/place-reservation/internal/logger"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestLogger tags every request with an id, taken from the incoming
// X-Request-ID header or generated, and logs one line when it completes.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(HeaderRequestID)
			if id == "" {
				id = logger.NewRequestID()
			}
			c.SetRequest(req.WithContext(logger.ContextWithRequestID(req.Context(), id)))
			c.Response().Header().Set(HeaderRequestID, id)

			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo write the error so the logged status is the real one
				c.Error(err)
			}

			status := c.Response().Status
			log := logger.WithContext(c.Request().Context())
			attrs := []any{
				"method", req.Method,
				"path", c.Path(),
				"status", status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
			}
			switch {
			case status >= 500:
				log.Error("request", append(attrs, "error", err)...)
			case status >= 400:
				log.Warn("request", attrs...)
			default:
				log.Info("request", attrs...)
			}
			return nil
		}
	}
}
