package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler answers load balancer probes.  Required checks turn the
// answer into 503 when they fail; optional ones are only reported.
type HealthHandler struct {
	required map[string]Check
	optional map[string]Check
}

// NewHealthHandler builds an empty handler; add checks with Require and
// Report.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{required: map[string]Check{}, optional: map[string]Check{}}
}

// Require registers a check whose failure makes the service unhealthy.
func (h *HealthHandler) Require(name string, c Check) { h.required[name] = c }

// Report registers a check for a dependency the service can run without.
func (h *HealthHandler) Report(name string, c Check) { h.optional[name] = c }

// Health handles GET /healthz.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := map[string]string{}
	for name, check := range h.required {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status, code = "unavailable", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	for name, check := range h.optional {
		if err := check(ctx); err != nil {
			checks[name] = "degraded: " + err.Error()
			if code == http.StatusOK {
				status = "degraded"
			}
			continue
		}
		checks[name] = "ok"
	}
	return c.JSON(code, echo.Map{"status": status, "checks": checks})
}
