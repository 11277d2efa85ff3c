package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the service.  A nil *Metrics
// is valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	operations      *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	statsCache      *prometheus.CounterVec
}

// NewMetrics builds a private registry with the HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placeres_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "placeres_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placeres_reservation_operations_total",
		Help: "Lifecycle operations by name and outcome (ok, noop, resource_busy, invalid_transition, not_found, error...).",
	}, []string{"operation", "outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placeres_notifications_total",
		Help: "Notifications by stage (publish, deliver) and result.",
	}, []string{"stage", "result"})
	statsCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placeres_stats_cache_total",
		Help: "Statistics cache lookups by result (hit, miss, error).",
	}, []string{"result"})
	registry.MustRegister(requests, duration, operations, notifications, statsCache)
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		operations:      operations,
		notifications:   notifications,
		statsCache:      statsCache,
	}
}

// Handler serves the registry for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency of every request under its route
// pattern, so /v1/places/:code is one series whatever the code.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if m == nil {
			return next
		}
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				// the central error handler has not written yet
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unknown"
			}
			m.requestsTotal.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Operation counts one lifecycle call.
func (m *Metrics) Operation(name, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, outcome).Inc()
}

// Notification counts one notification event.
func (m *Metrics) Notification(stage, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(stage, result).Inc()
}

// StatsCache counts one cache lookup.
func (m *Metrics) StatsCache(result string) {
	if m == nil {
		return
	}
	m.statsCache.WithLabelValues(result).Inc()
}

// Registerer exposes the registry for extra collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}
