// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/place-reservation/internal/config"
	"github.com/iliyamo/place-reservation/internal/handler"
	"github.com/iliyamo/place-reservation/internal/middleware"
	"github.com/iliyamo/place-reservation/internal/observability"
)

// StaffRoles are the account types allowed on the staff API.
var StaffRoles = []string{"ADMIN", "SUPERVISOR", "AGENT"}

// Deps is everything the routes need.  Redis and Metrics may be nil.
type Deps struct {
	Reservations *handler.ReservationHandler
	Places       *handler.PlaceHandler
	Stats        *handler.StatsHandler
	Health       *handler.HealthHandler
	Metrics      *observability.Metrics
	Redis        *redis.Client
	JWTSecret    string
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
}

// New builds the Echo instance with the global middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()

	e.Use(middleware.RequestLogger())
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}
	RegisterOps(e, d)
	RegisterPublic(e, d)
	RegisterStaff(e, d)
	return e
}

// RegisterOps exposes /healthz and /metrics.
func RegisterOps(e *echo.Echo, d Deps) {
	if d.Health != nil {
		e.GET("/healthz", d.Health.Health)
	}
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}
}

// RegisterPublic registers the unauthenticated routes.  Requests are rate
// limited; the place lookup is served through the response cache.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1/public")
	g.POST("/places/:code/requests", d.Reservations.PublicRequest, middleware.NewTokenBucket(d.RateLimit, d.Redis))
	g.GET("/places/:code", d.Places.PublicGet, middleware.NewRedisCache(d.Cache, d.Redis))
}

// RegisterStaff registers the routes behind a staff token.
func RegisterStaff(e *echo.Echo, d Deps) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(d.JWTSecret))
	g.Use(middleware.RequireRole(StaffRoles...))

	g.GET("/places/:code", d.Places.Get)
	g.POST("/places/:code/close", d.Places.Close)
	g.POST("/places/:code/off", d.Places.SetOff)
	g.POST("/places/:code/requests", d.Reservations.Request)
	g.POST("/places/:code/reservations", d.Reservations.Book)
	g.GET("/places/:code/reservations", d.Reservations.ListByPlace)

	g.GET("/reservations/:code", d.Reservations.Get)
	g.PATCH("/reservations/:code", d.Reservations.Update)
	g.POST("/reservations/:code/accept", d.Reservations.Accept)
	g.POST("/reservations/:code/decline", d.Reservations.Decline)
	g.POST("/reservations/:code/extend", d.Reservations.Extend)
	g.POST("/reservations/:code/end", d.Reservations.End)

	g.GET("/stats/revenue", d.Stats.Revenue)
	g.GET("/stats/revenue/by-place", d.Stats.RevenueByPlace)
	g.GET("/stats/revenue/snapshot", d.Stats.RevenueSnapshot)
	g.GET("/stats/recap", d.Stats.Recap)
	g.GET("/stats/recap/breakdown", d.Stats.RecapBreakdown)
}
