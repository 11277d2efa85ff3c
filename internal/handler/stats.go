package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/place-reservation/internal/middleware"
	"github.com/iliyamo/place-reservation/internal/service"
)

// StatsHandler exposes the reporting aggregates.  Every report takes a
// places list and optional startDate and endDate query parameters and is
// restricted to the caller's company.
type StatsHandler struct {
	svc *service.StatsService
}

// NewStatsHandler panics on a nil service.
func NewStatsHandler(svc *service.StatsService) *StatsHandler {
	if svc == nil {
		panic("nil stats service passed to NewStatsHandler")
	}
	return &StatsHandler{svc: svc}
}

func (h *StatsHandler) query(c echo.Context) (service.StatsQuery, error) {
	company := middleware.Company(c)
	if company == "" {
		return service.StatsQuery{}, echo.NewHTTPError(http.StatusForbidden, "token carries no company")
	}
	statuses, err := parseStatuses(c.QueryParam("status"))
	if err != nil {
		return service.StatsQuery{}, err
	}
	w, err := queryWindow(c)
	if err != nil {
		return service.StatsQuery{}, err
	}
	return service.StatsQuery{
		Company:  company,
		Places:   splitList(c.QueryParam("places")),
		Statuses: statuses,
		Window:   w,
	}, nil
}

// Revenue handles GET /v1/stats/revenue.
func (h *StatsHandler) Revenue(c echo.Context) error {
	q, err := h.query(c)
	if err != nil {
		return writeError(c, err)
	}
	v, err := h.svc.GetRevenue(c.Request().Context(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revenue": v})
}

// Recap handles GET /v1/stats/recap; status narrows the count.
func (h *StatsHandler) Recap(c echo.Context) error {
	q, err := h.query(c)
	if err != nil {
		return writeError(c, err)
	}
	n, err := h.svc.GetRecap(c.Request().Context(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"count": n})
}

// RecapBreakdown handles GET /v1/stats/recap/breakdown.
func (h *StatsHandler) RecapBreakdown(c echo.Context) error {
	q, err := h.query(c)
	if err != nil {
		return writeError(c, err)
	}
	b, err := h.svc.GetRecapBreakdown(c.Request().Context(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": b})
}

// RevenueByPlace handles GET /v1/stats/revenue/by-place.
func (h *StatsHandler) RevenueByPlace(c echo.Context) error {
	q, err := h.query(c)
	if err != nil {
		return writeError(c, err)
	}
	m, err := h.svc.GetRevenueByPlace(c.Request().Context(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": m})
}

// RevenueSnapshot handles GET /v1/stats/revenue/snapshot, the revenue of
// today, this week and this month.
func (h *StatsHandler) RevenueSnapshot(c echo.Context) error {
	q, err := h.query(c)
	if err != nil {
		return writeError(c, err)
	}
	s, err := h.svc.GetRevenueSnapshot(c.Request().Context(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": s})
}
