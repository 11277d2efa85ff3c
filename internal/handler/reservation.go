package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/place-reservation/internal/middleware"
	"github.com/iliyamo/place-reservation/internal/model"
	"github.com/iliyamo/place-reservation/internal/service"
)

// ReservationHandler exposes the reservation lifecycle over HTTP.
type ReservationHandler struct {
	svc *service.ReservationService
}

// NewReservationHandler panics on a nil service.
func NewReservationHandler(svc *service.ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil reservation service passed to NewReservationHandler")
	}
	return &ReservationHandler{svc: svc}
}

// PublicRequest handles POST /v1/public/places/:code/requests.
func (h *ReservationHandler) PublicRequest(c echo.Context) error {
	return h.create(c, "", h.svc.Request)
}

// Request handles POST /v1/places/:code/requests, a request recorded by
// staff on behalf of a customer.
func (h *ReservationHandler) Request(c echo.Context) error {
	return h.create(c, middleware.Actor(c), h.svc.Request)
}

// Book handles POST /v1/places/:code/reservations.  With startNow the
// occupant moves in at once.
func (h *ReservationHandler) Book(c echo.Context) error {
	return h.create(c, middleware.Actor(c), h.svc.BookDirect)
}

func (h *ReservationHandler) create(c echo.Context, actor string, op func(context.Context, service.CreateInput) (model.Reservation, error)) error {
	var body createBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	start, err := optionalDate(body.StartDate)
	if err != nil {
		return writeError(c, err)
	}
	end, err := optionalDate(body.EndDate)
	if err != nil {
		return writeError(c, err)
	}
	r, err := op(c.Request().Context(), service.CreateInput{
		Actor:     actor,
		Place:     c.Param("code"),
		Occupant:  body.occupant(),
		StartDate: start,
		EndDate:   end,
		Price:     body.Price.model(),
		Duration:  model.Duration(body.Duration),
		StartNow:  body.StartNow && actor != "",
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": r})
}

// Get handles GET /v1/reservations/:code.
func (h *ReservationHandler) Get(c echo.Context) error {
	r, err := h.svc.GetReservation(c.Request().Context(), middleware.Actor(c), c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// Update handles PATCH /v1/reservations/:code.
func (h *ReservationHandler) Update(c echo.Context) error {
	var body updateBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	start, err := optionalDatePtr(body.StartDate)
	if err != nil {
		return writeError(c, err)
	}
	end, err := optionalDatePtr(body.EndDate)
	if err != nil {
		return writeError(c, err)
	}
	r, err := h.svc.Update(c.Request().Context(), service.UpdateInput{
		Actor:       middleware.Actor(c),
		Reservation: c.Param("code"),
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		Phone:       body.Phone,
		Duration:    optionalDuration(body.Duration),
		StartDate:   start,
		EndDate:     end,
		Price:       body.Price.model(),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// Accept handles POST /v1/reservations/:code/accept.  A 409 with
// retryable=true means another reservation took the place first.
func (h *ReservationHandler) Accept(c echo.Context) error {
	var body acceptBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	r, err := h.svc.Accept(c.Request().Context(), service.AcceptInput{
		Actor:          middleware.Actor(c),
		Reservation:    c.Param("code"),
		StartNow:       body.StartNow,
		Identification: body.Identification,
		Price:          body.Price.model(),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// Decline handles POST /v1/reservations/:code/decline.
func (h *ReservationHandler) Decline(c echo.Context) error {
	r, err := h.svc.Decline(c.Request().Context(), service.ActionInput{
		Actor:       middleware.Actor(c),
		Reservation: c.Param("code"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// Extend handles POST /v1/reservations/:code/extend.
func (h *ReservationHandler) Extend(c echo.Context) error {
	var body extendBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	end, err := optionalDate(body.EndDate)
	if err != nil {
		return writeError(c, err)
	}
	r, err := h.svc.Extend(c.Request().Context(), service.ExtendInput{
		Actor:       middleware.Actor(c),
		Reservation: c.Param("code"),
		EndDate:     *end,
		Price:       body.Price,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// End handles POST /v1/reservations/:code/end.
func (h *ReservationHandler) End(c echo.Context) error {
	r, err := h.svc.End(c.Request().Context(), service.ActionInput{
		Actor:       middleware.Actor(c),
		Reservation: c.Param("code"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// ListByPlace handles GET /v1/places/:code/reservations with optional
// status, startDate, endDate, skip and limit query parameters.
func (h *ReservationHandler) ListByPlace(c echo.Context) error {
	statuses, err := parseStatuses(c.QueryParam("status"))
	if err != nil {
		return writeError(c, err)
	}
	w, err := queryWindow(c)
	if err != nil {
		return writeError(c, err)
	}
	page, err := queryPage(c)
	if err != nil {
		return writeError(c, err)
	}
	items, err := h.svc.ListByPlaces(c.Request().Context(), service.ListInput{
		Actor:    middleware.Actor(c),
		Places:   []string{c.Param("code")},
		Statuses: statuses,
		Window:   w,
		Page:     page,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}
