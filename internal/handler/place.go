package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/place-reservation/internal/middleware"
	"github.com/iliyamo/place-reservation/internal/service"
)

// PlaceHandler serves place lookups and the occupancy commands.
type PlaceHandler struct {
	svc *service.ReservationService
}

// NewPlaceHandler panics on a nil service.
func NewPlaceHandler(svc *service.ReservationService) *PlaceHandler {
	if svc == nil {
		panic("nil reservation service passed to NewPlaceHandler")
	}
	return &PlaceHandler{svc: svc}
}

// PublicGet handles GET /v1/public/places/:code.  Guests only see the
// name, location, occupancy and prices.
func (h *PlaceHandler) PublicGet(c echo.Context) error {
	p, err := h.svc.GetPlace(c.Request().Context(), "", c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": toPublicPlace(p)})
}

// Get handles GET /v1/places/:code.
func (h *PlaceHandler) Get(c echo.Context) error {
	p, err := h.svc.GetPlace(c.Request().Context(), middleware.Actor(c), c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": p})
}

// Close handles POST /v1/places/:code/close: the current occupant leaves
// and the place becomes available.
func (h *PlaceHandler) Close(c echo.Context) error {
	var body closeBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	p, err := h.svc.ClosePlace(c.Request().Context(), service.ClosePlaceInput{
		Actor:  middleware.Actor(c),
		Place:  c.Param("code"),
		Reason: body.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": p})
}

// SetOff handles POST /v1/places/:code/off with {"off": true|false}.
func (h *PlaceHandler) SetOff(c echo.Context) error {
	var body offBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	p, err := h.svc.SetPlaceOff(c.Request().Context(), service.PlaceStatusInput{
		Actor: middleware.Actor(c),
		Place: c.Param("code"),
		Off:   *body.Off,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": p})
}
