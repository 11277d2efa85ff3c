package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/place-reservation/internal/datetime"
	"github.com/iliyamo/place-reservation/internal/logger"
	"github.com/iliyamo/place-reservation/internal/service"
)

// errBadRequest marks malformed input found by the handlers themselves.
var errBadRequest = errors.New("bad request")

var kindStatus = map[service.Kind]int{
	service.KindNotFound:          http.StatusNotFound,
	service.KindInactive:          http.StatusGone,
	service.KindInvalidTransition: http.StatusConflict,
	service.KindResourceBusy:      http.StatusConflict,
	service.KindUnauthorized:      http.StatusForbidden,
}

// writeError renders err as the JSON error body used across the API.
func writeError(c echo.Context, err error) error {
	var (
		domain *service.Error
		fields validator.ValidationErrors
		herr   *echo.HTTPError
	)
	switch {
	case errors.As(err, &domain):
		return c.JSON(kindStatus[domain.Kind], echo.Map{
			"error":     domain.Error(),
			"kind":      domain.Kind,
			"retryable": domain.Retryable(),
		})
	case errors.As(err, &fields):
		details := make(map[string]string, len(fields))
		for _, f := range fields {
			details[f.Field()] = f.Tag()
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": details})
	case errors.Is(err, errBadRequest),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, datetime.ErrInvalidDate):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.As(err, &herr):
		// binding failures from echo
		return c.JSON(herr.Code, echo.Map{"error": herr.Message})
	}
	logger.WithContext(c.Request().Context()).Error("request failed", "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
