package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/place-reservation/internal/datetime"
	"github.com/iliyamo/place-reservation/internal/model"
	"github.com/iliyamo/place-reservation/internal/repository"
)

type priceBody struct {
	Value       int64  `json:"value" validate:"gte=0"`
	Description string `json:"description" validate:"max=255"`
	Currency    string `json:"devise" validate:"max=8"`
}

func (p *priceBody) model() *model.Price {
	if p == nil {
		return nil
	}
	return &model.Price{Value: p.Value, Description: p.Description, Currency: p.Currency}
}

type createBody struct {
	FirstName      string     `json:"firstName" validate:"required,max=100"`
	LastName       string     `json:"lastName" validate:"max=100"`
	Phone          string     `json:"phone" validate:"required,max=32"`
	Identification string     `json:"identification" validate:"max=64"`
	TokenValue     string     `json:"tokenValue" validate:"max=255"`
	StartDate      string     `json:"startDate" validate:"omitempty,date"`
	EndDate        string     `json:"endDate" validate:"omitempty,date"`
	Price          *priceBody `json:"price"`
	Duration       string     `json:"duration" validate:"omitempty,oneof=DAY HALF_DAY NIGHT LONG_TIME"`
	StartNow       bool       `json:"startNow"`
}

func (b createBody) occupant() model.Occupant {
	return model.Occupant{
		FirstName:      strings.TrimSpace(b.FirstName),
		LastName:       strings.TrimSpace(b.LastName),
		Phone:          strings.TrimSpace(b.Phone),
		Identification: strings.TrimSpace(b.Identification),
		TokenValue:     b.TokenValue,
	}
}

type acceptBody struct {
	StartNow       bool       `json:"startNow"`
	Identification string     `json:"identification" validate:"max=64"`
	Price          *priceBody `json:"price"`
}

type extendBody struct {
	EndDate string `json:"endDate" validate:"required,date"`
	Price   int64  `json:"price" validate:"gte=0"`
}

type updateBody struct {
	FirstName *string    `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string    `json:"lastName" validate:"omitempty,max=100"`
	Phone     *string    `json:"phone" validate:"omitempty,max=32"`
	Duration  *string    `json:"duration" validate:"omitempty,oneof=DAY HALF_DAY NIGHT LONG_TIME"`
	StartDate *string    `json:"startDate" validate:"omitempty,date"`
	EndDate   *string    `json:"endDate" validate:"omitempty,date"`
	Price     *priceBody `json:"price"`
}

type closeBody struct {
	Reason string `json:"reason" validate:"max=255"`
}

type offBody struct {
	Off *bool `json:"off" validate:"required"`
}

// publicPlace is what guests see of a place.
type publicPlace struct {
	Code            string                `json:"code"`
	Name            string                `json:"name"`
	Company         string                `json:"company"`
	House           string                `json:"house"`
	OccupancyStatus model.OccupancyStatus `json:"currentStatus"`
	Prices          []model.PlacePrice    `json:"prices"`
}

func toPublicPlace(p model.Place) publicPlace {
	prices := p.Prices
	if prices == nil {
		prices = []model.PlacePrice{}
	}
	return publicPlace{
		Code:            p.Code,
		Name:            p.Name,
		Company:         p.Company,
		House:           p.House,
		OccupancyStatus: p.OccupancyStatus,
		Prices:          prices,
	}
}

// bind decodes and validates the request body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

func optionalDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := datetime.ParseAny(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalDatePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	return optionalDate(*s)
}

func optionalDuration(s *string) *model.Duration {
	if s == nil || *s == "" {
		return nil
	}
	d := model.Duration(*s)
	return &d
}

// splitList reads a comma separated query parameter.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseStatuses(raw string) ([]model.ReservationStatus, error) {
	var out []model.ReservationStatus
	for _, s := range splitList(raw) {
		st := model.ReservationStatus(strings.ToUpper(s))
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", errBadRequest, s)
		}
		out = append(out, st)
	}
	return out, nil
}

// queryWindow reads startDate and endDate query parameters.
func queryWindow(c echo.Context) (datetime.Window, error) {
	start, err := optionalDate(c.QueryParam("startDate"))
	if err != nil {
		return datetime.Window{}, err
	}
	end, err := optionalDate(c.QueryParam("endDate"))
	if err != nil {
		return datetime.Window{}, err
	}
	return datetime.Window{Start: start, End: end}, nil
}

func queryPage(c echo.Context) (repository.Page, error) {
	var p repository.Page
	for name, dst := range map[string]*int{"skip": &p.Skip, "limit": &p.Limit} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return repository.Page{}, fmt.Errorf("%w: invalid %s", errBadRequest, name)
		}
		*dst = n
	}
	return p.Normalized(), nil
}
