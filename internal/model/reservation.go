package model

import "time"

// ReservationStatus is a state of the reservation lifecycle.
type ReservationStatus string

const (
	StatusOnRequest  ReservationStatus = "ON_REQUEST"
	StatusAccepted   ReservationStatus = "ACCEPTED"
	StatusInProgress ReservationStatus = "IN_PROGRESS"
	StatusEnded      ReservationStatus = "ENDED"
	StatusCancelled  ReservationStatus = "CANCELLED"
)

// AllStatuses lists every reservation status in lifecycle order.
var AllStatuses = []ReservationStatus{
	StatusOnRequest, StatusAccepted, StatusInProgress, StatusEnded, StatusCancelled,
}

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s ReservationStatus) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// Duration is the booking formula chosen by the occupant.
type Duration string

const (
	DurationDay      Duration = "DAY"
	DurationHalfDay  Duration = "HALF_DAY"
	DurationNight    Duration = "NIGHT"
	DurationLongTime Duration = "LONG_TIME"
)

// DefaultCurrency is applied to prices created without an explicit currency.
const DefaultCurrency = "FCFA"

// Price is the amount agreed for a reservation.  Value is expressed in
// whole currency units.
type Price struct {
	Value       int64  `json:"value"`
	Description string `json:"description"`
	Currency    string `json:"devise"`
}

// NewPrice builds a price in the default currency.
func NewPrice(value int64) *Price {
	return &Price{Value: value, Currency: DefaultCurrency}
}

// Occupant is the snapshot of the person the reservation was made for.
// It is captured at creation and not refreshed from any profile.
type Occupant struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Phone          string `json:"phone"`
	Identification string `json:"identification,omitempty"`
	TokenValue     string `json:"tokenValue,omitempty"`
}

// FullName joins first and last name.
func (o Occupant) FullName() string {
	if o.LastName == "" {
		return o.FirstName
	}
	return o.FirstName + " " + o.LastName
}

// Reservation is one booking episode against a place.
//
// Fields:
//  Status             – lifecycle state.
//  Occupant           – denormalized occupant snapshot.
//  StartDate/EndDate  – requested window (nil for walk-ins).
//  RealStartDate      – when occupancy began.
//  RealEndDate        – when occupancy ended.
//  Price              – agreed amount, nil until known.
//  PlaceCurrentPrices – place price list at booking time.
//  Extended           – true once the stay has been extended.
//  Duration           – booking formula.
//  Place/Company/House – denormalized ownership codes.
//  CreatedBy/LastUpdatedBy – staff codes, empty for public requests.
//  IsPublicRequest    – created through the unauthenticated request path.
type Reservation struct {
	Auditable
	Status             ReservationStatus `json:"status"`                  // reservations.status
	Occupant           Occupant          `json:"user"`                    // reservations.occupant_* columns
	StartDate          *time.Time        `json:"startDate,omitempty"`     // reservations.start_date
	EndDate            *time.Time        `json:"endDate,omitempty"`       // reservations.end_date
	RealStartDate      *time.Time        `json:"realStartDate,omitempty"` // reservations.real_start_date
	RealEndDate        *time.Time        `json:"realEndDate,omitempty"`   // reservations.real_end_date
	Price              *Price            `json:"price,omitempty"`         // reservations.price_*
	PlaceCurrentPrices []PlacePrice      `json:"placeCurrentPrices"`      // reservations.place_prices (json)
	Extended           bool              `json:"isExtended"`              // reservations.is_extended
	Duration           Duration          `json:"duration,omitempty"`      // reservations.duration
	Place              string            `json:"place"`                   // reservations.place
	Company            string            `json:"company"`                 // reservations.company
	House              string            `json:"house"`                   // reservations.house
	CreatedBy          string            `json:"createdBy,omitempty"`     // reservations.created_by
	LastUpdatedBy      string            `json:"lastUpdatedBy,omitempty"` // reservations.last_updated_by
	IsPublicRequest    bool              `json:"isPublicRequest"`         // reservations.is_public_request
}

// PriceValue returns the agreed amount or zero when no price is set.
func (r Reservation) PriceValue() int64 {
	if r.Price == nil {
		return 0
	}
	return r.Price.Value
}
