package model

// OccupancyStatus is the occupancy flag of a place.
type OccupancyStatus string

const (
	PlaceAvailable OccupancyStatus = "AVAILABLE"
	PlaceTaken     OccupancyStatus = "TAKEN"
	PlaceOff       OccupancyStatus = "OFF"
)

// Valid reports whether s is one of the known occupancy values.
func (s OccupancyStatus) Valid() bool {
	switch s {
	case PlaceAvailable, PlaceTaken, PlaceOff:
		return true
	}
	return false
}

// PlacePrice is one entry of a place's price list.
type PlacePrice struct {
	Duration    Duration `json:"duration"`
	Value       int64    `json:"value"`
	Description string   `json:"description,omitempty"`
}

// Place is a bookable unit owned by a company and located in a house.
// OccupancyStatus and ActiveReservation are written only by the
// reservation service; TAKEN holds exactly when ActiveReservation points
// at an IN_PROGRESS reservation.
//
// Fields:
//  Company                – owning organization code.
//  House                  – physical unit (site) code.
//  Name                   – display name.
//  OccupancyStatus        – AVAILABLE, TAKEN or OFF.
//  ActiveReservation      – code of the occupying reservation (nil unless TAKEN).
//  PendingRequests        – reservation codes still ON_REQUEST, oldest first.
//  HistoricalReservations – every reservation code ever linked, append-only.
//  Prices                 – current price list.
type Place struct {
	Auditable
	Company                string          `json:"company"`                     // places.company
	House                  string          `json:"house"`                       // places.house
	Name                   string          `json:"name"`                        // places.name
	OccupancyStatus        OccupancyStatus `json:"currentStatus"`               // places.occupancy_status
	ActiveReservation      *string         `json:"reservation,omitempty"`       // places.active_reservation (nullable)
	PendingRequests        []string        `json:"reservationsRequests"`        // place_reservations kind=PENDING
	HistoricalReservations []string        `json:"reservations"`                // place_reservations kind=HISTORY
	Prices                 []PlacePrice    `json:"prices"`                      // places.prices (json)
}

// IsTaken reports whether the place currently has an occupant.
func (p Place) IsTaken() bool { return p.OccupancyStatus == PlaceTaken }
