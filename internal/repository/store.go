package repository

import (
	"context"
	"time"

	"github.com/iliyamo/place-reservation/internal/datetime"
	"github.com/iliyamo/place-reservation/internal/model"
)

// Page bounds a list query.
type Page struct {
	Skip  int
	Limit int
}

// DefaultPageLimit applies when a caller passes a zero limit.
const DefaultPageLimit = 50

// MaxPageLimit caps any single page.
const MaxPageLimit = 500

// Normalized clamps Skip and Limit into the accepted range.
func (p Page) Normalized() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// ReservationFilter selects reservations by company, place, status and the
// window their requested StartDate falls in, or their EndDate when
// ByEndDate is set.  Empty values and an open window do not filter.
// Soft-deleted reservations are never returned.
type ReservationFilter struct {
	Company   string
	Places    []string
	Statuses  []model.ReservationStatus
	Window    datetime.Window
	ByEndDate bool
}

// windowDate returns the date the window applies to.
func (f ReservationFilter) windowDate(r model.Reservation) *time.Time {
	if f.ByEndDate {
		return r.EndDate
	}
	return r.StartDate
}

// Matches reports whether r satisfies the filter.
func (f ReservationFilter) Matches(r model.Reservation) bool {
	if r.IsDeleted {
		return false
	}
	if f.Company != "" && r.Company != f.Company {
		return false
	}
	if len(f.Places) > 0 && !containsString(f.Places, r.Place) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
		return false
	}
	if !f.Window.IsZero() {
		d := f.windowDate(r)
		if d == nil || !f.Window.Contains(*d) {
			return false
		}
	}
	return true
}

// ReservationUpdate is a partial update.  Nil fields are left untouched.
// When ExpectStatus is non-empty the write is conditional: it applies only
// if the stored status is one of the listed values, otherwise the store
// returns ErrConflict and nothing changes.
type ReservationUpdate struct {
	ExpectStatus []model.ReservationStatus

	Status        *model.ReservationStatus
	Occupant      *model.Occupant
	StartDate     *time.Time
	EndDate       *time.Time
	RealStartDate *time.Time
	RealEndDate   *time.Time
	Price         *model.Price
	Extended      *bool
	Duration      *model.Duration
	LastUpdatedBy *string
	LastUpdatedAt time.Time
}

// Apply copies the set fields onto r.
func (u ReservationUpdate) Apply(r *model.Reservation) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.Occupant != nil {
		r.Occupant = *u.Occupant
	}
	if u.StartDate != nil {
		r.StartDate = copyTime(u.StartDate)
	}
	if u.EndDate != nil {
		r.EndDate = copyTime(u.EndDate)
	}
	if u.RealStartDate != nil {
		r.RealStartDate = copyTime(u.RealStartDate)
	}
	if u.RealEndDate != nil {
		r.RealEndDate = copyTime(u.RealEndDate)
	}
	if u.Price != nil {
		p := *u.Price
		r.Price = &p
	}
	if u.Extended != nil {
		r.Extended = *u.Extended
	}
	if u.Duration != nil {
		r.Duration = *u.Duration
	}
	if u.LastUpdatedBy != nil {
		r.LastUpdatedBy = *u.LastUpdatedBy
	}
	if !u.LastUpdatedAt.IsZero() {
		r.LastUpdatedAt = u.LastUpdatedAt
	}
}

// PlaceStore persists places and their occupancy flag.
type PlaceStore interface {
	FindByCode(ctx context.Context, code string) (model.Place, error)
	// UpdateOccupancy moves the place from expected to next and sets (or
	// clears, when ref is nil) the active reservation.  It returns
	// ErrConflict when the stored status is not expected.
	UpdateOccupancy(ctx context.Context, code string, expected, next model.OccupancyStatus, ref *string) (model.Place, error)
	AddPending(ctx context.Context, place, reservation string) error
	RemovePending(ctx context.Context, place, reservation string) error
	AppendHistory(ctx context.Context, place, reservation string) error
}

// ReservationStore persists reservations and answers the reporting
// aggregates.
type ReservationStore interface {
	FindByCode(ctx context.Context, code string) (model.Reservation, error)
	FindByPlaces(ctx context.Context, f ReservationFilter, p Page) ([]model.Reservation, error)
	Create(ctx context.Context, r model.Reservation) (model.Reservation, error)
	UpdateByCode(ctx context.Context, code string, u ReservationUpdate) (model.Reservation, error)
	Count(ctx context.Context, f ReservationFilter) (int64, error)
	SumPrice(ctx context.Context, f ReservationFilter) (int64, error)
	SumPriceByPlace(ctx context.Context, f ReservationFilter) (map[string]int64, error)
}

// UserStore is the read-only view of staff accounts.
type UserStore interface {
	FindByCode(ctx context.Context, code string) (model.User, error)
	ListByCompany(ctx context.Context, company string) ([]model.User, error)
}

// Tx exposes the stores bound to one unit of work.
type Tx interface {
	Places() PlaceStore
	Reservations() ReservationStore
}

// Store is the handle built at startup and shared by the services.
// Reads outside a transaction go through Places, Reservations and Users;
// writes go through WithTx so that a failure leaves no partial state.
type Store interface {
	Tx
	Users() UserStore
	// WithTx runs fn in a transaction.  A nil return commits; any error
	// rolls back and is returned unchanged.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsStatus(list []model.ReservationStatus, v model.ReservationStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
