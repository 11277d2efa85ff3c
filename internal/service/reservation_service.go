package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/place-reservation/internal/datetime"
	"github.com/iliyamo/place-reservation/internal/lock"
	"github.com/iliyamo/place-reservation/internal/logger"
	"github.com/iliyamo/place-reservation/internal/model"
	"github.com/iliyamo/place-reservation/internal/observability"
	"github.com/iliyamo/place-reservation/internal/repository"
	"github.com/iliyamo/place-reservation/internal/utils"
)

// ErrInvalidInput marks a request the service refuses before touching the
// store.  It is not a domain Kind; the HTTP layer answers 400.
var ErrInvalidInput = errors.New("invalid input")

// Options carries the optional collaborators of ReservationService.
type Options struct {
	Locker   lock.Locker
	Notifier *Notifier
	Cache    *StatsCache
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// ReservationService is the reservation lifecycle engine.  It owns the
// reservation status and the place occupancy flag: every transition is one
// store transaction, occupancy changes are compare-and-set writes, and
// notifications go out only after commit.
type ReservationService struct {
	store    repository.Store
	locker   lock.Locker
	notifier *Notifier
	cache    *StatsCache
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewReservationService wires the engine to a store.
func NewReservationService(store repository.Store, opts Options) *ReservationService {
	s := &ReservationService{
		store:    store,
		locker:   opts.Locker,
		notifier: opts.Notifier,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if s.locker == nil {
		s.locker = lock.Noop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateInput describes a new reservation.  Actor is the staff code and
// is empty for public requests.  EndDate defaults to StartDate.
type CreateInput struct {
	Actor     string
	Place     string
	Occupant  model.Occupant
	StartDate *time.Time
	EndDate   *time.Time
	Price     *model.Price
	Duration  model.Duration
	// StartNow asks BookDirect to start occupancy at once.
	StartNow bool
}

// AcceptInput accepts a reservation, optionally starting occupancy.
// When starting, Identification replaces the stored one and Price is
// merged onto the stored price.
type AcceptInput struct {
	Actor          string
	Reservation    string
	StartNow       bool
	Identification string
	Price          *model.Price
}

// ActionInput names a reservation for decline and end.
type ActionInput struct {
	Actor       string
	Reservation string
}

// ExtendInput moves the end of an ongoing stay and sets its new price.
type ExtendInput struct {
	Actor       string
	Reservation string
	EndDate     time.Time
	Price       int64
}

// ClosePlaceInput ends the occupancy of a place.
type ClosePlaceInput struct {
	Actor  string
	Place  string
	Reason string
}

// PlaceStatusInput takes a place out of service (Off) or back in.
type PlaceStatusInput struct {
	Actor string
	Place string
	Off   bool
}

// UpdateInput edits the descriptive fields of a live reservation.  Nil
// fields are kept.
type UpdateInput struct {
	Actor       string
	Reservation string
	FirstName   *string
	LastName    *string
	Phone       *string
	Duration    *model.Duration
	StartDate   *time.Time
	EndDate     *time.Time
	Price       *model.Price
}

// ListInput filters the reservations of places in the actor's company.
type ListInput struct {
	Actor    string
	Places   []string
	Statuses []model.ReservationStatus
	Window   datetime.Window
	Page     repository.Page
}

var pendingStatuses = []model.ReservationStatus{model.StatusOnRequest, model.StatusAccepted}

var liveStatuses = []model.ReservationStatus{model.StatusOnRequest, model.StatusAccepted, model.StatusInProgress}

// Request records an ON_REQUEST reservation and queues it on the place.
func (s *ReservationService) Request(ctx context.Context, in CreateInput) (model.Reservation, error) {
	const op = "request"
	if err := validateWindow(in.StartDate, in.EndDate); err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	now := s.now()
	var created model.Reservation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var (
			u   model.User
			err error
		)
		if in.Actor != "" {
			if u, err = s.actor(ctx, in.Actor); err != nil {
				return err
			}
		}
		place, err := s.livePlace(ctx, tx, in.Place)
		if err != nil {
			return err
		}
		if in.Actor != "" {
			if err := sameCompany(u, place.Company); err != nil {
				return err
			}
		}
		r := newReservation(in, place, model.StatusOnRequest, now)
		if created, err = tx.Reservations().Create(ctx, r); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		if err := tx.Places().AddPending(ctx, place.Code, r.Code); err != nil {
			return fmt.Errorf("link pending: %w", err)
		}
		if err := tx.Places().AppendHistory(ctx, place.Code, r.Code); err != nil {
			return fmt.Errorf("link history: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	s.committed(ctx, op, created, requestedNotice(created))
	return created, nil
}

// BookDirect records a staff booking, ACCEPTED or, with StartNow,
// IN_PROGRESS on a place that is not taken.
func (s *ReservationService) BookDirect(ctx context.Context, in CreateInput) (model.Reservation, error) {
	const op = "book"
	if err := validateWindow(in.StartDate, in.EndDate); err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	if strings.TrimSpace(in.Actor) == "" {
		return s.fail(op, model.Reservation{}, notFound(EntityActor, ""))
	}
	if in.StartNow {
		release, err := s.lockPlace(ctx, in.Place)
		if err != nil {
			return s.fail(op, model.Reservation{}, err)
		}
		defer release()
	}

	now := s.now()
	var created model.Reservation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := s.actor(ctx, in.Actor)
		if err != nil {
			return err
		}
		place, err := s.livePlace(ctx, tx, in.Place)
		if err != nil {
			return err
		}
		if err := sameCompany(u, place.Company); err != nil {
			return err
		}

		status := model.StatusAccepted
		if in.StartNow {
			status = model.StatusInProgress
		}
		r := newReservation(in, place, status, now)
		if in.StartNow {
			r.RealStartDate = &now
			if err := s.takePlace(ctx, tx, place, r.Code); err != nil {
				return err
			}
		}
		if created, err = tx.Reservations().Create(ctx, r); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		if err := tx.Places().AppendHistory(ctx, place.Code, r.Code); err != nil {
			return fmt.Errorf("link history: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	s.committed(ctx, op, created, bookedNotice(created))
	return created, nil
}

// Accept moves an ON_REQUEST or ACCEPTED reservation to ACCEPTED, or with
// StartNow to IN_PROGRESS while taking its place.  Of several concurrent
// starts on one place exactly one wins; the others get ResourceBusy.
// Accepting an ACCEPTED reservation again succeeds without writing.
func (s *ReservationService) Accept(ctx context.Context, in AcceptInput) (model.Reservation, error) {
	const op = "accept"
	if in.StartNow {
		if _, err := s.actor(ctx, in.Actor); err != nil {
			return s.fail(op, model.Reservation{}, err)
		}
		// the place is only known from the reservation
		cur, err := s.store.Reservations().FindByCode(ctx, in.Reservation)
		if err != nil {
			return s.fail(op, model.Reservation{}, mapReservationErr(err, in.Reservation))
		}
		release, err := s.lockPlace(ctx, cur.Place)
		if err != nil {
			return s.fail(op, model.Reservation{}, err)
		}
		defer release()
	}

	now := s.now()
	var (
		updated model.Reservation
		noop    bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := s.authorizedReservation(ctx, tx, in.Actor, in.Reservation)
		if err != nil {
			return err
		}
		if r.Status != model.StatusOnRequest && r.Status != model.StatusAccepted {
			return invalidTransition(r.Code, op, r.Status)
		}
		if !in.StartNow && r.Status == model.StatusAccepted {
			updated, noop = r, true
			return nil
		}

		u := repository.ReservationUpdate{
			ExpectStatus:  pendingStatuses,
			LastUpdatedBy: &in.Actor,
			LastUpdatedAt: now,
		}
		if in.StartNow {
			place, err := s.livePlace(ctx, tx, r.Place)
			if err != nil {
				return err
			}
			if err := s.takePlace(ctx, tx, place, r.Code); err != nil {
				return err
			}
			status := model.StatusInProgress
			u.Status = &status
			u.RealStartDate = &now
			if id := strings.TrimSpace(in.Identification); id != "" {
				occ := r.Occupant
				occ.Identification = id
				u.Occupant = &occ
			}
			u.Price = mergePrice(r.Price, in.Price)
		} else {
			status := model.StatusAccepted
			u.Status = &status
		}

		if updated, err = s.transition(ctx, tx, r.Code, op, u); err != nil {
			return err
		}
		if err := tx.Places().RemovePending(ctx, r.Place, r.Code); err != nil {
			return fmt.Errorf("unlink pending: %w", err)
		}
		if err := tx.Places().AppendHistory(ctx, r.Place, r.Code); err != nil {
			return fmt.Errorf("link history: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	if noop {
		s.metrics.Operation(op, "noop")
		return updated, nil
	}
	note := acceptedNotice(updated)
	if in.StartNow {
		note = startedNotice(updated)
	}
	s.committed(ctx, op, updated, note)
	return updated, nil
}

// Decline cancels an ON_REQUEST or ACCEPTED reservation.  Declining a
// cancelled reservation succeeds without writing.
func (s *ReservationService) Decline(ctx context.Context, in ActionInput) (model.Reservation, error) {
	const op = "decline"
	now := s.now()
	var (
		out  model.Reservation
		noop bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := s.authorizedReservation(ctx, tx, in.Actor, in.Reservation)
		if err != nil {
			return err
		}
		switch r.Status {
		case model.StatusCancelled:
			out, noop = r, true
			return nil
		case model.StatusOnRequest, model.StatusAccepted:
		default:
			return invalidTransition(r.Code, op, r.Status)
		}

		status := model.StatusCancelled
		out, err = tx.Reservations().UpdateByCode(ctx, r.Code, repository.ReservationUpdate{
			ExpectStatus:  pendingStatuses,
			Status:        &status,
			LastUpdatedBy: &in.Actor,
			LastUpdatedAt: now,
		})
		if errors.Is(err, repository.ErrConflict) {
			cur, ferr := tx.Reservations().FindByCode(ctx, r.Code)
			if ferr != nil {
				return mapReservationErr(ferr, r.Code)
			}
			if cur.Status == model.StatusCancelled {
				out, noop = cur, true
				return nil
			}
			return invalidTransition(r.Code, op, cur.Status)
		}
		if err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}
		if err := tx.Places().RemovePending(ctx, r.Place, r.Code); err != nil {
			return fmt.Errorf("unlink pending: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	if noop {
		s.metrics.Operation(op, "noop")
		return out, nil
	}
	s.committed(ctx, op, out, cancelledNotice(out))
	return out, nil
}

// Extend moves the end date of an IN_PROGRESS reservation and replaces its
// price.  The reservation keeps its code and creation time.
func (s *ReservationService) Extend(ctx context.Context, in ExtendInput) (model.Reservation, error) {
	const op = "extend"
	if in.EndDate.IsZero() {
		return s.fail(op, model.Reservation{}, fmt.Errorf("%w: end date required", ErrInvalidInput))
	}
	if in.Price < 0 {
		return s.fail(op, model.Reservation{}, fmt.Errorf("%w: negative price", ErrInvalidInput))
	}
	now := s.now()
	var updated model.Reservation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := s.authorizedReservation(ctx, tx, in.Actor, in.Reservation)
		if err != nil {
			return err
		}
		if r.Status != model.StatusInProgress {
			return invalidTransition(r.Code, op, r.Status)
		}
		end := in.EndDate
		if err := validateWindow(r.StartDate, &end); err != nil {
			return err
		}
		if r.RealStartDate != nil && end.Before(*r.RealStartDate) {
			return fmt.Errorf("%w: end date before occupancy start", ErrInvalidInput)
		}
		extended := true
		price := model.Price{Value: in.Price, Description: "", Currency: model.DefaultCurrency}
		updated, err = s.transition(ctx, tx, r.Code, op, repository.ReservationUpdate{
			ExpectStatus:  []model.ReservationStatus{model.StatusInProgress},
			EndDate:       &end,
			Price:         &price,
			Extended:      &extended,
			LastUpdatedBy: &in.Actor,
			LastUpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	s.committed(ctx, op, updated, extendedNotice(updated))
	return updated, nil
}

// ClosePlace ends the occupancy of a place: its IN_PROGRESS reservation
// becomes ENDED and the place AVAILABLE.  A place without an occupant is
// returned unchanged.
func (s *ReservationService) ClosePlace(ctx context.Context, in ClosePlaceInput) (model.Place, error) {
	const op = "close_place"
	release, err := s.lockPlace(ctx, in.Place)
	if err != nil {
		return s.failPlace(op, err)
	}
	defer release()

	now := s.now()
	var (
		place model.Place
		ended *model.Reservation
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := s.actor(ctx, in.Actor)
		if err != nil {
			return err
		}
		p, err := s.findPlace(ctx, tx, in.Place)
		if err != nil {
			return err
		}
		if err := sameCompany(u, p.Company); err != nil {
			return err
		}
		place, ended, err = s.endOccupancy(ctx, tx, p, in.Actor, now)
		return err
	})
	if err != nil {
		return s.failPlace(op, err)
	}
	if ended == nil {
		s.metrics.Operation(op, "noop")
		return place, nil
	}
	logger.WithContext(ctx).Info("place closed", "place", place.Code, "reservation", ended.Code, "reason", in.Reason)
	s.committed(ctx, op, *ended, endedNotice(*ended))
	return place, nil
}

// End finishes one IN_PROGRESS reservation and frees its place.  Ending an
// ENDED reservation succeeds without writing.
func (s *ReservationService) End(ctx context.Context, in ActionInput) (model.Reservation, error) {
	const op = "end"
	if _, err := s.actor(ctx, in.Actor); err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	cur, err := s.store.Reservations().FindByCode(ctx, in.Reservation)
	if err != nil {
		return s.fail(op, model.Reservation{}, mapReservationErr(err, in.Reservation))
	}
	release, err := s.lockPlace(ctx, cur.Place)
	if err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	defer release()

	now := s.now()
	var (
		out  model.Reservation
		noop bool
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := s.authorizedReservation(ctx, tx, in.Actor, in.Reservation)
		if err != nil {
			return err
		}
		switch r.Status {
		case model.StatusEnded:
			out, noop = r, true
			return nil
		case model.StatusInProgress:
		default:
			return invalidTransition(r.Code, op, r.Status)
		}

		place, err := s.findPlace(ctx, tx, r.Place)
		if err != nil {
			return err
		}
		if place.IsTaken() && place.ActiveReservation != nil && *place.ActiveReservation == r.Code {
			_, ended, err := s.endOccupancy(ctx, tx, place, in.Actor, now)
			if err != nil {
				return err
			}
			if ended != nil {
				out = *ended
				return nil
			}
		}
		// the place does not point at r; end the reservation alone
		logger.WithContext(ctx).Warn("ending reservation not held by its place", "reservation", r.Code, "place", r.Place)
		status := model.StatusEnded
		out, err = s.transition(ctx, tx, r.Code, op, repository.ReservationUpdate{
			ExpectStatus:  []model.ReservationStatus{model.StatusInProgress},
			Status:        &status,
			RealEndDate:   &now,
			LastUpdatedBy: &in.Actor,
			LastUpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	if noop {
		s.metrics.Operation(op, "noop")
		return out, nil
	}
	s.committed(ctx, op, out, endedNotice(out))
	return out, nil
}

// Update edits occupant contact, duration, requested window and price of a
// reservation that is not ENDED or CANCELLED.  It never changes the status
// or the place.
func (s *ReservationService) Update(ctx context.Context, in UpdateInput) (model.Reservation, error) {
	const op = "update"
	now := s.now()
	var updated model.Reservation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := s.authorizedReservation(ctx, tx, in.Actor, in.Reservation)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return invalidTransition(r.Code, op, r.Status)
		}
		start, end := r.StartDate, r.EndDate
		if in.StartDate != nil {
			start = in.StartDate
		}
		if in.EndDate != nil {
			end = in.EndDate
		}
		if err := validateWindow(start, end); err != nil {
			return err
		}

		occ := r.Occupant
		if in.FirstName != nil && *in.FirstName != "" {
			occ.FirstName = *in.FirstName
		}
		if in.LastName != nil && *in.LastName != "" {
			occ.LastName = *in.LastName
		}
		if in.Phone != nil && *in.Phone != "" {
			occ.Phone = *in.Phone
		}
		updated, err = s.transition(ctx, tx, r.Code, op, repository.ReservationUpdate{
			ExpectStatus:  liveStatuses,
			Occupant:      &occ,
			StartDate:     in.StartDate,
			EndDate:       in.EndDate,
			Price:         normalizePrice(in.Price),
			Duration:      in.Duration,
			LastUpdatedBy: &in.Actor,
			LastUpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return s.fail(op, model.Reservation{}, err)
	}
	s.committed(ctx, op, updated)
	return updated, nil
}

// SetPlaceOff takes an AVAILABLE place out of service or puts an OFF place
// back.  A place already in the requested state is returned unchanged; a
// TAKEN place must be closed first.
func (s *ReservationService) SetPlaceOff(ctx context.Context, in PlaceStatusInput) (model.Place, error) {
	const op = "place_status"
	release, err := s.lockPlace(ctx, in.Place)
	if err != nil {
		return s.failPlace(op, err)
	}
	defer release()

	from, to := model.PlaceOff, model.PlaceAvailable
	if in.Off {
		from, to = model.PlaceAvailable, model.PlaceOff
	}
	var (
		place model.Place
		noop  bool
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := s.actor(ctx, in.Actor)
		if err != nil {
			return err
		}
		p, err := s.livePlace(ctx, tx, in.Place)
		if err != nil {
			return err
		}
		if err := sameCompany(u, p.Company); err != nil {
			return err
		}
		switch p.OccupancyStatus {
		case to:
			place, noop = p, true
			return nil
		case model.PlaceTaken:
			return busy(p.Code, deref(p.ActiveReservation))
		}
		place, err = tx.Places().UpdateOccupancy(ctx, p.Code, from, to, nil)
		if errors.Is(err, repository.ErrConflict) {
			return busy(p.Code, "")
		}
		return err
	})
	if err != nil {
		return s.failPlace(op, err)
	}
	if noop {
		s.metrics.Operation(op, "noop")
		return place, nil
	}
	s.metrics.Operation(op, "ok")
	s.bump(ctx)
	logger.WithContext(ctx).Info("place status changed", "place", place.Code, "status", place.OccupancyStatus)
	return place, nil
}

// GetReservation returns a reservation of the actor's company.
func (s *ReservationService) GetReservation(ctx context.Context, actor, code string) (model.Reservation, error) {
	u, err := s.actor(ctx, actor)
	if err != nil {
		return model.Reservation{}, err
	}
	r, err := s.store.Reservations().FindByCode(ctx, code)
	if err != nil {
		return model.Reservation{}, mapReservationErr(err, code)
	}
	if err := sameCompany(u, r.Company); err != nil {
		return model.Reservation{}, err
	}
	return r, nil
}

// GetPlace returns a place.  With an actor the place must belong to the
// actor's company; without one (public lookups) it must be active.
func (s *ReservationService) GetPlace(ctx context.Context, actor, code string) (model.Place, error) {
	if actor == "" {
		return s.livePlace(ctx, s.store, code)
	}
	u, err := s.actor(ctx, actor)
	if err != nil {
		return model.Place{}, err
	}
	p, err := s.findPlace(ctx, s.store, code)
	if err != nil {
		return model.Place{}, err
	}
	if err := sameCompany(u, p.Company); err != nil {
		return model.Place{}, err
	}
	return p, nil
}

// ListByPlaces lists reservations of the given places, restricted to the
// actor's company.  A window with only an end date selects reservations
// ending on that day; otherwise the window applies to StartDate.
func (s *ReservationService) ListByPlaces(ctx context.Context, in ListInput) ([]model.Reservation, error) {
	u, err := s.actor(ctx, in.Actor)
	if err != nil {
		return nil, err
	}
	if len(in.Places) == 0 {
		return []model.Reservation{}, nil
	}
	f := repository.ReservationFilter{
		Company:   u.Company,
		Places:    in.Places,
		Statuses:  in.Statuses,
		Window:    in.Window.Normalize(),
		ByEndDate: in.Window.Start == nil && in.Window.End != nil,
	}
	out, err := s.store.Reservations().FindByPlaces(ctx, f, in.Page)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// takePlace flips a place that is not TAKEN to TAKEN for ref.  The write
// is conditional on the status just read, so a concurrent taker makes it
// fail and the caller sees ResourceBusy.
func (s *ReservationService) takePlace(ctx context.Context, tx repository.Tx, place model.Place, ref string) error {
	if place.IsTaken() {
		return busy(place.Code, deref(place.ActiveReservation))
	}
	_, err := tx.Places().UpdateOccupancy(ctx, place.Code, place.OccupancyStatus, model.PlaceTaken, &ref)
	switch {
	case errors.Is(err, repository.ErrConflict):
		holder := ""
		if cur, ferr := tx.Places().FindByCode(ctx, place.Code); ferr == nil {
			holder = deref(cur.ActiveReservation)
		}
		return busy(place.Code, holder)
	case errors.Is(err, repository.ErrNotFound):
		return notFound(EntityPlace, place.Code)
	case err != nil:
		return fmt.Errorf("take place: %w", err)
	}
	return nil
}

// endOccupancy ends the reservation held by place and frees the place.
// It returns a nil reservation when the place has no occupant.
func (s *ReservationService) endOccupancy(ctx context.Context, tx repository.Tx, place model.Place, actor string, now time.Time) (model.Place, *model.Reservation, error) {
	if !place.IsTaken() || place.ActiveReservation == nil {
		return place, nil, nil
	}
	code := *place.ActiveReservation
	status := model.StatusEnded
	r, err := tx.Reservations().UpdateByCode(ctx, code, repository.ReservationUpdate{
		ExpectStatus:  []model.ReservationStatus{model.StatusInProgress},
		Status:        &status,
		RealEndDate:   &now,
		LastUpdatedBy: &actor,
		LastUpdatedAt: now,
	})
	var ended *model.Reservation
	switch {
	case err == nil:
		ended = &r
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrNotFound):
		// the place points at a reservation that is not running; free it anyway
		logger.WithContext(ctx).Warn("taken place without running reservation", "place", place.Code, "reservation", code)
	default:
		return model.Place{}, nil, fmt.Errorf("end reservation: %w", err)
	}

	freed, err := tx.Places().UpdateOccupancy(ctx, place.Code, model.PlaceTaken, model.PlaceAvailable, nil)
	if errors.Is(err, repository.ErrConflict) {
		// someone else freed it first
		cur, ferr := tx.Places().FindByCode(ctx, place.Code)
		if ferr != nil {
			return model.Place{}, nil, fmt.Errorf("free place: %w", ferr)
		}
		return cur, nil, nil
	}
	if err != nil {
		return model.Place{}, nil, fmt.Errorf("free place: %w", err)
	}
	return freed, ended, nil
}

// transition applies a conditional reservation update.  A lost condition
// becomes InvalidTransition from whatever status won.
func (s *ReservationService) transition(ctx context.Context, tx repository.Tx, code, op string, u repository.ReservationUpdate) (model.Reservation, error) {
	r, err := tx.Reservations().UpdateByCode(ctx, code, u)
	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, repository.ErrConflict):
		cur, ferr := tx.Reservations().FindByCode(ctx, code)
		if ferr != nil {
			return model.Reservation{}, mapReservationErr(ferr, code)
		}
		return model.Reservation{}, invalidTransition(code, op, cur.Status)
	case errors.Is(err, repository.ErrNotFound):
		return model.Reservation{}, notFound(EntityReservation, code)
	default:
		return model.Reservation{}, fmt.Errorf("%s reservation: %w", op, err)
	}
}

// actor loads the acting staff account: missing is NotFound, disabled or
// deleted is Inactive.
func (s *ReservationService) actor(ctx context.Context, code string) (model.User, error) {
	if strings.TrimSpace(code) == "" {
		return model.User{}, notFound(EntityActor, "")
	}
	u, err := s.store.Users().FindByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, notFound(EntityActor, code)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load actor: %w", err)
	}
	if !u.CanAct() {
		return model.User{}, inactive(EntityActor, code)
	}
	return u, nil
}

// sameCompany rejects an actor acting on another company's data.
func sameCompany(u model.User, company string) error {
	if u.Company != company {
		return unauthorized(EntityActor, u.Code)
	}
	return nil
}

// authorizedReservation loads a live reservation the actor may act on.
func (s *ReservationService) authorizedReservation(ctx context.Context, tx repository.Tx, actor, code string) (model.Reservation, error) {
	u, err := s.actor(ctx, actor)
	if err != nil {
		return model.Reservation{}, err
	}
	r, err := tx.Reservations().FindByCode(ctx, code)
	if err != nil {
		return model.Reservation{}, mapReservationErr(err, code)
	}
	if r.IsDeleted {
		return model.Reservation{}, inactive(EntityReservation, code)
	}
	if err := sameCompany(u, r.Company); err != nil {
		return model.Reservation{}, err
	}
	return r, nil
}

func (s *ReservationService) findPlace(ctx context.Context, tx repository.Tx, code string) (model.Place, error) {
	p, err := tx.Places().FindByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Place{}, notFound(EntityPlace, code)
	}
	if err != nil {
		return model.Place{}, fmt.Errorf("load place: %w", err)
	}
	return p, nil
}

// livePlace is findPlace refusing soft-deleted places.
func (s *ReservationService) livePlace(ctx context.Context, tx repository.Tx, code string) (model.Place, error) {
	p, err := s.findPlace(ctx, tx, code)
	if err != nil {
		return model.Place{}, err
	}
	if !p.Active() {
		return model.Place{}, inactive(EntityPlace, code)
	}
	return p, nil
}

// lockPlace holds the per-place lock.  A lock that cannot be had in time
// is ResourceBusy; an unreachable lock backend is logged and skipped since
// the conditional writes still guard the place.
func (s *ReservationService) lockPlace(ctx context.Context, place string) (func(), error) {
	release, err := s.locker.Acquire(ctx, place)
	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, lock.ErrTimeout):
		return nil, busy(place, "")
	case errors.Is(err, lock.ErrUnavailable):
		logger.WithContext(ctx).Warn("place lock unavailable, continuing without it", "place", place, "error", err)
		return func() {}, nil
	default:
		return nil, err
	}
}

// committed runs the post-commit side effects of a successful mutation.
func (s *ReservationService) committed(ctx context.Context, op string, r model.Reservation, notes ...Notification) {
	s.metrics.Operation(op, "ok")
	s.bump(ctx)
	logger.WithContext(ctx).Info("reservation "+op,
		"reservation", r.Code, "place", r.Place, "status", r.Status)
	for _, n := range notes {
		s.notifier.Notify(ctx, n)
	}
}

func (s *ReservationService) bump(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		logger.WithContext(ctx).Warn("stats cache bump failed", "error", err)
	}
}

func (s *ReservationService) fail(op string, zero model.Reservation, err error) (model.Reservation, error) {
	s.metrics.Operation(op, outcome(err))
	return zero, err
}

func (s *ReservationService) failPlace(op string, err error) (model.Place, error) {
	s.metrics.Operation(op, outcome(err))
	return model.Place{}, err
}

func outcome(err error) string {
	if kind, ok := KindOf(err); ok {
		return strings.ToLower(string(kind))
	}
	if errors.Is(err, ErrInvalidInput) {
		return "invalid_input"
	}
	return "error"
}

func mapReservationErr(err error, code string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(EntityReservation, code)
	}
	return fmt.Errorf("load reservation: %w", err)
}

func newReservation(in CreateInput, place model.Place, status model.ReservationStatus, now time.Time) model.Reservation {
	end := in.EndDate
	if end == nil && in.StartDate != nil {
		s := *in.StartDate
		end = &s
	}
	return model.Reservation{
		Auditable: model.Auditable{
			Code:          utils.NewCode(utils.ReservationPrefix),
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
		Status:             status,
		Occupant:           in.Occupant,
		StartDate:          in.StartDate,
		EndDate:            end,
		Price:              normalizePrice(in.Price),
		PlaceCurrentPrices: append([]model.PlacePrice(nil), place.Prices...),
		Duration:           in.Duration,
		Place:              place.Code,
		Company:            place.Company,
		House:              place.House,
		CreatedBy:          in.Actor,
		LastUpdatedBy:      in.Actor,
		IsPublicRequest:    in.Actor == "",
	}
}

func normalizePrice(p *model.Price) *model.Price {
	if p == nil {
		return nil
	}
	c := *p
	if c.Currency == "" {
		c.Currency = model.DefaultCurrency
	}
	return &c
}

// mergePrice applies an override onto the stored price.  A zero value
// keeps the stored amount; description and currency change only when
// given.
func mergePrice(cur, override *model.Price) *model.Price {
	if override == nil {
		return nil
	}
	p := model.Price{Currency: model.DefaultCurrency}
	if cur != nil {
		p = *cur
	}
	if override.Value != 0 {
		p.Value = override.Value
	}
	if override.Description != "" {
		p.Description = override.Description
	}
	if override.Currency != "" {
		p.Currency = override.Currency
	}
	if p.Currency == "" {
		p.Currency = model.DefaultCurrency
	}
	return &p
}

func validateWindow(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidInput)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
