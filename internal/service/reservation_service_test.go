package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/place-reservation/internal/datetime"
	"github.com/iliyamo/place-reservation/internal/lock"
	"github.com/iliyamo/place-reservation/internal/model"
	"github.com/iliyamo/place-reservation/internal/queue"
	"github.com/iliyamo/place-reservation/internal/repository"
)

const (
	admin      = "USR-ADMIN"
	supervisor = "USR-SUP"
	disabled   = "USR-OFF"
	outsider   = "USR-OTHER"
	place1     = "PLA-1"
	place2     = "PLA-2"
	gone       = "PLA-GONE"
	adminToken = "ExponentPushToken[admin]"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.NotificationEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, ev queue.NotificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) sent() []queue.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.NotificationEvent(nil), f.events...)
}

type fixture struct {
	svc      *ReservationService
	store    *repository.MemoryStore
	pub      *fakePublisher
	notifier *Notifier
}

func newFixture(t *testing.T, locker lock.Locker) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	for _, p := range []model.Place{
		{Auditable: model.Auditable{Code: place1}, Company: "C1", House: "H1", Name: "Chambre 1", OccupancyStatus: model.PlaceAvailable},
		{Auditable: model.Auditable{Code: place2}, Company: "C1", House: "H2", Name: "Chambre 2", OccupancyStatus: model.PlaceAvailable},
		{Auditable: model.Auditable{Code: gone, IsDeleted: true}, Company: "C1", House: "H1", OccupancyStatus: model.PlaceAvailable},
	} {
		store.PutPlace(p)
	}
	for _, u := range []model.User{
		{Auditable: model.Auditable{Code: admin}, Company: "C1", AccountType: model.AccountAdmin, IsActive: true, PushTokens: []string{adminToken}},
		{Auditable: model.Auditable{Code: supervisor}, Company: "C1", House: "H2", AccountType: model.AccountSupervisor, IsActive: true, PushTokens: []string{"ExponentPushToken[sup]"}},
		{Auditable: model.Auditable{Code: disabled}, Company: "C1", AccountType: model.AccountAgent},
		{Auditable: model.Auditable{Code: outsider}, Company: "C2", AccountType: model.AccountAdmin, IsActive: true},
	} {
		store.PutUser(u)
	}
	pub := &fakePublisher{}
	notifier := NewNotifier(store.Users(), pub, nil)
	svc := NewReservationService(store, Options{Locker: locker, Notifier: notifier})
	return &fixture{svc: svc, store: store, pub: pub, notifier: notifier}
}

func (f *fixture) request(t *testing.T, place string) model.Reservation {
	t.Helper()
	start := time.Date(2024, 3, 1, 14, 0, 0, 0, time.Local)
	r, err := f.svc.Request(context.Background(), CreateInput{
		Place:     place,
		Occupant:  model.Occupant{FirstName: "Awa", LastName: "Diop", Phone: "+221770000000", TokenValue: "ExponentPushToken[awa]"},
		StartDate: &start,
		Price:     &model.Price{Value: 15000},
		Duration:  model.DurationDay,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) place(t *testing.T, code string) model.Place {
	t.Helper()
	p, err := f.store.Places().FindByCode(context.Background(), code)
	require.NoError(t, err)
	return p
}

func (f *fixture) start(code string) (model.Reservation, error) {
	return f.svc.Accept(context.Background(), AcceptInput{Actor: admin, Reservation: code, StartNow: true})
}

func TestRequestQueuesOnPlace(t *testing.T) {
	f := newFixture(t, nil)
	r := f.request(t, place1)

	require.Equal(t, model.StatusOnRequest, r.Status)
	require.True(t, r.IsPublicRequest)
	require.Equal(t, "C1", r.Company)
	require.Equal(t, "H1", r.House)
	require.Equal(t, model.DefaultCurrency, r.Price.Currency)
	require.NotNil(t, r.EndDate)
	require.True(t, r.EndDate.Equal(*r.StartDate))

	p := f.place(t, place1)
	require.Equal(t, []string{r.Code}, p.PendingRequests)
	require.Equal(t, []string{r.Code}, p.HistoricalReservations)
	require.Equal(t, model.PlaceAvailable, p.OccupancyStatus)
}

func TestRequestRejectsDeletedPlaceAndBadWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, CreateInput{Place: gone})
	require.ErrorIs(t, err, ErrInactive)

	_, err = f.svc.Request(ctx, CreateInput{Place: "PLA-NOPE"})
	require.ErrorIs(t, err, ErrNotFound)

	start := time.Date(2024, 3, 2, 0, 0, 0, 0, time.Local)
	end := start.AddDate(0, 0, -1)
	_, err = f.svc.Request(ctx, CreateInput{Place: place1, StartDate: &start, EndDate: &end})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestConcurrentStartHasSingleWinner(t *testing.T) {
	lockers := map[string]lock.Locker{
		"noop":  lock.Noop{},
		"local": lock.NewLocal(0),
	}
	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, locker)
			const n = 8
			codes := make([]string, n)
			for i := range codes {
				codes[i] = f.request(t, place1).Code
			}

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				winners []string
				busyN   int
			)
			for _, code := range codes {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.start(code)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						winners = append(winners, code)
					case errors.Is(err, ErrResourceBusy):
						busyN++
					default:
						assert.NoError(t, err)
					}
				}()
			}
			wg.Wait()

			require.Len(t, winners, 1)
			require.Equal(t, n-1, busyN)
			p := f.place(t, place1)
			require.Equal(t, model.PlaceTaken, p.OccupancyStatus)
			require.NotNil(t, p.ActiveReservation)
			require.Equal(t, winners[0], *p.ActiveReservation)

			inProgress, err := f.store.Reservations().Count(context.Background(), repository.ReservationFilter{
				Places:   []string{place1},
				Statuses: []model.ReservationStatus{model.StatusInProgress},
			})
			require.NoError(t, err)
			require.EqualValues(t, 1, inProgress)
		})
	}
}

func TestBusyErrorIsRetryable(t *testing.T) {
	f := newFixture(t, nil)
	r1 := f.request(t, place1)
	r2 := f.request(t, place1)
	_, err := f.start(r1.Code)
	require.NoError(t, err)

	_, err = f.start(r2.Code)
	var domainErr *Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, KindResourceBusy, domainErr.Kind)
	require.True(t, domainErr.Retryable())
	require.Contains(t, domainErr.Error(), r1.Code)

	// r2 was left untouched
	got, err := f.store.Reservations().FindByCode(context.Background(), r2.Code)
	require.NoError(t, err)
	require.Equal(t, model.StatusOnRequest, got.Status)
}

func TestTransitionsFromOnRequest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r := f.request(t, place1)
	_, err := f.svc.Extend(ctx, ExtendInput{Actor: admin, Reservation: r.Code, EndDate: time.Now(), Price: 1})
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.End(ctx, ActionInput{Actor: admin, Reservation: r.Code})
	require.ErrorIs(t, err, ErrInvalidTransition)

	accepted, err := f.svc.Accept(ctx, AcceptInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	require.Equal(t, model.StatusAccepted, accepted.Status)
	require.Empty(t, f.place(t, place1).PendingRequests)
	require.Equal(t, model.PlaceAvailable, f.place(t, place1).OccupancyStatus)

	// accepting twice is allowed and then starting still works
	_, err = f.svc.Accept(ctx, AcceptInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	started, err := f.svc.Accept(ctx, AcceptInput{
		Actor:          admin,
		Reservation:    r.Code,
		StartNow:       true,
		Identification: "CNI 123",
		Price:          &model.Price{Value: 20000, Description: "negotiated"},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusInProgress, started.Status)
	require.NotNil(t, started.RealStartDate)
	require.Equal(t, "CNI 123", started.Occupant.Identification)
	require.EqualValues(t, 20000, started.PriceValue())
	require.Equal(t, model.DefaultCurrency, started.Price.Currency)
}

func TestTransitionsFromInProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := f.request(t, place1)
	_, err := f.start(r.Code)
	require.NoError(t, err)

	_, err = f.svc.Decline(ctx, ActionInput{Actor: admin, Reservation: r.Code})
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Accept(ctx, AcceptInput{Actor: admin, Reservation: r.Code})
	require.ErrorIs(t, err, ErrInvalidTransition)

	ended, err := f.svc.End(ctx, ActionInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, ended.Status)
	require.NotNil(t, ended.RealEndDate)
	p := f.place(t, place1)
	require.Equal(t, model.PlaceAvailable, p.OccupancyStatus)
	require.Nil(t, p.ActiveReservation)

	// ending again is a no-op
	again, err := f.svc.End(ctx, ActionInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, again.Status)

	_, err = f.svc.Update(ctx, UpdateInput{Actor: admin, Reservation: r.Code})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeclineIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := f.request(t, place1)

	first, err := f.svc.Decline(ctx, ActionInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, first.Status)
	require.Empty(t, f.place(t, place1).PendingRequests)

	second, err := f.svc.Decline(ctx, ActionInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, second.Status)
	require.Equal(t, first.LastUpdatedAt, second.LastUpdatedAt)

	_, err = f.start(r.Code)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExtendKeepsIdentity(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.now = func() time.Time { return time.Date(2024, 3, 1, 15, 0, 0, 0, time.Local) }
	ctx := context.Background()
	r := f.request(t, place1)
	started, err := f.start(r.Code)
	require.NoError(t, err)

	end := time.Date(2024, 3, 5, 12, 0, 0, 0, time.Local)
	ext, err := f.svc.Extend(ctx, ExtendInput{Actor: admin, Reservation: r.Code, EndDate: end, Price: 45000})
	require.NoError(t, err)

	require.Equal(t, started.Code, ext.Code)
	require.True(t, started.CreatedAt.Equal(ext.CreatedAt))
	require.True(t, ext.Extended)
	require.True(t, ext.EndDate.Equal(end))
	require.Equal(t, model.Price{Value: 45000, Currency: model.DefaultCurrency}, *ext.Price)
	require.Equal(t, model.StatusInProgress, ext.Status)

	_, err = f.svc.Extend(ctx, ExtendInput{Actor: admin, Reservation: r.Code, Price: 1})
	require.ErrorIs(t, err, ErrInvalidInput)

	// before the requested start, then before the occupancy began
	for _, bad := range []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.Local),
		time.Date(2024, 3, 1, 14, 30, 0, 0, time.Local),
	} {
		_, err = f.svc.Extend(ctx, ExtendInput{Actor: admin, Reservation: r.Code, EndDate: bad, Price: 1})
		require.ErrorIs(t, err, ErrInvalidInput, bad)
	}
	got, err := f.svc.GetReservation(ctx, admin, r.Code)
	require.NoError(t, err)
	require.True(t, got.EndDate.Equal(end))
	require.EqualValues(t, 45000, got.PriceValue())
}

func TestStartKeepsAgreedPrice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 14, 0, 0, 0, time.Local)
	r, err := f.svc.Request(ctx, CreateInput{
		Place:     place1,
		Occupant:  model.Occupant{FirstName: "Awa", Phone: "+221770000000"},
		StartDate: &start,
		Price:     &model.Price{Value: 100, Description: "Nuit VIP", Currency: "EUR"},
	})
	require.NoError(t, err)

	started, err := f.svc.Accept(ctx, AcceptInput{Actor: admin, Reservation: r.Code, StartNow: true, Price: &model.Price{Value: 200}})
	require.NoError(t, err)
	require.Equal(t, model.Price{Value: 200, Description: "Nuit VIP", Currency: "EUR"}, *started.Price)

	// without an override the stored price is untouched
	r2 := f.request(t, place2)
	started, err = f.start(r2.Code)
	require.NoError(t, err)
	require.Equal(t, model.Price{Value: 15000, Currency: model.DefaultCurrency}, *started.Price)
}

func TestAcceptingTwiceWritesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := f.request(t, place1)

	first, err := f.svc.Accept(ctx, AcceptInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	f.notifier.Wait()
	sent := len(f.pub.sent())

	second, err := f.svc.Accept(ctx, AcceptInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	require.Equal(t, model.StatusAccepted, second.Status)
	require.Equal(t, first.LastUpdatedAt, second.LastUpdatedAt)
	f.notifier.Wait()
	require.Len(t, f.pub.sent(), sent)
}

func TestOccupancyScenario(t *testing.T) {
	f := newFixture(t, lock.NewLocal(time.Second))
	ctx := context.Background()

	r1 := f.request(t, place1)
	r2 := f.request(t, place1)

	got, err := f.start(r1.Code)
	require.NoError(t, err)
	require.Equal(t, model.StatusInProgress, got.Status)
	p := f.place(t, place1)
	require.Equal(t, model.PlaceTaken, p.OccupancyStatus)
	require.Equal(t, r1.Code, *p.ActiveReservation)

	_, err = f.start(r2.Code)
	require.ErrorIs(t, err, ErrResourceBusy)

	closed, err := f.svc.ClosePlace(ctx, ClosePlaceInput{Actor: admin, Place: place1, Reason: "checkout"})
	require.NoError(t, err)
	require.Equal(t, model.PlaceAvailable, closed.OccupancyStatus)
	require.Nil(t, closed.ActiveReservation)
	ended, err := f.store.Reservations().FindByCode(ctx, r1.Code)
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, ended.Status)

	got, err = f.start(r2.Code)
	require.NoError(t, err)
	require.Equal(t, model.StatusInProgress, got.Status)
	require.Equal(t, r2.Code, *f.place(t, place1).ActiveReservation)
}

func TestClosePlaceWithoutOccupantIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	p, err := f.svc.ClosePlace(context.Background(), ClosePlaceInput{Actor: admin, Place: place1})
	require.NoError(t, err)
	require.Equal(t, model.PlaceAvailable, p.OccupancyStatus)
}

func TestBookDirect(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.svc.BookDirect(ctx, CreateInput{Actor: admin, Place: place1, Occupant: model.Occupant{FirstName: "Moussa"}})
	require.NoError(t, err)
	require.Equal(t, model.StatusAccepted, r.Status)
	require.False(t, r.IsPublicRequest)
	require.Equal(t, admin, r.CreatedBy)
	require.Empty(t, f.place(t, place1).PendingRequests)
	require.Equal(t, []string{r.Code}, f.place(t, place1).HistoricalReservations)

	walkIn, err := f.svc.BookDirect(ctx, CreateInput{Actor: admin, Place: place1, StartNow: true})
	require.NoError(t, err)
	require.Equal(t, model.StatusInProgress, walkIn.Status)
	require.Equal(t, walkIn.Code, *f.place(t, place1).ActiveReservation)

	_, err = f.svc.BookDirect(ctx, CreateInput{Actor: admin, Place: place1, StartNow: true})
	require.ErrorIs(t, err, ErrResourceBusy)

	_, err = f.svc.BookDirect(ctx, CreateInput{Place: place2})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestActorChecks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := f.request(t, place1)

	cases := []struct {
		actor string
		want  error
	}{
		{"USR-NOPE", ErrNotFound},
		{disabled, ErrInactive},
		{outsider, ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.actor, func(t *testing.T) {
			_, err := f.svc.Accept(ctx, AcceptInput{Actor: tc.actor, Reservation: r.Code})
			require.ErrorIs(t, err, tc.want)
			_, err = f.svc.ClosePlace(ctx, ClosePlaceInput{Actor: tc.actor, Place: place1})
			require.ErrorIs(t, err, tc.want)
			_, err = f.svc.GetReservation(ctx, tc.actor, r.Code)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.Accept(ctx, AcceptInput{Actor: admin, Reservation: "RES-NOPE"})
	require.ErrorIs(t, err, ErrNotFound)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindNotFound, kind)
}

func TestSetPlaceOff(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.SetPlaceOff(ctx, PlaceStatusInput{Actor: admin, Place: place1, Off: true})
	require.NoError(t, err)
	require.Equal(t, model.PlaceOff, p.OccupancyStatus)

	p, err = f.svc.SetPlaceOff(ctx, PlaceStatusInput{Actor: admin, Place: place1, Off: true})
	require.NoError(t, err)
	require.Equal(t, model.PlaceOff, p.OccupancyStatus)

	p, err = f.svc.SetPlaceOff(ctx, PlaceStatusInput{Actor: admin, Place: place1})
	require.NoError(t, err)
	require.Equal(t, model.PlaceAvailable, p.OccupancyStatus)

	r := f.request(t, place1)
	_, err = f.start(r.Code)
	require.NoError(t, err)
	_, err = f.svc.SetPlaceOff(ctx, PlaceStatusInput{Actor: admin, Place: place1, Off: true})
	require.ErrorIs(t, err, ErrResourceBusy)
}

func TestLockTimeoutIsBusy(t *testing.T) {
	locker := lock.NewLocal(20 * time.Millisecond)
	f := newFixture(t, locker)

	release, err := locker.Acquire(context.Background(), place1)
	require.NoError(t, err)
	defer release()

	_, err = f.svc.ClosePlace(context.Background(), ClosePlaceInput{Actor: admin, Place: place1})
	require.ErrorIs(t, err, ErrResourceBusy)
}

func TestUpdateEditsLiveReservation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := f.request(t, place1)

	phone := "+221780000000"
	night := model.DurationNight
	up, err := f.svc.Update(ctx, UpdateInput{
		Actor:       admin,
		Reservation: r.Code,
		Phone:       &phone,
		Duration:    &night,
		Price:       &model.Price{Value: 9000},
	})
	require.NoError(t, err)
	require.Equal(t, phone, up.Occupant.Phone)
	require.Equal(t, "Awa", up.Occupant.FirstName)
	require.Equal(t, model.DurationNight, up.Duration)
	require.EqualValues(t, 9000, up.PriceValue())
	require.Equal(t, model.StatusOnRequest, up.Status)

	before := time.Date(2024, 2, 1, 0, 0, 0, 0, time.Local)
	_, err = f.svc.Update(ctx, UpdateInput{Actor: admin, Reservation: r.Code, EndDate: &before})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestListByPlacesStaysInCompany(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r1 := f.request(t, place1)
	f.request(t, place2)
	f.store.PutReservation(model.Reservation{
		Auditable: model.Auditable{Code: "RES-FOREIGN"},
		Status:    model.StatusOnRequest,
		Place:     place1,
		Company:   "C2",
	})

	got, err := f.svc.ListByPlaces(ctx, ListInput{Actor: admin, Places: []string{place1}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, r1.Code, got[0].Code)

	got, err = f.svc.ListByPlaces(ctx, ListInput{Actor: admin})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestListByPlacesEndDateOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	at := func(d, h int) *time.Time {
		v := time.Date(2024, 3, d, h, 0, 0, 0, time.Local)
		return &v
	}
	for _, r := range []model.Reservation{
		{Auditable: model.Auditable{Code: "RES-A"}, Status: model.StatusEnded, Place: place1, Company: "C1", StartDate: at(1, 12), EndDate: at(3, 11)},
		{Auditable: model.Auditable{Code: "RES-B"}, Status: model.StatusAccepted, Place: place1, Company: "C1", StartDate: at(3, 9), EndDate: at(5, 11)},
	} {
		f.store.PutReservation(r)
	}

	got, err := f.svc.ListByPlaces(ctx, ListInput{Actor: admin, Places: []string{place1}, Window: datetime.Window{End: at(3, 0)}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "RES-A", got[0].Code)

	got, err = f.svc.ListByPlaces(ctx, ListInput{Actor: admin, Places: []string{place1}, Window: datetime.Window{Start: at(3, 0)}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "RES-B", got[0].Code)
}

func TestGetPlacePublicHidesDeleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.GetPlace(ctx, "", place1)
	require.NoError(t, err)
	require.Equal(t, place1, p.Code)

	_, err = f.svc.GetPlace(ctx, "", gone)
	require.ErrorIs(t, err, ErrInactive)

	_, err = f.svc.GetPlace(ctx, outsider, place1)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNotificationsFollowCommits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r := f.request(t, place1)
	f.notifier.Wait()
	events := f.pub.sent()
	require.Len(t, events, 1)
	require.Equal(t, []string{adminToken}, events[0].Recipients)
	require.Equal(t, "C1 • H1", events[0].Title)
	require.Equal(t, "Demande de réservation", events[0].Subtitle)
	require.Equal(t, r.Code, events[0].Data["reservation"])

	_, err := f.svc.Decline(ctx, ActionInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	f.notifier.Wait()
	events = f.pub.sent()
	require.Len(t, events, 3)
	var occupant *queue.NotificationEvent
	for i := range events {
		if len(events[i].Recipients) == 1 && events[i].Recipients[0] == "ExponentPushToken[awa]" {
			occupant = &events[i]
		}
	}
	require.NotNil(t, occupant)
	require.Equal(t, OccupantStatusMessage(model.StatusCancelled), occupant.Body)

	// failed operations and no-ops send nothing
	_, err = f.svc.Decline(ctx, ActionInput{Actor: admin, Reservation: r.Code})
	require.NoError(t, err)
	_, err = f.svc.End(ctx, ActionInput{Actor: admin, Reservation: r.Code})
	require.Error(t, err)
	f.notifier.Wait()
	require.Len(t, f.pub.sent(), 3)
}

func TestSupervisorHearsOwnHouseOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.request(t, place2)
	f.notifier.Wait()

	events := f.pub.sent()
	require.Len(t, events, 1)
	require.ElementsMatch(t, []string{adminToken, "ExponentPushToken[sup]"}, events[0].Recipients)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, nil)
	f.pub.err = errors.New("broker down")

	r := f.request(t, place1)
	f.notifier.Wait()
	require.Equal(t, model.StatusOnRequest, r.Status)
	require.Empty(t, f.pub.sent())
}
