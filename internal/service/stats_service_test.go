package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/place-reservation/internal/datetime"
	"github.com/iliyamo/place-reservation/internal/model"
	"github.com/iliyamo/place-reservation/internal/repository"
)

func day(d, h int) time.Time {
	return time.Date(2024, 3, d, h, 0, 0, 0, time.Local)
}

func priced(code, place string, status model.ReservationStatus, start time.Time, price int64) model.Reservation {
	return model.Reservation{
		Auditable: model.Auditable{Code: code, CreatedAt: start},
		Status:    status,
		Place:     place,
		Company:   "C1",
		StartDate: &start,
		Price:     model.NewPrice(price),
	}
}

func statsStore() *repository.MemoryStore {
	s := repository.NewMemoryStore()
	for _, r := range []model.Reservation{
		priced("RES-1", place1, model.StatusEnded, day(1, 10), 1000),
		priced("RES-2", place1, model.StatusEnded, day(2, 10), 2000),
		priced("RES-3", place2, model.StatusEnded, day(3, 10), 500),
		priced("RES-4", place2, model.StatusCancelled, day(3, 11), 9000),
		priced("RES-5", place1, model.StatusOnRequest, day(1, 23), 700),
	} {
		s.PutReservation(r)
	}
	return s
}

func window(from, to time.Time) datetime.Window { return datetime.Between(from, to) }

func TestRevenueExcludesCancelled(t *testing.T) {
	svc := NewStatsService(statsStore().Reservations(), nil, nil)
	got, err := svc.GetRevenue(context.Background(), StatsQuery{
		Places: []string{place1, place2},
		Window: window(day(1, 0), day(3, 0)),
	})
	require.NoError(t, err)
	require.EqualValues(t, 3500, got)
}

func TestRecapClampsWindowEnd(t *testing.T) {
	svc := NewStatsService(statsStore().Reservations(), nil, nil)
	got, err := svc.GetRecap(context.Background(), StatsQuery{
		Places:   []string{place1},
		Statuses: []model.ReservationStatus{model.StatusOnRequest},
		Window:   window(day(1, 0), day(1, 0)),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, got)
}

func TestStatsWithoutPlacesAreZero(t *testing.T) {
	svc := NewStatsService(statsStore().Reservations(), nil, nil)
	ctx := context.Background()

	n, err := svc.GetRecap(ctx, StatsQuery{})
	require.NoError(t, err)
	require.Zero(t, n)
	v, err := svc.GetRevenue(ctx, StatsQuery{})
	require.NoError(t, err)
	require.Zero(t, v)
	byPlace, err := svc.GetRevenueByPlace(ctx, StatsQuery{})
	require.NoError(t, err)
	require.Empty(t, byPlace)
}

func TestRecapBreakdown(t *testing.T) {
	svc := NewStatsService(statsStore().Reservations(), nil, nil)
	got, err := svc.GetRecapBreakdown(context.Background(), StatsQuery{
		Places: []string{place1, place2},
		Window: window(day(1, 0), day(3, 0)),
	})
	require.NoError(t, err)
	require.Equal(t, RecapBreakdown{Total: 5, OnRequest: 1, Ended: 3, Cancelled: 1}, got)
}

func TestRevenueByPlaceFillsEveryPlace(t *testing.T) {
	svc := NewStatsService(statsStore().Reservations(), nil, nil)
	start := day(2, 0)
	got, err := svc.GetRevenueByPlace(context.Background(), StatsQuery{
		Places: []string{place1, place2, "PLA-EMPTY"},
		Window: datetime.Window{Start: &start},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]int64{place1: 2000, place2: 500, "PLA-EMPTY": 0}, got)
}

func TestRevenueSnapshot(t *testing.T) {
	svc := NewStatsService(statsStore().Reservations(), nil, nil)
	// Sunday 2024-03-03: the week started on Monday 2024-02-26
	svc.now = func() time.Time { return day(3, 18) }
	got, err := svc.GetRevenueSnapshot(context.Background(), StatsQuery{Places: []string{place1, place2}})
	require.NoError(t, err)
	require.Equal(t, RevenueSnapshot{Day: 500, Week: 3500, Month: 3500}, got)
}

func TestStatsCacheServesUntilBumped(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := statsStore()
	cache := NewStatsCache(rdb, time.Minute)
	svc := NewStatsService(store.Reservations(), cache, nil)
	ctx := context.Background()
	q := StatsQuery{Places: []string{place1, place2}, Window: window(day(1, 0), day(3, 0))}

	got, err := svc.GetRevenue(ctx, q)
	require.NoError(t, err)
	require.EqualValues(t, 3500, got)

	// a write that bypasses the engine is invisible until the version moves
	store.PutReservation(priced("RES-6", place1, model.StatusEnded, day(2, 12), 100))
	got, err = svc.GetRevenue(ctx, q)
	require.NoError(t, err)
	require.EqualValues(t, 3500, got)

	require.NoError(t, cache.Bump(ctx))
	got, err = svc.GetRevenue(ctx, q)
	require.NoError(t, err)
	require.EqualValues(t, 3600, got)

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, ver)
}

func TestEngineBumpsStatsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := NewStatsCache(rdb, time.Minute)

	f := newFixture(t, nil)
	f.svc.cache = cache
	stats := NewStatsService(f.store.Reservations(), cache, nil)
	ctx := context.Background()
	q := StatsQuery{Places: []string{place1}}

	n, err := stats.GetRecap(ctx, q)
	require.NoError(t, err)
	require.Zero(t, n)

	f.request(t, place1)
	n, err = stats.GetRecap(ctx, q)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestStatsCacheDownFallsBackToStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	svc := NewStatsService(statsStore().Reservations(), NewStatsCache(rdb, time.Minute), nil)
	got, err := svc.GetRevenue(context.Background(), StatsQuery{
		Places: []string{place1, place2},
		Window: window(day(1, 0), day(3, 0)),
	})
	require.NoError(t, err)
	require.EqualValues(t, 3500, got)
}

type countingReservations struct {
	repository.ReservationStore
	sums atomic.Int64
}

func (c *countingReservations) SumPrice(ctx context.Context, f repository.ReservationFilter) (int64, error) {
	c.sums.Add(1)
	return c.ReservationStore.SumPrice(ctx, f)
}

// failingSet makes every SET fail while reads keep working.
type failingSet struct{}

func (failingSet) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failingSet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "set" {
			cmd.SetErr(errors.New("READONLY replica"))
			return cmd.Err()
		}
		return next(ctx, cmd)
	}
}

func (failingSet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestStatsCacheWriteFailureLoadsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rdb.AddHook(failingSet{})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &countingReservations{ReservationStore: statsStore().Reservations()}
	svc := NewStatsService(store, NewStatsCache(rdb, time.Minute), nil)
	got, err := svc.GetRevenue(context.Background(), StatsQuery{
		Places: []string{place1, place2},
		Window: window(day(1, 0), day(3, 0)),
	})
	require.NoError(t, err)
	require.EqualValues(t, 3500, got)
	require.EqualValues(t, 1, store.sums.Load())
}
