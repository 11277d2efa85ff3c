package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/place-reservation/internal/datetime"
	"github.com/iliyamo/place-reservation/internal/logger"
	"github.com/iliyamo/place-reservation/internal/model"
	"github.com/iliyamo/place-reservation/internal/observability"
	"github.com/iliyamo/place-reservation/internal/repository"
)

// RevenueStatuses are the statuses whose price counts as revenue.
var RevenueStatuses = []model.ReservationStatus{model.StatusInProgress, model.StatusEnded}

// StatsQuery scopes a report.  Company, when set, restricts the report to
// that company's reservations whatever places are named.
type StatsQuery struct {
	Company  string
	Places   []string
	Statuses []model.ReservationStatus
	Window   datetime.Window
}

// RecapBreakdown counts reservations per status over one window.
type RecapBreakdown struct {
	Total      int64 `json:"total"`
	OnRequest  int64 `json:"onRequest"`
	Accepted   int64 `json:"accepted"`
	InProgress int64 `json:"inProgress"`
	Ended      int64 `json:"ended"`
	Cancelled  int64 `json:"cancelled"`
}

// RevenueSnapshot is the revenue of the current day, week and month.
type RevenueSnapshot struct {
	Day   int64 `json:"day"`
	Week  int64 `json:"week"`
	Month int64 `json:"month"`
}

// StatsService computes counts and revenue over date windows.  It only
// reads.
type StatsService struct {
	reservations repository.ReservationStore
	cache        *StatsCache
	metrics      *observability.Metrics
	now          func() time.Time
}

// NewStatsService builds the aggregator.  cache and metrics may be nil.
func NewStatsService(reservations repository.ReservationStore, cache *StatsCache, metrics *observability.Metrics) *StatsService {
	return &StatsService{reservations: reservations, cache: cache, metrics: metrics, now: time.Now}
}

// GetRevenue sums the price of IN_PROGRESS and ENDED reservations of the
// places whose StartDate falls in the normalized window.
func (s *StatsService) GetRevenue(ctx context.Context, q StatsQuery) (int64, error) {
	if len(q.Places) == 0 {
		return 0, nil
	}
	f := s.filter(q, RevenueStatuses, q.Window.Normalize())
	return cached(ctx, s, func(ctx context.Context) (int64, error) {
		return s.reservations.SumPrice(ctx, f)
	}, "stats", "revenue", filterKey(f))
}

// GetRecap counts the reservations of the places matching the optional
// status filter and the normalized window.
func (s *StatsService) GetRecap(ctx context.Context, q StatsQuery) (int64, error) {
	if len(q.Places) == 0 {
		return 0, nil
	}
	f := s.filter(q, q.Statuses, q.Window.Normalize())
	return cached(ctx, s, func(ctx context.Context) (int64, error) {
		return s.reservations.Count(ctx, f)
	}, "stats", "recap", filterKey(f))
}

// GetRecapBreakdown runs GetRecap once per status, concurrently.
func (s *StatsService) GetRecapBreakdown(ctx context.Context, q StatsQuery) (RecapBreakdown, error) {
	var out RecapBreakdown
	targets := []struct {
		dst    *int64
		status []model.ReservationStatus
	}{
		{&out.Total, nil},
		{&out.OnRequest, []model.ReservationStatus{model.StatusOnRequest}},
		{&out.Accepted, []model.ReservationStatus{model.StatusAccepted}},
		{&out.InProgress, []model.ReservationStatus{model.StatusInProgress}},
		{&out.Ended, []model.ReservationStatus{model.StatusEnded}},
		{&out.Cancelled, []model.ReservationStatus{model.StatusCancelled}},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			sub := q
			sub.Statuses = t.status
			n, err := s.GetRecap(gctx, sub)
			if err != nil {
				return err
			}
			*t.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RecapBreakdown{}, fmt.Errorf("recap breakdown: %w", err)
	}
	return out, nil
}

// GetRevenueByPlace is GetRevenue grouped by place.  A lone bound is
// open-ended here: a start date reports from that day on, an end date up
// to the end of that day.  Every requested place appears in the result.
func (s *StatsService) GetRevenueByPlace(ctx context.Context, q StatsQuery) (map[string]int64, error) {
	out := make(map[string]int64, len(q.Places))
	if len(q.Places) == 0 {
		return out, nil
	}
	f := s.filter(q, RevenueStatuses, q.Window.NormalizeOpen())
	sums, err := cached(ctx, s, func(ctx context.Context) (map[string]int64, error) {
		return s.reservations.SumPriceByPlace(ctx, f)
	}, "stats", "revenue-by-place", filterKey(f))
	if err != nil {
		return nil, err
	}
	for _, p := range q.Places {
		out[p] = sums[p]
	}
	return out, nil
}

// GetRevenueSnapshot reports the revenue of the current day, week and
// month in the deployment location.
func (s *StatsService) GetRevenueSnapshot(ctx context.Context, q StatsQuery) (RevenueSnapshot, error) {
	now := s.now()
	var out RevenueSnapshot
	windows := []struct {
		dst *int64
		w   datetime.Window
	}{
		{&out.Day, datetime.DayInterval(now)},
		{&out.Week, datetime.WeekInterval(now)},
		{&out.Month, datetime.MonthInterval(now)},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range windows {
		g.Go(func() error {
			sub := q
			sub.Window = w.w
			v, err := s.GetRevenue(gctx, sub)
			if err != nil {
				return err
			}
			*w.dst = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RevenueSnapshot{}, fmt.Errorf("revenue snapshot: %w", err)
	}
	return out, nil
}

func (s *StatsService) filter(q StatsQuery, statuses []model.ReservationStatus, w datetime.Window) repository.ReservationFilter {
	return repository.ReservationFilter{
		Company:  q.Company,
		Places:   q.Places,
		Statuses: statuses,
		Window:   w,
	}
}

// cached serves load through the stats cache.  A cache failure never
// fails the report: a value already loaded is returned as is, otherwise it
// is computed directly.
func cached[T any](ctx context.Context, s *StatsService, load func(context.Context) (T, error), parts ...string) (T, error) {
	var (
		loaded  T
		loadErr error
		didLoad bool
	)
	loader := func(ctx context.Context) (any, error) {
		v, err := load(ctx)
		loaded, loadErr, didLoad = v, err, err == nil
		return v, err
	}

	key, err := s.cache.BuildKey(ctx, parts...)
	if err == nil {
		var out T
		hit, ferr := s.cache.Fetch(ctx, key, &out, loader)
		if ferr == nil {
			if s.cache.enabled() {
				if hit {
					s.metrics.StatsCache("hit")
				} else {
					s.metrics.StatsCache("miss")
				}
			}
			return out, nil
		}
		if loadErr != nil {
			var zero T
			return zero, loadErr
		}
		if didLoad {
			logger.WithContext(ctx).Warn("stats cache write failed", "key", key, "error", ferr)
			s.metrics.StatsCache("error")
			return loaded, nil
		}
		err = ferr
	}
	logger.WithContext(ctx).Warn("stats cache unavailable, computing directly", "error", err)
	s.metrics.StatsCache("error")
	return load(ctx)
}

// filterKey renders a filter deterministically: places and statuses are
// sorted and instants use Unix milliseconds.
func filterKey(f repository.ReservationFilter) string {
	places := append([]string(nil), f.Places...)
	sort.Strings(places)
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	bound := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return strconv.FormatInt(t.UnixMilli(), 10)
	}
	return strings.Join([]string{
		f.Company,
		strings.Join(places, ","),
		strings.Join(statuses, ","),
		bound(f.Window.Start),
		bound(f.Window.End),
	}, ":")
}
