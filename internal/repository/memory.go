package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/place-reservation/internal/model"
)

// MemoryStore keeps everything in process memory.  It backs the service
// tests and the STORE_DRIVER=memory mode used for local runs.
//
// Transactions are serialized: WithTx works on a private copy of the data
// and swaps it in on success, so a failing or cancelled unit of work
// leaves no trace.  WithTx must not be called from inside another WithTx.
type MemoryStore struct {
	txMu  sync.Mutex   // one writer at a time
	rw    sync.RWMutex // guards state for readers outside transactions
	state *memState
}

type memState struct {
	places       map[string]model.Place
	reservations map[string]model.Reservation
	users        map[string]model.User
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		places:       map[string]model.Place{},
		reservations: map[string]model.Reservation{},
		users:        map[string]model.User{},
	}}
}

func (st *memState) clone() *memState {
	c := &memState{
		places:       make(map[string]model.Place, len(st.places)),
		reservations: make(map[string]model.Reservation, len(st.reservations)),
		users:        make(map[string]model.User, len(st.users)),
	}
	for k, v := range st.places {
		c.places[k] = clonePlace(v)
	}
	for k, v := range st.reservations {
		c.reservations[k] = cloneReservation(v)
	}
	for k, v := range st.users {
		c.users[k] = cloneUser(v)
	}
	return c
}

// WithTx implements Store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.rw.RLock()
	work := s.state.clone()
	s.rw.RUnlock()

	if err := fn(ctx, memTx{s: s, st: work}); err != nil {
		return err
	}
	// A caller that gave up while fn ran gets nothing committed.
	if err := ctx.Err(); err != nil {
		return err
	}

	s.rw.Lock()
	s.state = work
	s.rw.Unlock()
	return nil
}

// Places implements Tx for reads outside a transaction.
func (s *MemoryStore) Places() PlaceStore { return memPlaces{memView{s: s}} }

// Reservations implements Tx for reads outside a transaction.
func (s *MemoryStore) Reservations() ReservationStore { return memReservations{memView{s: s}} }

// Users implements Store.
func (s *MemoryStore) Users() UserStore { return memUsers{memView{s: s}} }

// PutPlace inserts or replaces a place.
func (s *MemoryStore) PutPlace(p model.Place) {
	s.put(func(st *memState) { st.places[p.Code] = clonePlace(p) })
}

// PutUser inserts or replaces a staff account.
func (s *MemoryStore) PutUser(u model.User) {
	s.put(func(st *memState) { st.users[u.Code] = cloneUser(u) })
}

// PutReservation inserts or replaces a reservation as is.
func (s *MemoryStore) PutReservation(r model.Reservation) {
	s.put(func(st *memState) { st.reservations[r.Code] = cloneReservation(r) })
}

func (s *MemoryStore) put(fn func(st *memState)) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.rw.Lock()
	defer s.rw.Unlock()
	fn(s.state)
}

// Seed is the document accepted by LoadSeed.
type Seed struct {
	Places []model.Place `json:"places"`
	Users  []model.User  `json:"users"`
}

// LoadSeed reads a JSON Seed and stores its places and users.  Places
// without a status start AVAILABLE.
func (s *MemoryStore) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("memory store: decode seed: %w", err)
	}
	now := time.Now()
	for _, p := range seed.Places {
		if p.OccupancyStatus == "" {
			p.OccupancyStatus = model.PlaceAvailable
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt, p.LastUpdatedAt = now, now
		}
		s.PutPlace(p)
	}
	for _, u := range seed.Users {
		if u.CreatedAt.IsZero() {
			u.CreatedAt, u.LastUpdatedAt = now, now
		}
		s.PutUser(u)
	}
	return nil
}

type memTx struct {
	s  *MemoryStore
	st *memState
}

func (t memTx) Places() PlaceStore             { return memPlaces{memView{s: t.s, st: t.st}} }
func (t memTx) Reservations() ReservationStore { return memReservations{memView{s: t.s, st: t.st}} }

// memView reads the transaction copy when st is set and the committed
// state otherwise.  Writes outside a transaction run in their own one.
type memView struct {
	s  *MemoryStore
	st *memState
}

func (v memView) read(fn func(st *memState)) {
	if v.st != nil {
		fn(v.st)
		return
	}
	v.s.rw.RLock()
	defer v.s.rw.RUnlock()
	fn(v.s.state)
}

func (v memView) write(ctx context.Context, fn func(st *memState) error) error {
	if v.st != nil {
		return fn(v.st)
	}
	return v.s.WithTx(ctx, func(_ context.Context, tx Tx) error {
		return fn(tx.(memTx).st)
	})
}

type memPlaces struct{ memView }

func (m memPlaces) FindByCode(_ context.Context, code string) (model.Place, error) {
	var (
		p  model.Place
		ok bool
	)
	m.read(func(st *memState) {
		p, ok = st.places[code]
		p = clonePlace(p)
	})
	if !ok {
		return model.Place{}, ErrNotFound
	}
	return p, nil
}

func (m memPlaces) UpdateOccupancy(ctx context.Context, code string, expected, next model.OccupancyStatus, ref *string) (model.Place, error) {
	var out model.Place
	err := m.write(ctx, func(st *memState) error {
		p, ok := st.places[code]
		if !ok {
			return ErrNotFound
		}
		if p.OccupancyStatus != expected {
			return ErrConflict
		}
		p.OccupancyStatus = next
		p.ActiveReservation = copyString(ref)
		p.LastUpdatedAt = time.Now()
		st.places[code] = p
		out = clonePlace(p)
		return nil
	})
	return out, err
}

func (m memPlaces) AddPending(ctx context.Context, place, reservation string) error {
	return m.link(ctx, place, func(p *model.Place) {
		p.PendingRequests = appendUnique(p.PendingRequests, reservation)
	})
}

func (m memPlaces) RemovePending(ctx context.Context, place, reservation string) error {
	return m.link(ctx, place, func(p *model.Place) {
		out := p.PendingRequests[:0]
		for _, c := range p.PendingRequests {
			if c != reservation {
				out = append(out, c)
			}
		}
		p.PendingRequests = out
	})
}

func (m memPlaces) AppendHistory(ctx context.Context, place, reservation string) error {
	return m.link(ctx, place, func(p *model.Place) {
		p.HistoricalReservations = appendUnique(p.HistoricalReservations, reservation)
	})
}

func (m memPlaces) link(ctx context.Context, code string, fn func(p *model.Place)) error {
	return m.write(ctx, func(st *memState) error {
		p, ok := st.places[code]
		if !ok {
			return ErrNotFound
		}
		fn(&p)
		st.places[code] = p
		return nil
	})
}

type memReservations struct{ memView }

func (m memReservations) FindByCode(_ context.Context, code string) (model.Reservation, error) {
	var (
		r  model.Reservation
		ok bool
	)
	m.read(func(st *memState) {
		r, ok = st.reservations[code]
		r = cloneReservation(r)
	})
	if !ok {
		return model.Reservation{}, ErrNotFound
	}
	return r, nil
}

func (m memReservations) FindByPlaces(_ context.Context, f ReservationFilter, p Page) ([]model.Reservation, error) {
	p = p.Normalized()
	var matched []model.Reservation
	m.read(func(st *memState) {
		for _, r := range st.reservations {
			if f.Matches(r) {
				matched = append(matched, cloneReservation(r))
			}
		}
	})
	// newest first, code breaks ties
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Code > matched[j].Code
	})
	if p.Skip >= len(matched) {
		return []model.Reservation{}, nil
	}
	end := p.Skip + p.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[p.Skip:end], nil
}

func (m memReservations) Create(ctx context.Context, r model.Reservation) (model.Reservation, error) {
	err := m.write(ctx, func(st *memState) error {
		if _, exists := st.reservations[r.Code]; exists {
			return ErrDuplicate
		}
		st.reservations[r.Code] = cloneReservation(r)
		return nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return cloneReservation(r), nil
}

func (m memReservations) UpdateByCode(ctx context.Context, code string, u ReservationUpdate) (model.Reservation, error) {
	var out model.Reservation
	err := m.write(ctx, func(st *memState) error {
		r, ok := st.reservations[code]
		if !ok {
			return ErrNotFound
		}
		if len(u.ExpectStatus) > 0 && !containsStatus(u.ExpectStatus, r.Status) {
			return ErrConflict
		}
		u.Apply(&r)
		st.reservations[code] = r
		out = cloneReservation(r)
		return nil
	})
	return out, err
}

func (m memReservations) Count(_ context.Context, f ReservationFilter) (int64, error) {
	var n int64
	m.read(func(st *memState) {
		for _, r := range st.reservations {
			if f.Matches(r) {
				n++
			}
		}
	})
	return n, nil
}

func (m memReservations) SumPrice(_ context.Context, f ReservationFilter) (int64, error) {
	var sum int64
	m.read(func(st *memState) {
		for _, r := range st.reservations {
			if f.Matches(r) {
				sum += r.PriceValue()
			}
		}
	})
	return sum, nil
}

func (m memReservations) SumPriceByPlace(_ context.Context, f ReservationFilter) (map[string]int64, error) {
	out := map[string]int64{}
	m.read(func(st *memState) {
		for _, r := range st.reservations {
			if f.Matches(r) {
				out[r.Place] += r.PriceValue()
			}
		}
	})
	return out, nil
}

type memUsers struct{ memView }

func (m memUsers) FindByCode(_ context.Context, code string) (model.User, error) {
	var (
		u  model.User
		ok bool
	)
	m.read(func(st *memState) {
		u, ok = st.users[code]
		u = cloneUser(u)
	})
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m memUsers) ListByCompany(_ context.Context, company string) ([]model.User, error) {
	var out []model.User
	m.read(func(st *memState) {
		for _, u := range st.users {
			if u.Company == company {
				out = append(out, cloneUser(u))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func clonePlace(p model.Place) model.Place {
	p.ActiveReservation = copyString(p.ActiveReservation)
	p.PendingRequests = append([]string(nil), p.PendingRequests...)
	p.HistoricalReservations = append([]string(nil), p.HistoricalReservations...)
	p.Prices = append([]model.PlacePrice(nil), p.Prices...)
	p.DeletedAt = copyTime(p.DeletedAt)
	return p
}

func cloneReservation(r model.Reservation) model.Reservation {
	r.StartDate = copyTime(r.StartDate)
	r.EndDate = copyTime(r.EndDate)
	r.RealStartDate = copyTime(r.RealStartDate)
	r.RealEndDate = copyTime(r.RealEndDate)
	r.DeletedAt = copyTime(r.DeletedAt)
	if r.Price != nil {
		p := *r.Price
		r.Price = &p
	}
	r.PlaceCurrentPrices = append([]model.PlacePrice(nil), r.PlaceCurrentPrices...)
	return r
}

func cloneUser(u model.User) model.User {
	u.PushTokens = append([]string(nil), u.PushTokens...)
	u.DeletedAt = copyTime(u.DeletedAt)
	return u
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
