package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/place-reservation/internal/model"
)

// PlaceRepo reads places and writes their occupancy and reservation
// links.  The pending and history lists live in place_reservations, one
// row per (place, kind, reservation).
type PlaceRepo struct {
	q querier
}

// link kinds in place_reservations
const (
	linkPending = "PENDING"
	linkHistory = "HISTORY"
)

const placeColumns = `code, company, house, name, occupancy_status, active_reservation, prices,
       created_at, last_updated_at, is_deleted, deleted_at`

// FindByCode loads a place with its pending and history lists.
func (r *PlaceRepo) FindByCode(ctx context.Context, code string) (model.Place, error) {
	var (
		p         model.Place
		active    sql.NullString
		prices    []byte
		deletedAt sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, "SELECT "+placeColumns+" FROM places WHERE code=? LIMIT 1", code).Scan(
		&p.Code, &p.Company, &p.House, &p.Name, &p.OccupancyStatus, &active, &prices,
		&p.CreatedAt, &p.LastUpdatedAt, &p.IsDeleted, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Place{}, ErrNotFound
	}
	if err != nil {
		return model.Place{}, err
	}
	if active.Valid {
		s := active.String
		p.ActiveReservation = &s
	}
	p.DeletedAt = timePtr(deletedAt)
	if len(prices) > 0 {
		if err := json.Unmarshal(prices, &p.Prices); err != nil {
			return model.Place{}, err
		}
	}

	rows, err := r.q.QueryContext(ctx,
		"SELECT kind, reservation FROM place_reservations WHERE place=? ORDER BY linked_at, reservation", code)
	if err != nil {
		return model.Place{}, err
	}
	defer rows.Close()
	p.PendingRequests, p.HistoricalReservations = []string{}, []string{}
	for rows.Next() {
		var kind, res string
		if err := rows.Scan(&kind, &res); err != nil {
			return model.Place{}, err
		}
		switch kind {
		case linkPending:
			p.PendingRequests = append(p.PendingRequests, res)
		case linkHistory:
			p.HistoricalReservations = append(p.HistoricalReservations, res)
		}
	}
	return p, rows.Err()
}

// UpdateOccupancy is a compare-and-set on occupancy_status.
func (r *PlaceRepo) UpdateOccupancy(ctx context.Context, code string, expected, next model.OccupancyStatus, ref *string) (model.Place, error) {
	var active any
	if ref != nil {
		active = *ref
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE places SET occupancy_status=?, active_reservation=?, last_updated_at=?
		 WHERE code=? AND occupancy_status=?`,
		string(next), active, time.Now().UTC(), code, string(expected))
	if err != nil {
		return model.Place{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Place{}, err
	}
	if n == 0 {
		return model.Place{}, conflictOrMissing(ctx, r.q, "places", code)
	}
	return r.FindByCode(ctx, code)
}

func (r *PlaceRepo) AddPending(ctx context.Context, place, reservation string) error {
	return r.link(ctx, place, linkPending, reservation)
}

func (r *PlaceRepo) AppendHistory(ctx context.Context, place, reservation string) error {
	return r.link(ctx, place, linkHistory, reservation)
}

func (r *PlaceRepo) RemovePending(ctx context.Context, place, reservation string) error {
	if err := r.mustExist(ctx, place); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx,
		"DELETE FROM place_reservations WHERE place=? AND kind=? AND reservation=?",
		place, linkPending, reservation)
	return err
}

// link inserts the row once; repeated links keep the first timestamp.
func (r *PlaceRepo) link(ctx context.Context, place, kind, reservation string) error {
	if err := r.mustExist(ctx, place); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx,
		"INSERT IGNORE INTO place_reservations (place, kind, reservation, linked_at) VALUES (?,?,?,?)",
		place, kind, reservation, time.Now().UTC())
	return err
}

func (r *PlaceRepo) mustExist(ctx context.Context, place string) error {
	ok, err := exists(ctx, r.q, "places", place)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

var _ PlaceStore = (*PlaceRepo)(nil)
