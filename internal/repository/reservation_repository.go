package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/iliyamo/place-reservation/internal/model"
)

// ReservationRepo persists reservations.  The occupant snapshot and the
// agreed price are flattened into columns; the place price list at
// booking time is stored as JSON.  All timestamps are written in UTC.
type ReservationRepo struct {
	q querier
}

const reservationColumns = `code, status, place, company, house,
       occupant_first_name, occupant_last_name, occupant_phone, occupant_identification, occupant_token,
       start_date, end_date, real_start_date, real_end_date,
       price_value, price_description, price_currency, place_prices,
       is_extended, duration, created_by, last_updated_by, is_public_request,
       created_at, last_updated_at, is_deleted, deleted_at`

func scanReservation(s scanner) (model.Reservation, error) {
	var (
		r                                   model.Reservation
		start, end, realStart, realEnd, del sql.NullTime
		priceValue                          sql.NullInt64
		priceDesc, priceCur                 string
		placePrices                         []byte
	)
	err := s.Scan(
		&r.Code, &r.Status, &r.Place, &r.Company, &r.House,
		&r.Occupant.FirstName, &r.Occupant.LastName, &r.Occupant.Phone, &r.Occupant.Identification, &r.Occupant.TokenValue,
		&start, &end, &realStart, &realEnd,
		&priceValue, &priceDesc, &priceCur, &placePrices,
		&r.Extended, &r.Duration, &r.CreatedBy, &r.LastUpdatedBy, &r.IsPublicRequest,
		&r.CreatedAt, &r.LastUpdatedAt, &r.IsDeleted, &del,
	)
	if err != nil {
		return model.Reservation{}, err
	}
	r.StartDate, r.EndDate = timePtr(start), timePtr(end)
	r.RealStartDate, r.RealEndDate = timePtr(realStart), timePtr(realEnd)
	r.DeletedAt = timePtr(del)
	if priceValue.Valid {
		r.Price = &model.Price{Value: priceValue.Int64, Description: priceDesc, Currency: priceCur}
	}
	if len(placePrices) > 0 {
		if err := json.Unmarshal(placePrices, &r.PlaceCurrentPrices); err != nil {
			return model.Reservation{}, err
		}
	}
	return r, nil
}

// FindByCode returns ErrNotFound when no reservation has the code.
func (r *ReservationRepo) FindByCode(ctx context.Context, code string) (model.Reservation, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE code=? LIMIT 1", code)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	return res, err
}

// whereClause renders a filter.  The window applies to start_date, so
// rows without one never match a bounded window.
func whereClause(f ReservationFilter) (string, []any) {
	conds := []string{"is_deleted=0"}
	var args []any
	if f.Company != "" {
		conds = append(conds, "company = ?")
		args = append(args, f.Company)
	}
	if len(f.Places) > 0 {
		conds = append(conds, "place IN ("+placeholders(len(f.Places))+")")
		for _, p := range f.Places {
			args = append(args, p)
		}
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	column := "start_date"
	if f.ByEndDate {
		column = "end_date"
	}
	if f.Window.Start != nil {
		conds = append(conds, column+" >= ?")
		args = append(args, f.Window.Start.UTC())
	}
	if f.Window.End != nil {
		conds = append(conds, column+" <= ?")
		args = append(args, f.Window.End.UTC())
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FindByPlaces lists matching reservations, newest first.
func (r *ReservationRepo) FindByPlaces(ctx context.Context, f ReservationFilter, p Page) ([]model.Reservation, error) {
	p = p.Normalized()
	where, args := whereClause(f)
	args = append(args, p.Limit, p.Skip)
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations"+where+" ORDER BY created_at DESC, code DESC LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Create inserts res.  A reused code yields ErrDuplicate.
func (r *ReservationRepo) Create(ctx context.Context, res model.Reservation) (model.Reservation, error) {
	placePrices, err := json.Marshal(res.PlaceCurrentPrices)
	if err != nil {
		return model.Reservation{}, err
	}
	var (
		priceValue          any
		priceDesc, priceCur = "", model.DefaultCurrency
	)
	if res.Price != nil {
		priceValue, priceDesc = res.Price.Value, res.Price.Description
		if res.Price.Currency != "" {
			priceCur = res.Price.Currency
		}
	}
	_, err = r.q.ExecContext(ctx,
		"INSERT INTO reservations ("+reservationColumns+`)
		 VALUES (?,?,?,?,?, ?,?,?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?,?,?, ?,?,?,?)`,
		res.Code, string(res.Status), res.Place, res.Company, res.House,
		res.Occupant.FirstName, res.Occupant.LastName, res.Occupant.Phone, res.Occupant.Identification, res.Occupant.TokenValue,
		nullTime(res.StartDate), nullTime(res.EndDate), nullTime(res.RealStartDate), nullTime(res.RealEndDate),
		priceValue, priceDesc, priceCur, placePrices,
		res.Extended, string(res.Duration), res.CreatedBy, res.LastUpdatedBy, res.IsPublicRequest,
		res.CreatedAt.UTC(), res.LastUpdatedAt.UTC(), res.IsDeleted, nullTime(res.DeletedAt),
	)
	if isDuplicate(err) {
		return model.Reservation{}, ErrDuplicate
	}
	if err != nil {
		return model.Reservation{}, err
	}
	return res, nil
}

// UpdateByCode applies u, conditionally on the current status when
// u.ExpectStatus is set, and returns the stored row.
func (r *ReservationRepo) UpdateByCode(ctx context.Context, code string, u ReservationUpdate) (model.Reservation, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.Occupant != nil {
		set("occupant_first_name", u.Occupant.FirstName)
		set("occupant_last_name", u.Occupant.LastName)
		set("occupant_phone", u.Occupant.Phone)
		set("occupant_identification", u.Occupant.Identification)
		set("occupant_token", u.Occupant.TokenValue)
	}
	if u.StartDate != nil {
		set("start_date", u.StartDate.UTC())
	}
	if u.EndDate != nil {
		set("end_date", u.EndDate.UTC())
	}
	if u.RealStartDate != nil {
		set("real_start_date", u.RealStartDate.UTC())
	}
	if u.RealEndDate != nil {
		set("real_end_date", u.RealEndDate.UTC())
	}
	if u.Price != nil {
		cur := u.Price.Currency
		if cur == "" {
			cur = model.DefaultCurrency
		}
		set("price_value", u.Price.Value)
		set("price_description", u.Price.Description)
		set("price_currency", cur)
	}
	if u.Extended != nil {
		set("is_extended", *u.Extended)
	}
	if u.Duration != nil {
		set("duration", string(*u.Duration))
	}
	if u.LastUpdatedBy != nil {
		set("last_updated_by", *u.LastUpdatedBy)
	}
	if !u.LastUpdatedAt.IsZero() {
		set("last_updated_at", u.LastUpdatedAt.UTC())
	}
	if len(sets) == 0 {
		// nothing to write, still honour the status guard
		cur, err := r.FindByCode(ctx, code)
		if err != nil {
			return model.Reservation{}, err
		}
		if len(u.ExpectStatus) > 0 && !containsStatus(u.ExpectStatus, cur.Status) {
			return model.Reservation{}, ErrConflict
		}
		return cur, nil
	}

	q := "UPDATE reservations SET " + strings.Join(sets, ", ") + " WHERE code=?"
	args = append(args, code)
	if len(u.ExpectStatus) > 0 {
		q += " AND status IN (" + placeholders(len(u.ExpectStatus)) + ")"
		for _, s := range u.ExpectStatus {
			args = append(args, string(s))
		}
	}
	res, err := r.q.ExecContext(ctx, q, args...)
	if err != nil {
		return model.Reservation{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Reservation{}, err
	}
	if n == 0 {
		return model.Reservation{}, conflictOrMissing(ctx, r.q, "reservations", code)
	}
	return r.FindByCode(ctx, code)
}

// Count returns the number of matching reservations.
func (r *ReservationRepo) Count(ctx context.Context, f ReservationFilter) (int64, error) {
	where, args := whereClause(f)
	var n int64
	err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations"+where, args...).Scan(&n)
	return n, err
}

// SumPrice adds up price values; reservations without a price count as 0.
func (r *ReservationRepo) SumPrice(ctx context.Context, f ReservationFilter) (int64, error) {
	where, args := whereClause(f)
	var sum int64
	err := r.q.QueryRowContext(ctx, "SELECT COALESCE(SUM(price_value),0) FROM reservations"+where, args...).Scan(&sum)
	return sum, err
}

// SumPriceByPlace is SumPrice grouped by place.  Places without a
// matching reservation are absent from the map.
func (r *ReservationRepo) SumPriceByPlace(ctx context.Context, f ReservationFilter) (map[string]int64, error) {
	where, args := whereClause(f)
	rows, err := r.q.QueryContext(ctx,
		"SELECT place, COALESCE(SUM(price_value),0) FROM reservations"+where+" GROUP BY place", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var (
			place string
			sum   int64
		)
		if err := rows.Scan(&place, &sum); err != nil {
			return nil, err
		}
		out[place] = sum
	}
	return out, rows.Err()
}

var _ ReservationStore = (*ReservationRepo)(nil)
