package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/iliyamo/place-reservation/internal/model"
)

// UserRepo is a read-only view of the users table.
type UserRepo struct{ q querier }

const userColumns = "code, first_name, company, house, account_type, push_tokens, is_active, created_at, last_updated_at, is_deleted, deleted_at"

func scanUser(s scanner) (model.User, error) {
	var (
		u      model.User
		tokens []byte
		del    sql.NullTime
	)
	err := s.Scan(&u.Code, &u.FirstName, &u.Company, &u.House, &u.AccountType, &tokens,
		&u.IsActive, &u.CreatedAt, &u.LastUpdatedAt, &u.IsDeleted, &del)
	if err != nil {
		return model.User{}, err
	}
	u.DeletedAt = timePtr(del)
	if len(tokens) > 0 {
		if err := json.Unmarshal(tokens, &u.PushTokens); err != nil {
			return model.User{}, err
		}
	}
	return u, nil
}

// FindByCode fetches a user by code.
func (r *UserRepo) FindByCode(ctx context.Context, code string) (model.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE code=? LIMIT 1", code))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// ListByCompany returns every account of a company, ordered by code.
func (r *UserRepo) ListByCompany(ctx context.Context, company string) ([]model.User, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+userColumns+" FROM users WHERE company=? ORDER BY code", company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

var _ UserStore = (*UserRepo)(nil)
