package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the repos work the
// same inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// MySQL error numbers handled by the store.
const (
	errDuplicateEntry   = 1062
	errLockWaitTimeout  = 1205
	errDeadlockDetected = 1213
)

// MySQLStore is the Store backed by MySQL.  Transactions that lose a
// deadlock or time out waiting for a row lock are replayed up to retries
// times.
type MySQLStore struct {
	db      *sql.DB
	retries int
}

// NewMySQLStore wraps an open database handle.
func NewMySQLStore(db *sql.DB, retries int) *MySQLStore {
	if retries < 0 {
		retries = 0
	}
	return &MySQLStore{db: db, retries: retries}
}

func (s *MySQLStore) Places() PlaceStore             { return &PlaceRepo{q: s.db} }
func (s *MySQLStore) Reservations() ReservationStore { return &ReservationRepo{q: s.db} }
func (s *MySQLStore) Users() UserStore               { return &UserRepo{q: s.db} }

// WithTx implements Store.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) || attempt >= s.retries {
			return err
		}
		// back off a little before replaying, 10ms, 20ms, 40ms...
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(10<<attempt) * time.Millisecond):
		}
	}
}

func (s *MySQLStore) runTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

type mysqlTx struct{ tx *sql.Tx }

func (t mysqlTx) Places() PlaceStore             { return &PlaceRepo{q: t.tx} }
func (t mysqlTx) Reservations() ReservationStore { return &ReservationRepo{q: t.tx} }

func isRetryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == errDeadlockDetected || me.Number == errLockWaitTimeout
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

// exists reports whether a row with the given code is present in table.
func exists(ctx context.Context, q querier, table, code string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE code=? LIMIT 1", code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// conflictOrMissing explains a conditional write that matched no row.
func conflictOrMissing(ctx context.Context, q querier, table, code string) error {
	ok, err := exists(ctx, q, table, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return ErrConflict
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
