package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PendingAuth is the credential pair parked while an email verification
// is in flight. The cache holds at most one record per shared store:
// starting a new verification wait replaces whatever was parked before.
type PendingAuth struct {
	Email     string
	Password  string
	Owner     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (p *PendingAuth) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

type PendingAuthStore struct {
	db *sql.DB
}

func NewPendingAuthStore(db *sql.DB) *PendingAuthStore {
	return &PendingAuthStore{db: db}
}

// Put parks credentials, overwriting any previously parked pair.
func (s *PendingAuthStore) Put(ctx context.Context, rec PendingAuth) error {
	if rec.Email == "" {
		return errors.New("pending auth requires an email")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_auth WHERE slot = 1`); err != nil {
		return fmt.Errorf("clear slot: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO pending_auth (slot, email, password, owner, created_at, expires_at) VALUES (1, ?, ?, ?, ?, ?)`,
		rec.Email, rec.Password, rec.Owner, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert pending auth: %w", err)
	}
	return tx.Commit()
}

// Peek returns the parked record without consuming it, or nil when the
// slot is empty.
func (s *PendingAuthStore) Peek(ctx context.Context) (*PendingAuth, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT email, password, owner, created_at, expires_at FROM pending_auth WHERE slot = 1`)
	return scanPending(row)
}

// Take atomically reads and deletes the parked record. Two windows
// racing to complete the same verification see exactly one non-nil
// result between them, which is what makes auto-login run once.
func (s *PendingAuthStore) Take(ctx context.Context) (*PendingAuth, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	row := tx.QueryRowContext(ctx,
		`SELECT email, password, owner, created_at, expires_at FROM pending_auth WHERE slot = 1`)
	rec, err := scanPending(row)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_auth WHERE slot = 1`); err != nil {
		return nil, fmt.Errorf("consume pending auth: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PendingAuthStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_auth WHERE slot = 1`); err != nil {
		return fmt.Errorf("delete pending auth: %w", err)
	}
	return nil
}

// DeleteExpired removes a parked record whose TTL has passed and
// reports how many rows went away.
func (s *PendingAuthStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_auth WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired pending auth: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanPending(row *sql.Row) (*PendingAuth, error) {
	var rec PendingAuth
	err := row.Scan(&rec.Email, &rec.Password, &rec.Owner, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending auth: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return &rec, nil
}
