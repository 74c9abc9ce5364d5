package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// VerifyEvent is one row of the cross-window event log. Every gateway
// process appends with its own origin and tails the log for rows
// written by other origins, so a window never reacts to its own writes.
type VerifyEvent struct {
	Seq    int64
	ID     string
	Event  string
	Email  string
	Origin string
	At     time.Time
}

type VerifyEventsStore struct {
	db *sql.DB
}

func NewVerifyEventsStore(db *sql.DB) *VerifyEventsStore {
	return &VerifyEventsStore{db: db}
}

// Append writes an event and returns it with Seq and ID assigned.
func (s *VerifyEventsStore) Append(ctx context.Context, event, email, origin string, at time.Time) (*VerifyEvent, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}
	rec := VerifyEvent{ID: id.String(), Event: event, Email: email, Origin: origin, At: at.UTC()}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO verify_events (id, event, email, origin, at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Event, rec.Email, rec.Origin, rec.At); err != nil {
		return nil, fmt.Errorf("append verify event: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT seq FROM verify_events WHERE id = ?`, rec.ID)
	if err := row.Scan(&rec.Seq); err != nil {
		return nil, fmt.Errorf("read back event seq: %w", err)
	}
	return &rec, nil
}

// ReadSince returns events with Seq strictly greater than after, oldest
// first.
func (s *VerifyEventsStore) ReadSince(ctx context.Context, after int64) ([]VerifyEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, event, email, origin, at FROM verify_events WHERE seq > ? ORDER BY seq ASC`,
		after)
	if err != nil {
		return nil, fmt.Errorf("read verify events: %w", err)
	}
	defer rows.Close()
	var out []VerifyEvent
	for rows.Next() {
		var rec VerifyEvent
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.Event, &rec.Email, &rec.Origin, &rec.At); err != nil {
			return nil, fmt.Errorf("scan verify event: %w", err)
		}
		rec.At = rec.At.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestSeq returns the highest sequence number in the log, so a fresh
// subscriber can start tailing without replaying history.
func (s *VerifyEventsStore) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM verify_events`)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest event seq: %w", err)
	}
	return seq.Int64, nil
}

// PruneBefore deletes events older than cutoff and reports the count.
func (s *VerifyEventsStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verify_events WHERE at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune verify events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
