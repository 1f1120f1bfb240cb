package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/apporte/notify/internal/notification"
)

// ErrRecordNotFound marks updates and deletes aimed at a record id that
// does not exist. Query failures are returned as-is.
var ErrRecordNotFound = errors.New("record not found")

// CreateRecord inserts a new delivery record and fills in the assigned id
// and created_at.
func (s *Store) CreateRecord(ctx context.Context, rec *notification.Record) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO notify.notifications(user_id, event_type, channel, status, error_message, payload, sent_at)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), $6::jsonb, $7)
		RETURNING id, created_at`,
		rec.UserID, rec.EventType, rec.Channel, string(rec.Status), rec.ErrorMessage, string(rec.Payload), rec.SentAt,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// UpdateRecord persists the mutable lifecycle fields of an existing record.
// The payload snapshot is immutable after creation.
func (s *Store) UpdateRecord(ctx context.Context, rec *notification.Record) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE notify.notifications
		SET status = $2, error_message = NULLIF($3,''), sent_at = $4, updated_at = now()
		WHERE id = $1`,
		rec.ID, string(rec.Status), rec.ErrorMessage, rec.SentAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("record %d: %w", rec.ID, ErrRecordNotFound)
	}
	return nil
}

// FindRecord loads one record by id. Returns (nil, nil) when absent.
func (s *Store) FindRecord(ctx context.Context, id int64) (*notification.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT id, user_id, event_type, channel, status, COALESCE(error_message,''), payload::text, created_at, sent_at
		FROM notify.notifications
		WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func scanRecord(row pgx.Row) (*notification.Record, error) {
	var (
		rec     notification.Record
		status  string
		payload string
		sentAt  sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.EventType, &rec.Channel, &status, &rec.ErrorMessage, &payload, &rec.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	rec.Status = notification.Status(status)
	rec.Payload = []byte(payload)
	if sentAt.Valid {
		t := sentAt.Time
		rec.SentAt = &t
	}
	return &rec, nil
}

// Filter narrows record listings and counts. Zero values mean "no filter".
type Filter struct {
	Status    string
	Channel   string
	EventType string
	UserID    string
	Start     time.Time
	End       time.Time
	Limit     int
	Offset    int
}

// where builds the WHERE clause and argument list for the filter. Argument
// placeholders start at $1.
func (f Filter) where() (string, []any) {
	clause := "1=1"
	var args []any
	argn := 0
	add := func(cond string, v any) {
		argn++
		clause += fmt.Sprintf(" AND "+cond, argn)
		args = append(args, v)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Channel != "" {
		add("channel = $%d", f.Channel)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if !f.Start.IsZero() {
		add("created_at >= $%d", f.Start)
	}
	if !f.End.IsZero() {
		add("created_at <= $%d", f.End)
	}
	return clause, args
}

// ListRecords returns records matching the filter, newest first.
func (s *Store) ListRecords(ctx context.Context, f Filter) ([]notification.Record, error) {
	clause, args := f.where()
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	q := fmt.Sprintf(`
		SELECT id, user_id, event_type, channel, status, COALESCE(error_message,''), payload::text, created_at, sent_at
		FROM notify.notifications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, clause, limit, f.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notification.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// CountRecords returns the number of records matching the filter.
func (s *Store) CountRecords(ctx context.Context, f Filter) (int64, error) {
	clause, args := f.where()
	var n int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM notify.notifications WHERE %s`, clause), args...).Scan(&n)
	return n, err
}

// DeleteRecord removes a single record. Housekeeping surface, not used by
// the dispatch engine.
func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM notify.notifications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("record %d: %w", id, ErrRecordNotFound)
	}
	return nil
}

// PurgeOlderThan deletes terminal-status records created before the cutoff
// and returns how many rows went away.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM notify.notifications
		WHERE created_at < $1 AND status IN ('sent','error')`, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
