package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"scanvault/internal/activity"
)

const defaultRecentLimit = 50

// Record appends one event.
func (j *Journal) Record(ctx context.Context, ev activity.Event) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal is not open")
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	var kind sql.NullString
	if strings.TrimSpace(ev.Kind) != "" {
		kind = sql.NullString{String: ev.Kind, Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO store_events (store, op, subject, bytes, kind, at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Store, string(ev.Op), ev.Subject, ev.Bytes, kind, formatTime(ev.At),
	)
	return err
}

// Observe records ev and logs a failure instead of returning it, so a broken
// journal never fails a store operation.
func (j *Journal) Observe(ctx context.Context, ev activity.Event) {
	if err := j.Record(context.WithoutCancel(ctx), ev); err != nil {
		j.log().Warn("journal record failed", "store", ev.Store, "op", ev.Op, "subject", ev.Subject, "error", err)
	}
}

var _ activity.Observer = (*Journal)(nil)

// Filter narrows Recent. Empty fields match everything.
type Filter struct {
	Store string
	Op    activity.Op
	Limit int
}

// Recent returns the newest events first.
func (j *Journal) Recent(ctx context.Context, f Filter) ([]activity.Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `SELECT store, op, subject, bytes, kind, at FROM store_events`
	var where []string
	var args []any
	if f.Store != "" {
		where = append(where, "store = ?")
		args = append(args, f.Store)
	}
	if f.Op != "" {
		where = append(where, "op = ?")
		args = append(args, string(f.Op))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]activity.Event, 0)
	for rows.Next() {
		var (
			ev   activity.Event
			op   string
			kind sql.NullString
			at   string
		)
		if err := rows.Scan(&ev.Store, &op, &ev.Subject, &ev.Bytes, &kind, &at); err != nil {
			return nil, err
		}
		ev.Op = activity.Op(op)
		if kind.Valid {
			ev.Kind = kind.String
		}
		parsed, err := parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("parse event time %q: %w", at, err)
		}
		ev.At = parsed
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SummaryRow aggregates events for one store and op.
type SummaryRow struct {
	Store string      `json:"store"`
	Op    activity.Op `json:"op"`
	Count int64       `json:"count"`
	Bytes int64       `json:"bytes"`
}

// Summary counts events and bytes per store and op.
func (j *Journal) Summary(ctx context.Context) ([]SummaryRow, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT store, op, COUNT(*), COALESCE(SUM(bytes), 0) FROM store_events GROUP BY store, op ORDER BY store, op`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SummaryRow, 0)
	for rows.Next() {
		var row SummaryRow
		var op string
		if err := rows.Scan(&row.Store, &op, &row.Count, &row.Bytes); err != nil {
			return nil, err
		}
		row.Op = activity.Op(op)
		out = append(out, row)
	}
	return out, rows.Err()
}

// Prune deletes events recorded before cutoff and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM store_events WHERE at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
