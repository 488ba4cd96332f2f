package storage

import (
	"context"
	"fmt"
	"time"
)

// ErrorEntry is one row of the error log written by the reporter.
type ErrorEntry struct {
	ID        int64     `json:"id"`
	Component string    `json:"component"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordError appends an entry to the error log.
func (s *Store) RecordError(ctx context.Context, e ErrorEntry) error {
	at := e.CreatedAt
	if at.IsZero() {
		at = s.now()
	}
	query, args, err := s.sb.Insert("error_log").
		Columns("component", "kind", "source", "message", "created_at").
		Values(e.Component, e.Kind, e.Source, e.Message, at.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record error: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	return nil
}

// RecentErrors returns the newest entries first.
func (s *Store) RecentErrors(ctx context.Context, limit int) ([]ErrorEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := s.sb.Select("id", "component", "kind", "source", "message", "created_at").
		From("error_log").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent errors: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent errors: %w", err)
	}
	defer rows.Close()

	var out []ErrorEntry
	for rows.Next() {
		var e ErrorEntry
		if err := rows.Scan(&e.ID, &e.Component, &e.Kind, &e.Source, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error entry: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
