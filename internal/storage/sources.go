package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/deusflow/sarawaknews/internal/sources"
)

var sourceColumns = []string{
	"id", "name", "url", "active", "always_relevant", "error_count",
	"last_error", "last_fetched_at", "last_success_at", "created_at",
}

// AddSource registers a feed and returns its id.
func (s *Store) AddSource(ctx context.Context, src sources.Source) (int64, error) {
	query, args, err := s.sb.Insert("sources").
		Columns("name", "url", "active", "always_relevant", "created_at").
		Values(src.Name, src.URL, src.Active, src.AlwaysRelevant, s.now()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert source: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert source %s: %w", src.URL, err)
	}
	return id, nil
}

// SeedSources inserts every source whose URL is not registered yet. Existing rows,
// including their active flag, are left untouched.
func (s *Store) SeedSources(ctx context.Context, list []sources.Source) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	for _, src := range list {
		query, args, err := s.sb.Insert("sources").
			Columns("name", "url", "active", "always_relevant", "created_at").
			Values(src.Name, src.URL, src.Active, src.AlwaysRelevant, s.now()).
			Suffix("ON CONFLICT (url) DO NOTHING").
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("build seed insert: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("seed source %s: %w", src.URL, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return added, nil
}

// GetSource loads one source by id.
func (s *Store) GetSource(ctx context.Context, id int64) (sources.Source, error) {
	query, args, err := s.sb.Select(sourceColumns...).From("sources").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return sources.Source{}, fmt.Errorf("build get source: %w", err)
	}
	src, err := scanSource(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return sources.Source{}, ErrNotFound
	}
	if err != nil {
		return sources.Source{}, fmt.Errorf("get source %d: %w", id, err)
	}
	return src, nil
}

// ListSources returns every registered source in registry order.
func (s *Store) ListSources(ctx context.Context) ([]sources.Source, error) {
	return s.listSources(ctx, nil)
}

// ListActiveSources returns active sources in registry order, the order a refresh cycle visits them.
func (s *Store) ListActiveSources(ctx context.Context) ([]sources.Source, error) {
	return s.listSources(ctx, sq.Eq{"active": true})
}

func (s *Store) listSources(ctx context.Context, where sq.Sqlizer) ([]sources.Source, error) {
	b := s.sb.Select(sourceColumns...).From("sources").OrderBy("id")
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sources: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []sources.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SetSourceActive flips the active flag.
func (s *Store) SetSourceActive(ctx context.Context, id int64, active bool) error {
	query, args, err := s.sb.Update("sources").Set("active", active).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build set active: %w", err)
	}
	return s.execOne(ctx, query, args, fmt.Sprintf("set source %d active", id))
}

// RecordSourceSuccess clears the error counter and stamps both fetch timestamps.
func (s *Store) RecordSourceSuccess(ctx context.Context, id int64, at time.Time) error {
	at = at.UTC()
	query, args, err := s.sb.Update("sources").
		Set("error_count", 0).
		Set("last_error", nil).
		Set("last_fetched_at", at).
		Set("last_success_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record success: %w", err)
	}
	return s.execOne(ctx, query, args, fmt.Sprintf("record success for source %d", id))
}

// RecordSourceFailure bumps the error counter, keeps the message and stamps the
// attempt time. The last success time is left as is.
func (s *Store) RecordSourceFailure(ctx context.Context, id int64, message string, at time.Time) error {
	query, args, err := s.sb.Update("sources").
		Set("error_count", sq.Expr("error_count + 1")).
		Set("last_error", message).
		Set("last_fetched_at", at.UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record failure: %w", err)
	}
	return s.execOne(ctx, query, args, fmt.Sprintf("record failure for source %d", id))
}

func (s *Store) execOne(ctx context.Context, query string, args []any, what string) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(r rowScanner) (sources.Source, error) {
	var (
		src       sources.Source
		lastError sql.NullString
		fetched   sql.NullTime
		success   sql.NullTime
	)
	err := r.Scan(&src.ID, &src.Name, &src.URL, &src.Active, &src.AlwaysRelevant,
		&src.ErrorCount, &lastError, &fetched, &success, &src.CreatedAt)
	if err != nil {
		return sources.Source{}, err
	}
	src.LastError = lastError.String
	src.LastFetchedAt = timePtr(fetched)
	src.LastSuccessAt = timePtr(success)
	src.CreatedAt = src.CreatedAt.UTC()
	return src, nil
}
