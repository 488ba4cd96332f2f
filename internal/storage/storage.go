// Package storage is the relational store behind the pipeline: feed registry,
// articles, refresh metadata and the error log. Postgres (lib/pq) and SQLite
// (modernc.org/sqlite) share one query layer built with squirrel.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("storage: not found")

//go:embed schema_postgres.sql
var schemaPostgres string

//go:embed schema_sqlite.sql
var schemaSQLite string

// Store is the SQL-backed implementation used by every pipeline component.
type Store struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
}

// Open connects to the database, checks the connection and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite {
		dsn = SQLiteDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// every :memory: connection is its own database
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db, driver)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSN adds the busy timeout and WAL pragmas to a file DSN so that every
// pooled connection gets them. In-memory and already tuned DSNs are returned
// unchanged.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// OpenMemory returns a fresh in-memory SQLite store with the schema applied.
func OpenMemory(ctx context.Context) (*Store, error) {
	return Open(ctx, DriverSQLite, ":memory:")
}

// New wraps an already opened handle. The schema is not applied.
func New(db *sql.DB, driver string) *Store {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &Store{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Driver() string { return s.driver }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Stats is a snapshot of table sizes for dbcheck and /health.
type Stats struct {
	Sources       int `json:"sources"`
	ActiveSources int `json:"active_sources"`
	Articles      int `json:"articles"`
	Untranslated  int `json:"untranslated"`
	ErrorLog      int `json:"error_log"`
}

// Counts returns row counts for the main tables.
func (s *Store) Counts(ctx context.Context) (Stats, error) {
	var st Stats
	queries := []struct {
		dst *int
		q   sq.SelectBuilder
	}{
		{&st.Sources, s.sb.Select("COUNT(*)").From("sources")},
		{&st.ActiveSources, s.sb.Select("COUNT(*)").From("sources").Where(sq.Eq{"active": true})},
		{&st.Articles, s.sb.Select("COUNT(*)").From("articles")},
		{&st.Untranslated, s.sb.Select("COUNT(*)").From("articles").Where(untranslated)},
		{&st.ErrorLog, s.sb.Select("COUNT(*)").From("error_log")},
	}
	for _, c := range queries {
		query, args, err := c.q.ToSql()
		if err != nil {
			return st, fmt.Errorf("build count: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(c.dst); err != nil {
			return st, fmt.Errorf("count: %w", err)
		}
	}
	return st, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
