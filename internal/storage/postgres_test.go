package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sarawaknews/internal/storage"
)

func newPostgresMock(t *testing.T) (*storage.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storage.New(db, storage.DriverPostgres), mock
}

func TestPostgresInsertArticleUsesDollarPlaceholders(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectExec(`INSERT INTO articles \(url,title,snippet,source_name,category,subregion,published_at,created_at\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8\) ON CONFLICT \(url\) DO NOTHING`).
		WithArgs("https://x/1", "Kuching unveils new bridge", "", "Borneo Post", "infrastructure", "Kuching", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.InsertArticleIfAbsent(context.Background(), storage.Article{
		URL: "https://x/1", Title: "Kuching unveils new bridge", SourceName: "Borneo Post",
		Category: "infrastructure", Subregion: "Kuching",
	})
	require.NoError(t, err)
	assert.False(t, inserted, "zero rows affected means duplicate")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordFailureIncrementsCounter(t *testing.T) {
	s, mock := newPostgresMock(t)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE sources SET error_count = error_count \+ 1, last_error = \$1, last_fetched_at = \$2 WHERE id = \$3`).
		WithArgs("boom", at, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.RecordSourceFailure(context.Background(), 7, "boom", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetMetadataIsAtomic(t *testing.T) {
	s, mock := newPostgresMock(t)

	upsert := `INSERT INTO metadata \(key,value,updated_at\) VALUES \(\$1,\$2,\$3\) ON CONFLICT \(key\) DO UPDATE SET value = excluded.value`
	mock.ExpectBegin()
	mock.ExpectExec(upsert).WithArgs("a", "1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsert).WithArgs("b", "2", sqlmock.AnyArg()).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.SetMetadata(context.Background(), map[string]string{"a": "1", "b": "2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set metadata b")
	require.NoError(t, mock.ExpectationsWereMet())
}
