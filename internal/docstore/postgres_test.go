package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := NewPostgresFromPool(mock, "shapes")
	s.now = func() time.Time { return time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS documents`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List(t *testing.T) {
	s, mock := newMockPostgres(t)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT key, etag, size, updated_at FROM documents WHERE starts_with\(key, \$1\)`).
		WithArgs("strategies/").
		WillReturnRows(pgxmock.NewRows([]string{"key", "etag", "size", "updated_at"}).
			AddRow("strategies/a.json", `"e1"`, int64(10), ts).
			AddRow("strategies/b.json", `"e2"`, int64(20), ts))

	infos, err := s.List(context.Background(), "strategies/")
	require.NoError(t, err)
	assert.Equal(t, []ObjectInfo{
		{Key: "strategies/a.json", ETag: `"e1"`, Size: 10, LastModified: ts},
		{Key: "strategies/b.json", ETag: `"e2"`, Size: 20, LastModified: ts},
	}, infos)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetNotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT key, body::text, etag, size, updated_at FROM documents WHERE key = \$1`).
		WithArgs("strategies/zzz.json").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "strategies/zzz.json")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.NotFound())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get(t *testing.T) {
	s, mock := newMockPostgres(t)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT key, body::text`).
		WithArgs("strategies/a.json").
		WillReturnRows(pgxmock.NewRows([]string{"key", "body", "etag", "size", "updated_at"}).
			AddRow("strategies/a.json", `{"name": "A"}`, `"e1"`, int64(13), ts))

	obj, err := s.Get(context.Background(), "strategies/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"name": "A"}`, string(obj.Body))
	assert.Equal(t, `"e1"`, obj.ETag)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutUpsert(t *testing.T) {
	s, mock := newMockPostgres(t)
	body := []byte(`{"name":"A"}`)

	mock.ExpectExec(`INSERT INTO documents .* ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("strategies/a.json", string(body), ETag(body), int64(len(body)), s.now().UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	etag, err := s.Put(context.Background(), "strategies/a.json", body, "")
	require.NoError(t, err)
	assert.Equal(t, ETag(body), etag)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutConditionalConflict(t *testing.T) {
	s, mock := newMockPostgres(t)
	body := []byte(`{"name":"A"}`)

	mock.ExpectExec(`UPDATE documents SET body = \$1, etag = \$2, size = \$3, updated_at = \$4 WHERE key = \$5 AND etag = \$6`).
		WithArgs(string(body), ETag(body), int64(len(body)), s.now().UTC(), "strategies/a.json", `"old"`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := s.Put(context.Background(), "strategies/a.json", body, `"old"`)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, `"old"`, ce.Expected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutError(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO documents`).
		WillReturnError(errors.New("connection reset"))

	_, err := s.Put(context.Background(), "k.json", []byte(`{}`), "")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "put", se.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}
