package docstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLite is an ObjectStore backed by a single table in a SQLite file.
type SQLite struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

// NewSQLite opens the database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db, dsn: dsn, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	etag       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// Migrate creates the documents table.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Name() string   { return "sqlite" }
func (s *SQLite) Bucket() string { return s.dsn }

func (s *SQLite) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, etag, size, updated_at FROM documents WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
		prefix, prefix,
	)
	if err != nil {
		return nil, &StorageError{Op: "list", Key: prefix, Err: err}
	}
	defer rows.Close()

	var out []ObjectInfo
	for rows.Next() {
		var info ObjectInfo
		if err := rows.Scan(&info.Key, &info.ETag, &info.Size, &info.LastModified); err != nil {
			return nil, &StorageError{Op: "list", Key: prefix, Err: err}
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Key: prefix, Err: err}
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (*RawObject, error) {
	var o RawObject
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT key, body, etag, size, updated_at FROM documents WHERE key = ?`, key,
	).Scan(&o.Key, &body, &o.ETag, &o.Size, &o.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get", key)
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	o.Body = []byte(body)
	return &o, nil
}

func (s *SQLite) Put(ctx context.Context, key string, body []byte, ifMatch string) (string, error) {
	etag := ETag(body)
	now := s.now().UTC()

	if ifMatch != "" {
		res, err := s.db.ExecContext(ctx,
			`UPDATE documents SET body = ?, etag = ?, size = ?, updated_at = ? WHERE key = ? AND etag = ?`,
			string(body), etag, len(body), now, key, ifMatch,
		)
		if err != nil {
			return "", &StorageError{Op: "put", Key: key, Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", &ConflictError{Key: key, Expected: ifMatch}
		}
		return etag, nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (key, body, etag, size, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, etag = excluded.etag, size = excluded.size, updated_at = excluded.updated_at`,
		key, string(body), etag, len(body), now,
	)
	if err != nil {
		return "", &StorageError{Op: "put", Key: key, Err: err}
	}
	return etag, nil
}
