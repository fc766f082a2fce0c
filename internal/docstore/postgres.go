package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the Postgres backend uses. pgxmock
// pools satisfy it too.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres is an ObjectStore backed by a jsonb table.
type Postgres struct {
	pool   Pool
	bucket string
	now    func() time.Time
}

// NewPostgres connects to connString. bucket only labels locators.
func NewPostgres(ctx context.Context, connString, bucket string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return NewPostgresFromPool(pool, bucket), nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool Pool, bucket string) *Postgres {
	return &Postgres{pool: pool, bucket: bucket, now: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	etag       TEXT NOT NULL,
	size       BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_key_prefix ON documents (key text_pattern_ops);
`

// Migrate creates the documents table.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) Name() string   { return "postgres" }
func (s *Postgres) Bucket() string { return s.bucket }

func (s *Postgres) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, etag, size, updated_at FROM documents WHERE starts_with(key, $1) ORDER BY key`,
		prefix,
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

func (s *Postgres) Get(ctx context.Context, key string) (*RawObject, error) {
	var o RawObject
	var body string
	err := s.pool.QueryRow(ctx,
		`SELECT key, body::text, etag, size, updated_at FROM documents WHERE key = $1`, key,
	).Scan(&o.Key, &body, &o.ETag, &o.Size, &o.LastModified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("get", key)
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	o.Body = []byte(body)
	return &o, nil
}

func (s *Postgres) Put(ctx context.Context, key string, body []byte, ifMatch string) (string, error) {
	etag := ETag(body)
	now := s.now().UTC()

	if ifMatch != "" {
		tag, err := s.pool.Exec(ctx,
			`UPDATE documents SET body = $1, etag = $2, size = $3, updated_at = $4 WHERE key = $5 AND etag = $6`,
			string(body), etag, int64(len(body)), now, key, ifMatch,
		)
		if err != nil {
			return "", &StorageError{Op: "put", Key: key, Err: err}
		}
		if tag.RowsAffected() == 0 {
			return "", &ConflictError{Key: key, Expected: ifMatch}
		}
		return etag, nil
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (key, body, etag, size, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, etag = EXCLUDED.etag, size = EXCLUDED.size, updated_at = EXCLUDED.updated_at`,
		key, string(body), etag, int64(len(body)), now,
	)
	if err != nil {
		return "", &StorageError{Op: "put", Key: key, Err: err}
	}
	return etag, nil
}
