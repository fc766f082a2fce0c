package docstore

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ultradar/internal/config"
	"github.com/sells-group/ultradar/internal/metrics"
)

// Migrator is implemented by backends that own their schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

// OpenBackend builds the ObjectStore named by cfg.Driver.
func OpenBackend(ctx context.Context, cfg config.DocStoreConfig, region string) (ObjectStore, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3(ctx, region, cfg.Bucket)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Bucket)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "memory":
		return NewMemory(cfg.Bucket), nil
	}
	return nil, eris.Errorf("docstore: unknown driver %q", cfg.Driver)
}

// Open builds the configured backend, migrates SQL backends and wraps the
// result in a Store.
func Open(ctx context.Context, cfg config.DocStoreConfig, region string, m *metrics.Registry) (*Store, error) {
	backend, err := OpenBackend(ctx, cfg, region)
	if err != nil {
		return nil, err
	}
	if mg, ok := backend.(Migrator); ok {
		if err := mg.Migrate(ctx); err != nil {
			Close(backend)
			return nil, err
		}
	}
	zap.L().Info("docstore: opened",
		zap.String("driver", cfg.Driver),
		zap.String("bucket", backend.Bucket()),
		zap.Bool("conditional_put", cfg.ConditionalPut),
	)
	return New(backend,
		WithConditionalPut(cfg.ConditionalPut),
		WithConcurrency(cfg.ListConcurrency),
		WithMetrics(m),
	), nil
}

// Close releases backend connections, if any.
func Close(backend ObjectStore) {
	if c, ok := backend.(Closer); ok {
		if err := c.Close(); err != nil {
			zap.L().Warn("docstore: close", zap.Error(err))
		}
	}
}
