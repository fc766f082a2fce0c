// Package catalog keeps the list of known strategies used to enrich
// exclusion filters. The list is fetched at most once per TTL and concurrent
// callers share a single fetch.
package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/ultradar/internal/metrics"
)

// State is the lifecycle of a Cache.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return "empty"
}

// Entry is one known strategy.
type Entry struct {
	ID           string `json:"strategy_id"`
	Name         string `json:"name"`
	Key          string `json:"key,omitempty"`
	Version      int    `json:"version,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Source fetches the full catalog.
type Source interface {
	Strategies(ctx context.Context) ([]Entry, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Entry, error)

// Strategies calls f.
func (f SourceFunc) Strategies(ctx context.Context) ([]Entry, error) { return f(ctx) }

// Stats reports cache activity.
type Stats struct {
	State   string `json:"state"`
	Entries int    `json:"entries"`
	Hits    int64  `json:"hits"`
	Loads   int64  `json:"loads"`
}

// Cache holds the catalog. A zero TTL means load once and keep until Refresh.
type Cache struct {
	src     Source
	ttl     time.Duration
	metrics *metrics.Registry
	now     func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	state    State
	entries  []Entry
	loadedAt time.Time
	err      error

	hits  atomic.Int64
	loads atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics records loads on m.
func WithMetrics(m *metrics.Registry) Option { return func(c *Cache) { c.metrics = m } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// NewCache creates an empty cache over src.
func NewCache(src Source, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{src: src, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the catalog, fetching it if it is empty, failed or expired.
func (c *Cache) Get(ctx context.Context) ([]Entry, error) {
	c.mu.RLock()
	if c.state == StateReady && !c.expired() {
		entries := c.entries
		c.mu.RUnlock()
		c.hits.Add(1)
		return entries, nil
	}
	c.mu.RUnlock()
	return c.load(ctx)
}

// Refresh discards the cached catalog and fetches it again.
func (c *Cache) Refresh(ctx context.Context) ([]Entry, error) {
	c.group.Forget(loadKey)
	return c.load(ctx)
}

// Invalidate drops the cached catalog so the next Get fetches it again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateReady {
		c.state = StateEmpty
		c.entries = nil
	}
}

// State returns the current lifecycle state.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the error of the last failed load, if the cache is in StateError.
func (c *Cache) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	s := Stats{State: c.state.String(), Entries: len(c.entries)}
	c.mu.RUnlock()
	s.Hits = c.hits.Load()
	s.Loads = c.loads.Load()
	return s
}

const loadKey = "catalog"

func (c *Cache) load(ctx context.Context) ([]Entry, error) {
	ch := c.group.DoChan(loadKey, func() (any, error) {
		c.mu.Lock()
		c.state = StateLoading
		c.mu.Unlock()

		// Shared by every waiter, so one caller giving up must not cancel it.
		entries, err := c.src.Strategies(context.WithoutCancel(ctx))
		c.loads.Add(1)
		c.metrics.CatalogLoad(err)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.state = StateError
			c.err = err
			zap.L().Warn("catalog: load failed", zap.Error(err))
			return nil, eris.Wrap(err, "catalog: load")
		}
		if entries == nil {
			entries = []Entry{}
		}
		c.state = StateReady
		c.entries = entries
		c.loadedAt = c.now()
		c.err = nil
		zap.L().Debug("catalog: loaded", zap.Int("entries", len(entries)))
		return entries, nil
	})

	select {
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "catalog: wait for load")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Entry), nil
	}
}

// expired must be called with mu held.
func (c *Cache) expired() bool {
	return c.ttl > 0 && c.now().Sub(c.loadedAt) > c.ttl
}
