package query

import (
	"time"

	"github.com/sells-group/ultradar/internal/metrics"
	"github.com/sells-group/ultradar/internal/resilience"
	"golang.org/x/time/rate"
)

const (
	defaultPollInterval = 600 * time.Millisecond
	defaultPollCap      = 5 * time.Second
	defaultMaxWait      = 2 * time.Minute
	defaultMaxResults   = 1000
	defaultMaxRows      = 50000
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithPollMultiplier grows the delay after each poll. 1 keeps it fixed.
func WithPollMultiplier(m float64) Option {
	return func(b *Bridge) {
		if m >= 1 {
			b.pollMultiplier = m
		}
	}
}

// WithPollCap bounds the grown delay.
func WithPollCap(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.pollCap = d
		}
	}
}

// WithMaxWait bounds the whole poll loop. Exceeding it yields *TimeoutError.
func WithMaxWait(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.maxWait = d
		}
	}
}

// WithMaxResults sets the page size requested from the engine (1..1000).
func WithMaxResults(n int) Option {
	return func(b *Bridge) {
		if n > 0 && n <= defaultMaxResults {
			b.maxResults = n
		}
	}
}

// WithPagination follows result pages until maxRows data rows are read.
func WithPagination(maxRows int) Option {
	return func(b *Bridge) {
		b.paginate = true
		if maxRows > 0 {
			b.maxRows = maxRows
		}
	}
}

// WithSubmitRate limits submissions to rps per second. Zero disables it.
func WithSubmitRate(rps float64) Option {
	return func(b *Bridge) {
		if rps > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetry overrides the retry policy for engine API calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(b *Bridge) { b.retry = cfg }
}

// WithBreaker routes engine API calls through a circuit breaker.
func WithBreaker(br *resilience.Breaker) Option {
	return func(b *Bridge) { b.breaker = br }
}

// WithMetrics records lifecycle metrics.
func WithMetrics(m *metrics.Registry) Option {
	return func(b *Bridge) { b.metrics = m }
}
