package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned without calling through while the breaker is open.
var ErrBreakerOpen = eris.New("resilience: breaker open")

// Breaker stops calling a dependency after Threshold consecutive transient
// failures and lets a single probe through once Cooldown has elapsed.
// Non-transient failures (a bad SQL statement, a missing key) do not count.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to
// 5 failures and a 30s cooldown.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Call runs fn unless the breaker is open.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if b == nil {
		return fn(ctx)
	}
	if !b.allow() {
		return zero, ErrBreakerOpen
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

// State reports the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		return false
	}
	b.move(HalfOpen)
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !IsTransient(err) {
		b.failures = 0
		if b.state == HalfOpen {
			b.move(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		b.move(Open)
	}
}

func (b *Breaker) move(to State) {
	if b.state == to {
		return
	}
	zap.L().Warn("resilience: breaker state change",
		zap.String("breaker", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}
