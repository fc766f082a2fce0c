package query

import (
	"context"
	"sync"
)

// Latest makes the most recent request for a key win. Begin cancels whatever
// was in flight for the key; Commit tells a finishing request whether its
// result may still be applied.
type Latest struct {
	mu       sync.Mutex
	seq      uint64
	inflight map[string]inflight
}

type inflight struct {
	token  uint64
	cancel context.CancelFunc
}

// NewLatest returns an empty sequencer.
func NewLatest() *Latest {
	return &Latest{inflight: make(map[string]inflight)}
}

// Begin registers a new request for key and returns a context that is
// cancelled when a newer request for the same key begins.
func (l *Latest) Begin(ctx context.Context, key string) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.inflight[key]; ok {
		prev.cancel()
	}
	l.seq++
	l.inflight[key] = inflight{token: l.seq, cancel: cancel}
	return ctx, l.seq
}

// Commit reports whether token is still the latest request for key. A current
// request is retired; a stale one changes nothing.
func (l *Latest) Commit(key string, token uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.inflight[key]
	if !ok || cur.token != token {
		return false
	}
	cur.cancel()
	delete(l.inflight, key)
	return true
}

// Do runs fn as the latest request for key. The returned bool is false when
// the result was superseded and must be discarded.
func Do[T any](ctx context.Context, l *Latest, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	ctx, token := l.Begin(ctx, key)
	v, err := fn(ctx)
	if !l.Commit(key, token) {
		var zero T
		return zero, false, nil
	}
	return v, true, err
}
