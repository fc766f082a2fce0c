package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func fail(_ context.Context) (int, error) {
	return 0, NewTransientError(errors.New("throttled"), 429)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("athena", 3, time.Minute)
	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), b, fail)
	}
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	_, err := Call(context.Background(), b, func(_ context.Context) (int, error) {
		t.Error("should not be called while open")
		return 0, nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker("athena", 2, time.Minute)
	for i := 0; i < 5; i++ {
		_, _ = Call(context.Background(), b, func(_ context.Context) (int, error) {
			return 0, errors.New("FAILED: table not found")
		})
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker("athena", 1, 10*time.Second)
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, fail)
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(11 * time.Second)
	v, err := Call(context.Background(), b, func(_ context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("expected probe to pass, got %d, %v", v, err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("athena", 1, 10*time.Second)
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, fail)
	now = now.Add(11 * time.Second)
	_, _ = Call(context.Background(), b, fail)

	if b.State() != Open {
		t.Errorf("expected open after failed probe, got %s", b.State())
	}
}

func TestCall_NilBreakerPassesThrough(t *testing.T) {
	v, err := Call(context.Background(), nil, func(_ context.Context) (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Errorf("unexpected %q, %v", v, err)
	}
}
