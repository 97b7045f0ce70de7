package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fail(_ context.Context) (int, error) { return 0, errBoom }
func ok(_ context.Context) (int, error)   { return 1, nil }

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("example.com", BreakerConfig{FailureThreshold: threshold, ResetTimeout: reset})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for range 3 {
		_, _ = Guard(ctx, b, fail)
	}
	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	var called bool
	_, err := Guard(ctx, b, func(_ context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not run while open")
	}
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	_, _ = Guard(ctx, b, fail)
	_, _ = Guard(ctx, b, fail)
	_, _ = Guard(ctx, b, ok)
	_, _ = Guard(ctx, b, fail)
	_, _ = Guard(ctx, b, fail)

	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, 10*time.Second)
	ctx := context.Background()

	_, _ = Guard(ctx, b, fail)
	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	*now = now.Add(11 * time.Second)
	if b.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	v, err := Guard(ctx, b, ok)
	if err != nil || v != 1 {
		t.Fatalf("probe failed: %v, %v", v, err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed after probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(2, 10*time.Second)
	ctx := context.Background()

	_, _ = Guard(ctx, b, fail)
	_, _ = Guard(ctx, b, fail)
	*now = now.Add(time.Minute)

	_, _ = Guard(ctx, b, fail)
	if b.State() != CircuitOpen {
		t.Errorf("expected reopened, got %s", b.State())
	}
}

func TestBreaker_ShouldTrip(t *testing.T) {
	b := NewBreaker("example.com", BreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       IsTransient,
	})
	_, _ = Guard(context.Background(), b, fail)
	if b.State() != CircuitClosed {
		t.Errorf("permanent error tripped the breaker")
	}
}

func TestHostBreakers(t *testing.T) {
	hb := NewHostBreakers(BreakerConfig{FailureThreshold: 1})
	if hb.For("a.example") != hb.For("a.example") {
		t.Error("expected the same breaker for one host")
	}

	_, _ = Guard(context.Background(), hb.For("b.example"), fail)
	states := hb.States()
	if states["a.example"] != CircuitClosed || states["b.example"] != CircuitOpen {
		t.Errorf("unexpected states %v", states)
	}
}

func TestHostBreakers_Concurrent(t *testing.T) {
	hb := NewHostBreakers(BreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Guard(context.Background(), hb.For("example.com"), fail)
		}()
	}
	wg.Wait()
	if len(hb.States()) != 1 {
		t.Errorf("expected one breaker, got %d", len(hb.States()))
	}
}

func TestCircuitState_String(t *testing.T) {
	for s, want := range map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d: expected %q, got %q", s, want, s.String())
		}
	}
}
