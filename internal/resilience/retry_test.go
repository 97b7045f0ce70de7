package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sells-group/risk-cli/internal/config"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(4), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("down"), 502)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return errors.New("404 not found")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	var calls int
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(_ context.Context) error {
			calls++
			return NewTransientError(errors.New("busy"), 429)
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ShouldRetryAndOnRetry(t *testing.T) {
	var retried []int
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(error) bool { return true }
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return errors.New("plain")
	})
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("expected retries [1 2], got %v", retried)
	}
}

func TestDoVal(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "ignored", NewTransientError(errors.New("reset"), 0)
		}
		return "body", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "body" {
		t.Errorf("expected body, got %q", got)
	}

	got, err = DoVal(context.Background(), fastRetry(1), func(_ context.Context) (string, error) {
		return "partial", errors.New("bad")
	})
	if err == nil || got != "" {
		t.Errorf("expected zero value and error, got %q, %v", got, err)
	}
}

func TestComputeBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for attempt, w := range want {
		if got := computeBackoff(attempt, cfg); got != w {
			t.Errorf("attempt %d: expected %v, got %v", attempt, w, got)
		}
	}

	cfg.JitterFraction = 0.5
	for range 50 {
		d := computeBackoff(0, cfg)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside [50ms, 150ms]", d)
		}
	}
}

func TestFromFetchConfig(t *testing.T) {
	cfg := FromFetchConfig(config.FetchConfig{MaxRetries: 5, BackoffMs: 20})
	if cfg.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 20*time.Millisecond {
		t.Errorf("expected 20ms backoff, got %v", cfg.InitialBackoff)
	}

	def := FromFetchConfig(config.FetchConfig{})
	if def.MaxAttempts != 3 || def.InitialBackoff != 500*time.Millisecond {
		t.Errorf("expected defaults, got %+v", def)
	}

	b := BreakerFromFetchConfig(config.FetchConfig{BreakerThreshold: 2, BreakerResetSecs: 7})
	if b.FailureThreshold != 2 || b.ResetTimeout != 7*time.Second {
		t.Errorf("unexpected breaker config %+v", b)
	}
	if b.ShouldTrip(errors.New("404")) {
		t.Error("permanent errors should not trip the breaker")
	}
}
