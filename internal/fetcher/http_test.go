package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/risk-cli/internal/resilience"
)

func newTestFetcher(breakers *resilience.HostBreakers) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
		Breakers: breakers,
		HostRate: 1000,
	})
}

func TestHTTPDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("Date,Amount,Category\n"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(nil).Download(context.Background(), srv.URL+"/data.csv")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "Date,Amount,Category\n", string(data))
}

func TestHTTPDownloadRetries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		statuses  []int
		wantErr   bool
		wantCalls int32
	}{
		{"recovers after 503", []int{503, 503, 200}, false, 3},
		{"recovers after 429", []int{429, 200}, false, 2},
		{"gives up after max attempts", []int{500, 500, 500, 500}, true, 3},
		{"404 not retried", []int{404, 200}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				n := calls.Add(1)
				w.WriteHeader(tt.statuses[n-1])
			}))
			defer srv.Close()

			body, err := newTestFetcher(nil).Download(context.Background(), srv.URL)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				_ = body.Close()
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestHTTPDownloadCircuitOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breakers := resilience.NewHostBreakers(resilience.BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		ShouldTrip:       resilience.IsTransient,
	})
	f := newTestFetcher(breakers)

	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(2), calls.Load())

	_, err = f.Download(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPDownloadCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher(nil).Download(ctx, srv.URL)
	assert.Error(t, err)
}

func TestAdaptiveLimiter(t *testing.T) {
	t.Parallel()

	a := NewAdaptiveLimiter(10, 1)
	for range 10 {
		a.OnSuccess()
	}
	assert.InDelta(t, 20, float64(a.Limit()), 1e-9)

	for range 10 {
		a.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(a.Limit()), 1e-9)

	a.OnSuccess()
	assert.InDelta(t, 3.0, float64(a.Limit()), 1e-9)
}

func TestLimiterPerHost(t *testing.T) {
	t.Parallel()

	f := NewHTTPFetcher(HTTPOptions{HostRate: rate.Limit(5)})
	a := f.limiterFor("a.example")
	assert.Same(t, a, f.limiterFor("a.example"))
	assert.NotSame(t, a, f.limiterFor("b.example"))
	assert.Equal(t, rate.Limit(5), a.Limit())
}
