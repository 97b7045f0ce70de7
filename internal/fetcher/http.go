package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/risk-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	// Breakers is shared across fetchers so one failing host is tracked once.
	// Nil creates a private registry with default settings.
	Breakers *resilience.HostBreakers
	// HostRate and HostBurst seed each host's adaptive limiter.
	HostRate  rate.Limit
	HostBurst int
}

// AdaptiveLimiter is a rate.Limiter that speeds up by 20% after each success
// (up to twice its initial rate) and halves after a 429 (down to a quarter).
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initial.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		initial: initial,
		current: initial,
	}
}

// Wait blocks until the limiter allows a request.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.adjust(func(r rate.Limit) rate.Limit { return min(r*1.2, a.initial*2) })
}

// OnRateLimit lowers the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	r := a.adjust(func(r rate.Limit) rate.Limit { return max(r*0.5, a.initial/4) })
	zap.L().Warn("fetcher: rate limited, slowing down",
		zap.Float64("new_rate", float64(r)),
	)
}

func (a *AdaptiveLimiter) adjust(fn func(rate.Limit) rate.Limit) rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = fn(a.current)
	a.limiter.SetLimit(a.current)
	return a.current
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// HTTPFetcher implements Fetcher over net/http with per-host rate limiting,
// retries and circuit breaking.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	breakers *resilience.HostBreakers

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher, filling unset options with defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "risk-cli/1.0"
	}
	if opts.HostRate == 0 {
		opts.HostRate = 20
	}
	if opts.HostBurst == 0 {
		opts.HostBurst = 20
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = func(attempt int, err error) {
			zap.L().Warn("fetcher: http request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	}
	breakers := opts.Breakers
	if breakers == nil {
		breakers = resilience.NewHostBreakers(resilience.BreakerConfig{ShouldTrip: resilience.IsTransient})
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		breakers: breakers,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// limiterFor returns host's limiter, creating it on first use.
func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.HostRate, f.opts.HostBurst)
		f.limiters[host] = lim
	}
	return lim
}

// Download fetches rawURL and returns the response body. Network errors, 408,
// 429 and 5xx responses are retried; other non-200 statuses fail at once.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	lim := f.limiterFor(u.Host)
	breaker := f.breakers.For(u.Host)

	resp, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (*http.Response, error) {
		return resilience.Guard(ctx, breaker, func(ctx context.Context) (*http.Response, error) {
			return f.get(ctx, lim, rawURL)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}
	return resp.Body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, lim *AdaptiveLimiter, rawURL string) (*http.Response, error) {
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			lim.OnRateLimit()
		}
		return nil, resilience.StatusError(resp.StatusCode, rawURL)
	}
	lim.OnSuccess()
	return resp, nil
}
