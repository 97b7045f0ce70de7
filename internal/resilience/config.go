package resilience

import (
	"time"

	"github.com/sells-group/risk-cli/internal/config"
)

// FromFetchConfig builds the retry policy for remote sources. Zero values
// keep the defaults.
func FromFetchConfig(f config.FetchConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if f.MaxRetries > 0 {
		cfg.MaxAttempts = f.MaxRetries
	}
	if f.BackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(f.BackoffMs) * time.Millisecond
	}
	return cfg
}

// BreakerFromFetchConfig builds the per-host breaker settings for remote
// sources. Only transient failures trip a breaker.
func BreakerFromFetchConfig(f config.FetchConfig) BreakerConfig {
	return BreakerConfig{
		FailureThreshold: f.BreakerThreshold,
		ResetTimeout:     time.Duration(f.BreakerResetSecs) * time.Second,
		ShouldTrip:       IsTransient,
	}
}
