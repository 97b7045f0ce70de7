// Package resilience provides retry and circuit breaking for remote dataset
// sources.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets probe calls through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned for calls rejected by an open breaker.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerConfig controls a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the run of consecutive failures that opens the
	// circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long an open circuit rejects calls. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenProbes is the number of successful probes that close a
	// half-open circuit. Default: 1.
	HalfOpenProbes int

	// ShouldTrip decides which errors count as failures. Default: any error.
	ShouldTrip func(err error) bool
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
	if c.ShouldTrip == nil {
		c.ShouldTrip = func(err error) bool { return err != nil }
	}
	return c
}

// Breaker is a circuit breaker guarding one remote host.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time

	now func() time.Time
}

// NewBreaker creates a closed breaker named after the host it guards.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// Guard runs fn through b. It returns ErrCircuitOpen without calling fn while
// the circuit is open.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the breaker's state, reporting an expired open circuit as
// half-open.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != CircuitOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
		return eris.Wrapf(ErrCircuitOpen, "host %s", b.name)
	}
	b.setState(CircuitHalfOpen)
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.ShouldTrip(err) {
		b.failures = 0
		if b.state == CircuitHalfOpen {
			b.successes++
			if b.successes >= b.cfg.HalfOpenProbes {
				b.successes = 0
				b.setState(CircuitClosed)
			}
		}
		return
	}

	b.failures++
	if b.state == CircuitHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.successes = 0
		b.openedAt = b.now()
		b.setState(CircuitOpen)
	}
}

func (b *Breaker) setState(to CircuitState) {
	if b.state == to {
		return
	}
	zap.L().Warn("resilience: circuit state change",
		zap.String("host", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}

// HostBreakers hands out one Breaker per host.
type HostBreakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewHostBreakers creates an empty registry whose breakers share cfg.
func NewHostBreakers(cfg BreakerConfig) *HostBreakers {
	return &HostBreakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for host, creating it on first use.
func (h *HostBreakers) For(host string) *Breaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.breakers[host]
	if !ok {
		b = NewBreaker(host, h.cfg)
		h.breakers[host] = b
	}
	return b
}

// States snapshots every known host's state.
func (h *HostBreakers) States() map[string]CircuitState {
	h.mu.Lock()
	breakers := make(map[string]*Breaker, len(h.breakers))
	for k, v := range h.breakers {
		breakers[k] = v
	}
	h.mu.Unlock()

	out := make(map[string]CircuitState, len(breakers))
	for host, b := range breakers {
		out[host] = b.State()
	}
	return out
}
