package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RetryConfig configures retry behavior for bridge pushes.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts. Values <= 0 mean one.
	MaxAttempts int

	// InitialDelay is the initial delay between attempts.
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// BackoffMultiplier multiplies the delay after each attempt.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default push retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      5 * time.Millisecond,
		MaxDelay:          100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

// retry runs fn until it succeeds, attempts run out or ctx is done.
func retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrReadOnly) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		if cfg.BackoffMultiplier > 1 {
			delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		}
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	// CircuitClosed means pushes flow normally.
	CircuitClosed CircuitBreakerState = iota

	// CircuitOpen means pushes are rejected.
	CircuitOpen

	// CircuitHalfOpen means one trial push is allowed through.
	CircuitHalfOpen
)

// String returns the string representation of the state.
func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the per-bridge circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failed pushes before
	// the circuit opens. Zero disables the breaker.
	FailureThreshold int

	// Timeout is how long the circuit stays open before a trial push.
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns the default breaker settings.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Timeout:          5 * time.Second,
	}
}

// circuitBreaker guards pushes to one bridge.
type circuitBreaker struct {
	mu          sync.Mutex
	cfg         CircuitBreakerConfig
	now         func() time.Time
	state       CircuitBreakerState
	failures    int
	lastFailure time.Time
	lastErr     error
}

func newCircuitBreaker(cfg CircuitBreakerConfig, now func() time.Time) *circuitBreaker {
	return &circuitBreaker{cfg: cfg, now: now}
}

// execute runs fn unless the circuit is open.
func (cb *circuitBreaker) execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) > cb.cfg.Timeout {
		cb.state = CircuitHalfOpen
		return true
	}
	return false
}

func (cb *circuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		cb.state = CircuitClosed
		cb.failures = 0
		cb.lastErr = nil
		return
	}
	cb.failures++
	cb.lastFailure = cb.now()
	cb.lastErr = err
	if cb.cfg.FailureThreshold <= 0 {
		return
	}
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.state = CircuitOpen
	}
}

// snapshot returns the state, consecutive failures and last error.
func (cb *circuitBreaker) snapshot() (CircuitBreakerState, int, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failures, cb.lastErr
}
