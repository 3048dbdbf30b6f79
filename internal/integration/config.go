package integration

import (
	"fmt"
	"time"
)

// Config controls how the manager keeps bridges and the registry in step.
type Config struct {
	// AutoSync runs a periodic pull of every bridge.
	AutoSync bool

	// Bidirectional pushes registry changes back to the bridges.
	Bidirectional bool

	// SyncInterval is the period of the automatic sync.
	SyncInterval time.Duration

	// SmartBatching submits parameter changes with the Batched strategy so
	// repeated edits to one path collapse into a single bridge push.
	SmartBatching bool

	// DependencyTracking notifies the dependents of a changed parameter.
	DependencyTracking bool

	// PerformanceMonitoring adds coordinator metrics to the diagnostics.
	PerformanceMonitoring bool

	// WatchPresets reloads the active preset when its file changes.
	WatchPresets bool

	// WatchDebounce is the quiet period before a preset reload.
	WatchDebounce time.Duration

	// Retry governs pushes to a bridge.
	Retry RetryConfig

	// Breaker suspends pushes to a bridge that keeps failing.
	Breaker CircuitBreakerConfig
}

// DefaultConfig returns the default integration settings.
func DefaultConfig() Config {
	return Config{
		AutoSync:              true,
		Bidirectional:         true,
		SyncInterval:          100 * time.Millisecond,
		SmartBatching:         true,
		DependencyTracking:    true,
		PerformanceMonitoring: true,
		WatchDebounce:         100 * time.Millisecond,
		Retry:                 DefaultRetryConfig(),
		Breaker:               DefaultCircuitBreakerConfig(),
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.AutoSync && c.SyncInterval <= 0 {
		return fmt.Errorf("%w: sync interval must be positive, got %s", ErrInvalidConfiguration, c.SyncInterval)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("%w: negative watch debounce %s", ErrInvalidConfiguration, c.WatchDebounce)
	}
	if c.Retry.BackoffMultiplier != 0 && c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: backoff multiplier %.2f below 1", ErrInvalidConfiguration, c.Retry.BackoffMultiplier)
	}
	if c.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("%w: negative failure threshold", ErrInvalidConfiguration)
	}
	return nil
}
