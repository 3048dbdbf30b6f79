package integration

import "errors"

// Sentinel errors for the integration package.
var (
	// ErrManagerClosed is returned when operations are attempted on a closed manager.
	ErrManagerClosed = errors.New("integration manager is closed")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("integration manager already started")

	// ErrInvalidConfiguration is returned for invalid configuration values.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrBridgeUnavailable is returned when a bridge reports it cannot be used.
	ErrBridgeUnavailable = errors.New("bridge unavailable")

	// ErrNotIntegrated is returned when no bridge is integrated for a system.
	ErrNotIntegrated = errors.New("system not integrated")

	// ErrReadOnly is returned when writing a binding without a setter.
	ErrReadOnly = errors.New("parameter binding is read-only")

	// ErrCircuitOpen is returned when pushes to a bridge are suspended
	// after repeated failures.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)
