package integration

import "time"

// SystemStatus is the integration state of one system.
type SystemStatus int

const (
	NotIntegrated SystemStatus = iota
	Integrating
	Integrated
	IntegrationError
)

// String returns a human-readable status name.
func (s SystemStatus) String() string {
	switch s {
	case NotIntegrated:
		return "not integrated"
	case Integrating:
		return "integrating"
	case Integrated:
		return "integrated"
	case IntegrationError:
		return "error"
	default:
		return "unknown"
	}
}

// HealthStatus represents the health of the integration layer.
type HealthStatus struct {
	// Status is the overall health status.
	Status Status

	// Uptime is how long the manager has been running.
	Uptime time.Duration

	// Components contains health status for each component.
	Components map[string]ComponentHealth

	// Integrated is the number of integrated systems.
	Integrated int
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	// Status is the component's health status.
	Status Status

	// Message provides additional details.
	Message string

	// LastError is the most recent error, if any.
	LastError string
}

// Status represents a health status level.
type Status int

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = iota

	// StatusDegraded indicates the component is operational but with issues.
	StatusDegraded

	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func worse(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}
