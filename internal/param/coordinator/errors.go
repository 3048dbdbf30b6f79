package coordinator

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coordinator package.
var (
	// ErrTaskNotFound is returned when a task id is unknown or already settled.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExecuting is returned when cancelling a task whose closure is running.
	ErrTaskExecuting = errors.New("task is executing")

	// ErrDuplicateTask is returned when a caller-supplied id is already in use.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrInvalidTask is returned for tasks with an unknown type, an out of
	// range priority or a dependency on themselves.
	ErrInvalidTask = errors.New("invalid task")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("coordinator already running")

	// ErrNotRunning is returned when Shutdown is called before Start. The
	// coordinator is closed regardless.
	ErrNotRunning = errors.New("coordinator not running")

	// ErrShutdown is returned for operations on a coordinator that was shut down.
	ErrShutdown = errors.New("coordinator shut down")
)

// PanicError is reported as the failure of a task whose closure panicked.
type PanicError struct {
	TaskID string
	Value  any
	Stack  []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.TaskID, e.Value)
}
