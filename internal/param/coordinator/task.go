package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/paramtree/internal/param/value"
)

// TaskType classifies the work a task performs.
type TaskType uint8

const (
	TypeParameterChange TaskType = iota
	TypeGeometryRebuild
	TypeRenderingUpdate
	TypeLightingUpdate
	TypeDisplayUpdate
	TypePerformanceUpdate
	TypeBatchUpdate
)

var taskTypeNames = [...]string{
	TypeParameterChange:   "parameter_change",
	TypeGeometryRebuild:   "geometry_rebuild",
	TypeRenderingUpdate:   "rendering_update",
	TypeLightingUpdate:    "lighting_update",
	TypeDisplayUpdate:     "display_update",
	TypePerformanceUpdate: "performance_update",
	TypeBatchUpdate:       "batch_update",
}

// String returns the type name.
func (t TaskType) String() string {
	if int(t) < len(taskTypeNames) {
		return taskTypeNames[t]
	}
	return fmt.Sprintf("task_type(%d)", uint8(t))
}

// Valid reports whether t is a known type.
func (t TaskType) Valid() bool { return int(t) < len(taskTypeNames) }

// Strategy is the execution hint of a parameter change.
type Strategy uint8

const (
	// Immediate bypasses batching.
	Immediate Strategy = iota
	// Batched makes the task eligible for batch grouping.
	Batched
	// Throttled is carried to the handler; the coordinator does not throttle.
	Throttled
	// Deferred is carried to the handler.
	Deferred
)

var strategyNames = [...]string{"immediate", "batched", "throttled", "deferred"}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

// ParseStrategy maps a strategy name to its value.
func ParseStrategy(name string) (Strategy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range strategyNames {
		if s == n {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown update strategy %q", name)
}

// TaskState is the lifecycle state of a submitted task.
type TaskState uint8

const (
	StatePending TaskState = iota
	StateExecuting
	StateDone
	StateFailed
	StateCancelled
	// StateSuperseded marks a batched task dropped in favour of another task
	// for the same target.
	StateSuperseded
	// StateDiscarded marks a task dropped by Shutdown before it ran.
	StateDiscarded
)

var stateNames = [...]string{"pending", "executing", "done", "failed", "cancelled", "superseded", "discarded"}

func (s TaskState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Settled reports whether s is terminal.
func (s TaskState) Settled() bool { return s >= StateDone }

// Task priorities.
const (
	MinPriority = 0
	MaxPriority = 10

	PriorityGeometryRebuild   = 8
	PriorityLightingUpdate    = 7
	PriorityRenderingUpdate   = 6
	PriorityDisplayUpdate     = 5
	PriorityParameterChange   = 5
	PriorityPerformanceUpdate = 4
)

// Task is a unit of scheduled work. A task is immutable once submitted.
type Task struct {
	// ID is assigned by the coordinator when empty.
	ID       string
	Type     TaskType
	Target   string
	OldValue value.Value
	NewValue value.Value
	Priority int

	// Dependencies lists task ids that must settle before this task runs.
	// Unknown ids are waited for.
	Dependencies []string

	Batchable bool
	Strategy  Strategy

	// Timestamp is stamped at submission.
	Timestamp time.Time

	// Execute runs the task. When nil, the handler registered for Type runs
	// instead; with neither the task completes successfully.
	Execute func(ctx context.Context) error
}

func (t Task) clone() Task {
	if t.Dependencies != nil {
		t.Dependencies = append([]string(nil), t.Dependencies...)
	}
	return t
}

func (t Task) validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown type %d", ErrInvalidTask, uint8(t.Type))
	}
	if t.Priority < MinPriority || t.Priority > MaxPriority {
		return fmt.Errorf("%w: priority %d outside [%d, %d]", ErrInvalidTask, t.Priority, MinPriority, MaxPriority)
	}
	for _, dep := range t.Dependencies {
		if dep == "" {
			return fmt.Errorf("%w: empty dependency id", ErrInvalidTask)
		}
		if t.ID != "" && dep == t.ID {
			return fmt.Errorf("%w: %s depends on itself", ErrInvalidTask, t.ID)
		}
	}
	return nil
}

// Handler executes tasks of one type that carry no closure.
type Handler func(ctx context.Context, t Task) error

// Completion reports the outcome of an executed task.
type Completion struct {
	TaskID   string
	Type     TaskType
	Target   string
	GroupID  string
	Success  bool
	Err      error
	Duration time.Duration
	Wait     time.Duration
}

// BatchEvent reports a flushed batch group.
type BatchEvent struct {
	GroupID    string
	Key        string
	Executed   []string
	Superseded []string
	Duration   time.Duration
}

// Size returns the number of tasks the group accumulated.
func (b BatchEvent) Size() int { return len(b.Executed) + len(b.Superseded) }
