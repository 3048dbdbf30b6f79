package coordinator

import (
	"context"

	"github.com/dshills/paramtree/internal/param/value"
)

// TaskBuilder assembles a Task fluently.
type TaskBuilder struct {
	task Task
}

// NewTaskBuilder returns a builder for a parameter-change task at the
// default priority.
func NewTaskBuilder() *TaskBuilder {
	return &TaskBuilder{task: Task{Type: TypeParameterChange, Priority: PriorityParameterChange}}
}

func (b *TaskBuilder) ID(id string) *TaskBuilder {
	b.task.ID = id
	return b
}

func (b *TaskBuilder) Type(t TaskType) *TaskBuilder {
	b.task.Type = t
	return b
}

func (b *TaskBuilder) Target(path string) *TaskBuilder {
	b.task.Target = path
	return b
}

// Values sets the old and new values carried by the task.
func (b *TaskBuilder) Values(from, to value.Value) *TaskBuilder {
	b.task.OldValue = from
	b.task.NewValue = to
	return b
}

func (b *TaskBuilder) Priority(p int) *TaskBuilder {
	b.task.Priority = p
	return b
}

// DependsOn appends dependency task ids.
func (b *TaskBuilder) DependsOn(ids ...string) *TaskBuilder {
	b.task.Dependencies = append(b.task.Dependencies, ids...)
	return b
}

func (b *TaskBuilder) Batchable(ok bool) *TaskBuilder {
	b.task.Batchable = ok
	return b
}

// Strategy sets the strategy. Batched also marks the task batchable.
func (b *TaskBuilder) Strategy(s Strategy) *TaskBuilder {
	b.task.Strategy = s
	if s == Batched {
		b.task.Batchable = true
	}
	return b
}

func (b *TaskBuilder) Execute(fn func(ctx context.Context) error) *TaskBuilder {
	b.task.Execute = fn
	return b
}

// Build returns a copy of the assembled task.
func (b *TaskBuilder) Build() Task {
	return b.task.clone()
}

// Submit builds the task and submits it to c.
func (b *TaskBuilder) Submit(c *Coordinator) (string, error) {
	return c.Submit(b.Build())
}
