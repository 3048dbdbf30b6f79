package coordinator

import (
	"context"
	"runtime/debug"
	"time"
)

// result is the outcome of running one task.
type result struct {
	err      error
	panicked bool
	skipped  bool
	duration time.Duration
}

// panicHandler observes a recovered task panic.
type panicHandler func(t Task, v any, stack []byte)

// executor runs task closures with panic recovery and timing.
type executor struct {
	onPanic panicHandler
}

func newExecutor(onPanic panicHandler) *executor {
	return &executor{onPanic: onPanic}
}

// execute runs t's closure, or h when the task has none.
func (e *executor) execute(ctx context.Context, t Task, h Handler) (res result) {
	select {
	case <-ctx.Done():
		return result{err: ctx.Err(), skipped: true}
	default:
	}

	fn := t.Execute
	if fn == nil && h != nil {
		fn = func(ctx context.Context) error { return h(ctx, t) }
	}
	if fn == nil {
		return result{}
	}

	start := time.Now()
	defer func() {
		res.duration = time.Since(start)
		if r := recover(); r != nil {
			stack := debug.Stack()
			res.panicked = true
			res.err = &PanicError{TaskID: t.ID, Value: r, Stack: stack}
			if e.onPanic != nil {
				func() {
					defer func() { _ = recover() }()
					e.onPanic(t, r, stack)
				}()
			}
		}
	}()

	res.err = fn(ctx)
	return res
}
