package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/paramtree/internal/param/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	c := New(cfg)
	t.Cleanup(func() {
		err := c.Shutdown(context.Background())
		if err != nil && !errors.Is(err, ErrNotRunning) {
			t.Errorf("shutdown: %v", err)
		}
	})
	return c
}

func startCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	c := newCoordinator(t, cfg)
	require.NoError(t, c.Start())
	return c
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// recorder collects the ids of executed tasks in order.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) task(id string, priority int, target string) Task {
	return Task{
		ID:        id,
		Type:      TypeParameterChange,
		Target:    target,
		Priority:  priority,
		Batchable: true,
		Execute: func(context.Context) error {
			r.mu.Lock()
			r.ids = append(r.ids, id)
			r.mu.Unlock()
			return nil
		},
	}
}

func (r *recorder) executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestBatchDedup_KeepsHighestPriority(t *testing.T) {
	c := newCoordinator(t, Config{BatchEnabled: true, BatchTimeout: time.Hour, MaxBatchSize: 3, Grouping: ByTarget})
	rec := &recorder{}

	batches := make(chan BatchEvent, 4)
	c.OnBatch(func(ev BatchEvent) { batches <- ev })

	for _, tk := range []Task{
		rec.task("low", 3, "mesh.deflection"),
		rec.task("high", 9, "mesh.deflection"),
		rec.task("mid", 5, "mesh.deflection"),
	} {
		_, err := c.Submit(tk)
		require.NoError(t, err)
	}
	require.NoError(t, c.Start())
	require.NoError(t, c.WaitIdle(waitCtx(t)))

	assert.Equal(t, []string{"high"}, rec.executed())
	for _, id := range []string{"low", "mid"} {
		state, ok := c.State(id)
		require.True(t, ok)
		assert.Equal(t, StateSuperseded, state, id)
	}

	// The batch event follows the settle of its last task.
	select {
	case ev := <-batches:
		assert.Equal(t, 3, ev.Size())
		assert.ElementsMatch(t, []string{"low", "mid"}, ev.Superseded)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch event")
	}
	assert.Empty(t, batches)

	m := c.Metrics()
	assert.EqualValues(t, 1, m.BatchGroups)
	assert.EqualValues(t, 2, m.TasksSuperseded)
	assert.EqualValues(t, 1, m.TasksExecuted)
	assert.InDelta(t, 3.0, m.AverageBatchSize, 1e-9)
}

func TestBatchDedup_TieKeepsLatest(t *testing.T) {
	c := newCoordinator(t, Config{BatchEnabled: true, BatchTimeout: time.Hour, MaxBatchSize: 2, Grouping: ByTarget})
	rec := &recorder{}
	_, err := c.Submit(rec.task("first", 5, "x"))
	require.NoError(t, err)
	_, err = c.Submit(rec.task("second", 5, "x"))
	require.NoError(t, err)

	require.NoError(t, c.Start())
	require.NoError(t, c.WaitIdle(waitCtx(t)))
	assert.Equal(t, []string{"second"}, rec.executed())
}

func TestBatchDedup_AcrossTypesSameTarget(t *testing.T) {
	c := newCoordinator(t, Config{BatchEnabled: true, BatchTimeout: time.Hour, MaxBatchSize: 2, Grouping: ByTarget})
	rec := &recorder{}

	rendering := rec.task("render", 6, "mesh")
	rendering.Type = TypeRenderingUpdate
	lighting := rec.task("light", 7, "mesh")
	lighting.Type = TypeLightingUpdate
	for _, tk := range []Task{rendering, lighting} {
		_, err := c.Submit(tk)
		require.NoError(t, err)
	}

	require.NoError(t, c.Start())
	require.NoError(t, c.WaitIdle(waitCtx(t)))

	assert.Equal(t, []string{"light"}, rec.executed())
	state, ok := c.State("render")
	require.True(t, ok)
	assert.Equal(t, StateSuperseded, state)
}

func TestBatchGroup_PriorityOrder(t *testing.T) {
	c := newCoordinator(t, Config{BatchEnabled: true, BatchTimeout: time.Hour, MaxBatchSize: 4, Grouping: ByType})
	rec := &recorder{}
	for _, tk := range []Task{
		rec.task("a", 2, "p.a"),
		rec.task("b", 8, "p.b"),
		rec.task("c", 5, "p.c"),
		rec.task("d", 8, "p.d"),
	} {
		_, err := c.Submit(tk)
		require.NoError(t, err)
	}
	require.NoError(t, c.Start())
	require.NoError(t, c.WaitIdle(waitCtx(t)))
	assert.Equal(t, []string{"b", "d", "c", "a"}, rec.executed())
}

func TestBatchGroup_TimeoutFlush(t *testing.T) {
	c := newCoordinator(t, Config{BatchEnabled: true, BatchTimeout: 20 * time.Millisecond, MaxBatchSize: 10, Grouping: Mixed})
	rec := &recorder{}
	_, err := c.Submit(rec.task("a", 5, "p.a"))
	require.NoError(t, err)
	_, err = c.Submit(rec.task("b", 5, "p.b"))
	require.NoError(t, err)

	flushed := make(chan BatchEvent, 1)
	c.OnBatch(func(ev BatchEvent) { flushed <- ev })
	require.NoError(t, c.Start())

	select {
	case ev := <-flushed:
		assert.Equal(t, []string{"a", "b"}, ev.Executed)
		assert.Equal(t, "mixed:parameter_change:5", ev.Key)
	case <-time.After(5 * time.Second):
		t.Fatal("batch group never flushed")
	}
}

func TestFlush(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: true, BatchTimeout: time.Hour, MaxBatchSize: 10, Grouping: ByType})
	rec := &recorder{}
	id, err := c.Submit(rec.task("", 5, "p"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return c.Metrics().Groups == 1 }, 5*time.Second, time.Millisecond)
	assert.True(t, c.IsPending(id))

	c.Flush()
	state, err := c.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
}

func TestSetBatchEnabled_FlushesGroups(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: true, BatchTimeout: time.Hour, MaxBatchSize: 10})
	rec := &recorder{}
	id, err := c.Submit(rec.task("", 5, "p"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return c.Metrics().Groups == 1 }, 5*time.Second, time.Millisecond)

	c.SetBatchEnabled(false)
	state, err := c.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
	assert.False(t, c.Config().BatchEnabled)
}

func TestSubmitBatch_NamedGroup(t *testing.T) {
	c := newCoordinator(t, Config{BatchEnabled: false, BatchTimeout: time.Hour, MaxBatchSize: 10})
	rec := &recorder{}

	flushed := make(chan BatchEvent, 1)
	c.OnBatch(func(ev BatchEvent) { flushed <- ev })

	tasks := []Task{rec.task("", 1, "a"), rec.task("", 9, "b"), rec.task("", 4, "c")}
	for i := range tasks {
		tasks[i].Batchable = false
	}
	gid, err := c.SubmitBatch(tasks, "material-edit")
	require.NoError(t, err)
	assert.Equal(t, "material-edit", gid)
	require.NoError(t, c.Start())

	select {
	case ev := <-flushed:
		assert.Equal(t, "material-edit", ev.GroupID)
		assert.Len(t, ev.Executed, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("named group never flushed")
	}

	_, err = c.SubmitBatch(nil, "")
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestSingleWriter(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: false})

	var inflight, maxInflight atomic.Int64
	work := func(context.Context) error {
		n := inflight.Add(1)
		for {
			m := maxInflight.Load()
			if n <= m || maxInflight.CompareAndSwap(m, n) {
				break
			}
		}
		inflight.Add(-1)
		return nil
	}

	var mu sync.Mutex
	completed := make(map[string]bool)
	c.OnCompletion(func(cm Completion) {
		mu.Lock()
		completed[cm.TaskID] = cm.Success
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 125; i++ {
				_, err := c.Submit(Task{Type: TypeRenderingUpdate, Priority: 6, Execute: work})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, c.WaitIdle(waitCtx(t)))

	// Completions are delivered before a task settles, so all are in.
	mu.Lock()
	assert.Len(t, completed, 1000)
	for id, ok := range completed {
		assert.True(t, ok, id)
	}
	mu.Unlock()

	assert.EqualValues(t, 1, maxInflight.Load())
	m := c.Metrics()
	assert.EqualValues(t, 1000, m.TasksSubmitted)
	assert.EqualValues(t, 1000, m.TasksExecuted)
	assert.Zero(t, m.Pending)
}

func TestDependency_WaitsForUnknownID(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: false})

	var ran atomic.Bool
	id, err := NewTaskBuilder().
		Type(TypeRenderingUpdate).
		DependsOn("task_x").
		Execute(func(context.Context) error { ran.Store(true); return nil }).
		Submit(c)
	require.NoError(t, err)

	assert.Never(t, ran.Load, 50*time.Millisecond, 5*time.Millisecond)
	assert.True(t, c.IsPending(id))
	assert.GreaterOrEqual(t, c.Metrics().DependencyConflicts, uint64(1))

	_, err = c.Submit(Task{ID: "task_x", Type: TypeGeometryRebuild, Priority: 8})
	require.NoError(t, err)

	state, err := c.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
	assert.True(t, ran.Load())

	xs, ok := c.State("task_x")
	require.True(t, ok)
	assert.Equal(t, StateDone, xs)
}

func TestDependency_CancelReleasesDependents(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: false})
	c.Pause()

	_, err := c.Submit(Task{ID: "task_y", Type: TypeLightingUpdate, Priority: 7})
	require.NoError(t, err)
	dependent, err := c.Submit(Task{Type: TypeDisplayUpdate, Priority: 5, Dependencies: []string{"task_y"}})
	require.NoError(t, err)

	require.NoError(t, c.Cancel("task_y"))
	c.Resume()

	state, err := c.Wait(waitCtx(t), dependent)
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
}

func TestDependency_Order(t *testing.T) {
	c := newCoordinator(t, Config{BatchEnabled: false})
	rec := &recorder{}

	second := rec.task("second", 9, "b")
	second.Batchable = false
	second.Dependencies = []string{"first"}
	first := rec.task("first", 1, "a")
	first.Batchable = false

	_, err := c.Submit(second)
	require.NoError(t, err)
	_, err = c.Submit(first)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	require.NoError(t, c.WaitIdle(waitCtx(t)))
	assert.Equal(t, []string{"first", "second"}, rec.executed())
}

func TestCancel(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: false})

	started := make(chan struct{})
	release := make(chan struct{})
	busy, err := c.Submit(Task{Type: TypeGeometryRebuild, Priority: 8, Execute: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	require.NoError(t, err)
	<-started

	var ran atomic.Bool
	queued, err := c.Submit(Task{Type: TypeDisplayUpdate, Priority: 5, Execute: func(context.Context) error {
		ran.Store(true)
		return nil
	}})
	require.NoError(t, err)

	assert.True(t, c.IsExecuting(busy))
	assert.Equal(t, []string{busy}, c.ExecutingTasks())
	assert.ErrorIs(t, c.Cancel(busy), ErrTaskExecuting)

	require.NoError(t, c.Cancel(queued))
	assert.ErrorIs(t, c.Cancel(queued), ErrTaskNotFound)
	assert.ErrorIs(t, c.Cancel("nope"), ErrTaskNotFound)

	close(release)
	require.NoError(t, c.WaitIdle(waitCtx(t)))
	assert.False(t, ran.Load())

	state, ok := c.State(queued)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, state)
	assert.EqualValues(t, 1, c.Metrics().TasksCancelled)
}

func TestCancel_GroupedTask(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: true, BatchTimeout: time.Hour, MaxBatchSize: 10, Grouping: ByType})
	rec := &recorder{}
	id, err := c.Submit(rec.task("", 5, "p"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return c.Metrics().Groups == 1 }, 5*time.Second, time.Millisecond)

	require.NoError(t, c.Cancel(id))
	assert.Zero(t, c.Metrics().Groups)
	require.NoError(t, c.WaitIdle(waitCtx(t)))
	assert.Empty(t, rec.executed())
}

func TestPauseResume(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: false})
	c.Pause()
	assert.True(t, c.Paused())

	var ran atomic.Bool
	id, err := c.Submit(Task{Type: TypeDisplayUpdate, Priority: 5, Execute: func(context.Context) error {
		ran.Store(true)
		return nil
	}})
	require.NoError(t, err)
	assert.Never(t, ran.Load, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []string{id}, c.PendingTasks())

	c.Resume()
	state, err := c.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
	assert.False(t, c.Paused())
}

func TestShutdown_BeforeStartDiscardsSubmitted(t *testing.T) {
	c := New(Config{BatchEnabled: false})
	id, err := c.Submit(Task{Type: TypeDisplayUpdate, Priority: 5})
	require.NoError(t, err)

	ctx := waitCtx(t)
	waited := make(chan TaskState, 1)
	idle := make(chan error, 1)
	go func() {
		state, _ := c.Wait(ctx, id)
		waited <- state
	}()
	go func() { idle <- c.WaitIdle(ctx) }()

	assert.ErrorIs(t, c.Shutdown(context.Background()), ErrNotRunning)
	assert.Equal(t, StateDiscarded, <-waited)
	require.NoError(t, <-idle)
	assert.EqualValues(t, 1, c.Metrics().TasksDiscarded)

	assert.NoError(t, c.Shutdown(context.Background()))
	assert.ErrorIs(t, c.Start(), ErrShutdown)
	_, err = c.Submit(Task{Type: TypeDisplayUpdate})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestShutdown_FinishesInFlightDiscardsRest(t *testing.T) {
	c := New(Config{BatchEnabled: false})
	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrAlreadyRunning)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	busy, err := c.Submit(Task{Type: TypeGeometryRebuild, Priority: 8, Execute: func(context.Context) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	}})
	require.NoError(t, err)
	<-started

	var later []string
	for i := 0; i < 3; i++ {
		id, err := c.Submit(Task{Type: TypeDisplayUpdate, Priority: 5})
		require.NoError(t, err)
		later = append(later, id)
	}

	done := make(chan error, 1)
	go func() { done <- c.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("shutdown returned while a task was executing")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
	assert.True(t, finished.Load())

	state, _ := c.State(busy)
	assert.Equal(t, StateDone, state)
	for _, id := range later {
		state, ok := c.State(id)
		require.True(t, ok)
		assert.Equal(t, StateDiscarded, state)
	}
	assert.EqualValues(t, 3, c.Metrics().TasksDiscarded)

	_, err = c.Submit(Task{Type: TypeDisplayUpdate})
	assert.ErrorIs(t, err, ErrShutdown)
	assert.ErrorIs(t, c.Start(), ErrShutdown)
	assert.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, c.Running())
}

func TestShutdown_ContextExpiry(t *testing.T) {
	c := New(Config{BatchEnabled: false})
	require.NoError(t, c.Start())

	started := make(chan struct{})
	_, err := c.Submit(Task{Type: TypeGeometryRebuild, Priority: 8, Execute: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Shutdown(ctx), context.DeadlineExceeded)

	// the running closure saw its context cancelled; the worker exits
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestPanicAndFailure(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: false})

	var mu sync.Mutex
	completions := map[string]Completion{}
	c.OnCompletion(func(comp Completion) {
		mu.Lock()
		completions[comp.TaskID] = comp
		mu.Unlock()
	})
	// a panicking observer must not stop the worker
	c.OnCompletion(func(Completion) { panic("observer") })

	boom, err := c.Submit(Task{Type: TypeRenderingUpdate, Priority: 6, Execute: func(context.Context) error { panic("boom") }})
	require.NoError(t, err)
	fail, err := c.Submit(Task{Type: TypeRenderingUpdate, Priority: 6, Execute: func(context.Context) error { return errors.New("nope") }})
	require.NoError(t, err)
	ok, err := c.Submit(Task{Type: TypeRenderingUpdate, Priority: 6})
	require.NoError(t, err)
	require.NoError(t, c.WaitIdle(waitCtx(t)))

	mu.Lock()
	defer mu.Unlock()
	var perr *PanicError
	require.ErrorAs(t, completions[boom].Err, &perr)
	assert.Equal(t, "boom", perr.Value)
	assert.NotEmpty(t, perr.Stack)
	assert.False(t, completions[boom].Success)
	assert.EqualError(t, completions[fail].Err, "nope")
	assert.True(t, completions[ok].Success)

	state, _ := c.State(boom)
	assert.Equal(t, StateFailed, state)

	m := c.Metrics()
	assert.EqualValues(t, 3, m.TasksExecuted)
	assert.EqualValues(t, 2, m.TasksFailed)
	assert.EqualValues(t, 1, m.TasksPanicked)

	c.ResetMetrics()
	assert.Zero(t, c.Metrics().TasksExecuted)
}

func TestHandlersAndParameterChange(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: true, BatchTimeout: 5 * time.Millisecond, MaxBatchSize: 10})

	got := make(chan Task, 4)
	c.SetHandler(TypeParameterChange, func(_ context.Context, tk Task) error {
		got <- tk
		return nil
	})
	var updates atomic.Int64
	c.OnUpdate(func(Task) { updates.Add(1) })

	id, err := c.SubmitParameterChange("mesh.deflection", value.Float(0.5), value.Float(0.2), Immediate)
	require.NoError(t, err)
	_, err = c.Wait(waitCtx(t), id)
	require.NoError(t, err)

	tk := <-got
	assert.Equal(t, id, tk.ID)
	assert.Equal(t, "mesh.deflection", tk.Target)
	assert.True(t, tk.NewValue.Equal(value.Float(0.2)))
	assert.Equal(t, Immediate, tk.Strategy)
	assert.False(t, tk.Batchable)
	assert.False(t, tk.Timestamp.IsZero())

	id, err = c.SubmitParameterChange("mesh.deflection", value.Float(0.2), value.Float(0.3), Batched)
	require.NoError(t, err)
	_, err = c.Wait(waitCtx(t), id)
	require.NoError(t, err)
	tk = <-got
	assert.True(t, tk.Batchable)
	assert.Equal(t, Batched, tk.Strategy)
	assert.EqualValues(t, 1, c.Metrics().BatchGroups)
	assert.Eventually(t, func() bool { return updates.Load() == 2 }, time.Second, time.Millisecond)
}

func TestScheduleHelpers(t *testing.T) {
	c := newCoordinator(t, Config{BatchEnabled: false})
	c.Pause()
	require.NoError(t, c.Start())

	cases := []struct {
		submit    func() (string, error)
		typ       TaskType
		priority  int
		batchable bool
	}{
		{func() (string, error) { return c.ScheduleGeometryRebuild("part1") }, TypeGeometryRebuild, 8, false},
		{func() (string, error) { return c.ScheduleLightingUpdate() }, TypeLightingUpdate, 7, true},
		{func() (string, error) { return c.ScheduleRenderingUpdate("material") }, TypeRenderingUpdate, 6, true},
		{func() (string, error) { return c.ScheduleDisplayUpdate() }, TypeDisplayUpdate, 5, true},
		{func() (string, error) { return c.SchedulePerformanceUpdate() }, TypePerformanceUpdate, 4, true},
	}
	for _, tc := range cases {
		t.Run(tc.typ.String(), func(t *testing.T) {
			id, err := tc.submit()
			require.NoError(t, err)
			tk, ok := c.Task(id)
			require.True(t, ok)
			assert.Equal(t, tc.typ, tk.Type)
			assert.Equal(t, tc.priority, tk.Priority)
			assert.Equal(t, tc.batchable, tk.Batchable)
		})
	}
	assert.Len(t, c.PendingTasks(), len(cases))
	c.Resume()
	require.NoError(t, c.WaitIdle(waitCtx(t)))
}

func TestSubmitValidation(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())

	_, err := c.Submit(Task{Type: TypeDisplayUpdate, Priority: 11})
	assert.ErrorIs(t, err, ErrInvalidTask)
	_, err = c.Submit(Task{Type: TaskType(99)})
	assert.ErrorIs(t, err, ErrInvalidTask)
	_, err = c.Submit(Task{ID: "self", Type: TypeDisplayUpdate, Dependencies: []string{"self"}})
	assert.ErrorIs(t, err, ErrInvalidTask)

	_, err = c.Submit(Task{ID: "dup", Type: TypeDisplayUpdate})
	require.NoError(t, err)
	_, err = c.Submit(Task{ID: "dup", Type: TypeDisplayUpdate})
	assert.ErrorIs(t, err, ErrDuplicateTask)
	_, err = c.SubmitBatch([]Task{{ID: "x", Type: TypeDisplayUpdate}, {ID: "x", Type: TypeDisplayUpdate}}, "")
	assert.ErrorIs(t, err, ErrDuplicateTask)

	_, err = c.Wait(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Wait(ctx, "dup")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetention(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: false, Retention: 3})
	var last string
	for i := 0; i < 5; i++ {
		id, err := c.Submit(Task{ID: fmt.Sprintf("t%d", i), Type: TypeDisplayUpdate, Priority: 5})
		require.NoError(t, err)
		last = id
	}
	_, err := c.Wait(waitCtx(t), last)
	require.NoError(t, err)

	_, ok := c.State("t0")
	assert.False(t, ok)
	state, ok := c.State("t4")
	require.True(t, ok)
	assert.Equal(t, StateDone, state)

	_, err = c.Wait(waitCtx(t), "t0")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRetention_EvictedDependencyStaysMet(t *testing.T) {
	c := startCoordinator(t, Config{BatchEnabled: false, Retention: 2})
	for _, id := range []string{"a", "b", "c"} {
		_, err := c.Submit(Task{ID: id, Type: TypeDisplayUpdate, Priority: 5})
		require.NoError(t, err)
	}
	require.NoError(t, c.WaitIdle(waitCtx(t)))
	_, ok := c.State("a")
	require.False(t, ok, "state of a should have been evicted")

	id, err := c.Submit(Task{Type: TypeRenderingUpdate, Priority: 6, Dependencies: []string{"a"}})
	require.NoError(t, err)
	state, err := c.Wait(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
	assert.Zero(t, c.Metrics().DependencyConflicts)

	_, err = c.Submit(Task{ID: "a", Type: TypeDisplayUpdate, Priority: 5})
	assert.ErrorIs(t, err, ErrDuplicateTask)
}

func TestParseNames(t *testing.T) {
	for _, g := range []GroupingStrategy{ByType, ByTarget, ByPriority, ByDependency, Mixed} {
		got, err := ParseGroupingStrategy(g.String())
		require.NoError(t, err)
		assert.Equal(t, g, got)
	}
	_, err := ParseGroupingStrategy("random")
	assert.Error(t, err)

	for _, s := range []Strategy{Immediate, Batched, Throttled, Deferred} {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err = ParseStrategy("eventually")
	assert.Error(t, err)
	assert.True(t, StateSuperseded.Settled())
	assert.False(t, StateExecuting.Settled())
}

func TestTaskBuilder(t *testing.T) {
	tk := NewTaskBuilder().
		ID("b1").
		Type(TypeLightingUpdate).
		Target("main.intensity").
		Values(value.Float(1), value.Float(2)).
		Priority(7).
		DependsOn("a", "b").
		Strategy(Batched).
		Build()

	assert.Equal(t, "b1", tk.ID)
	assert.Equal(t, TypeLightingUpdate, tk.Type)
	assert.Equal(t, []string{"a", "b"}, tk.Dependencies)
	assert.True(t, tk.Batchable)
	assert.True(t, tk.OldValue.Equal(value.Float(1)))

	def := NewTaskBuilder().Build()
	assert.Equal(t, TypeParameterChange, def.Type)
	assert.Equal(t, PriorityParameterChange, def.Priority)
}
