// Package coordinator schedules update tasks on a single worker goroutine.
//
// Tasks are drained from a FIFO queue. A task whose dependencies have not
// settled is parked on a wait list keyed by the blocking id and re-queued at
// the tail once that id settles. Batchable tasks accumulate in batch groups
// that flush on size or age; a flush drops tasks superseded by a higher
// priority task for the same target and runs the rest by descending
// priority.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/paramtree/internal/param/notify"
)

// GroupingStrategy selects the key batchable tasks are grouped by.
type GroupingStrategy uint8

const (
	ByType GroupingStrategy = iota
	ByTarget
	ByPriority
	ByDependency
	// Mixed groups by type and priority.
	Mixed
)

var groupingNames = [...]string{"type", "target", "priority", "dependency", "mixed"}

func (g GroupingStrategy) String() string {
	if int(g) < len(groupingNames) {
		return groupingNames[g]
	}
	return fmt.Sprintf("grouping(%d)", uint8(g))
}

// ParseGroupingStrategy maps a strategy name to its value.
func ParseGroupingStrategy(name string) (GroupingStrategy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range groupingNames {
		if s == n {
			return GroupingStrategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown grouping strategy %q", name)
}

// Config configures a Coordinator.
type Config struct {
	// BatchEnabled routes batchable tasks through batch groups.
	BatchEnabled bool

	// BatchTimeout is the maximum age of a batch group before it flushes.
	BatchTimeout time.Duration

	// MaxBatchSize flushes a group once it holds this many tasks.
	MaxBatchSize int

	// Grouping selects the batch group key.
	Grouping GroupingStrategy

	// Retention bounds how many settled task states are remembered for
	// State and Wait. Settled ids themselves are never forgotten, so
	// dependencies on them stay met and their ids stay taken.
	Retention int
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		BatchEnabled: true,
		BatchTimeout: 100 * time.Millisecond,
		MaxBatchSize: 10,
		Grouping:     Mixed,
		Retention:    10000,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = d.BatchTimeout
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if int(c.Grouping) >= len(groupingNames) {
		c.Grouping = d.Grouping
	}
	return c
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

type record struct {
	task  Task
	state TaskState
	seq   uint64
	named string
	group string
}

type batchGroup struct {
	id      string
	key     string
	named   string
	tasks   []*record
	created time.Time
}

// Coordinator owns a single worker that executes submitted tasks.
type Coordinator struct {
	mu  sync.Mutex
	cfg Config

	tasks   map[string]*record
	queue   []*record
	blocked map[string][]*record
	groups  map[string]*batchGroup
	named   map[string]int
	seq     uint64

	settled      map[string]TaskState
	settledOrder []string
	finished     map[string]struct{}

	handlers    map[TaskType]Handler
	waiters     map[string][]chan TaskState
	idleWaiters []chan struct{}
	executing   *record
	flushAll    bool

	started bool
	closed  bool
	paused  bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc

	updates     *notify.Notifier[Task]
	batches     *notify.Notifier[BatchEvent]
	completions *notify.Notifier[Completion]

	exec    *executor
	metrics metrics
	logger  *zap.Logger
}

// New creates a coordinator. The worker starts with Start.
func New(cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:      cfg.normalized(),
		tasks:    make(map[string]*record),
		blocked:  make(map[string][]*record),
		groups:   make(map[string]*batchGroup),
		named:    make(map[string]int),
		settled:  make(map[string]TaskState),
		finished: make(map[string]struct{}),
		handlers: make(map[TaskType]Handler),
		waiters:  make(map[string][]chan TaskState),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	c.updates = notify.New[Task](notify.WithLogger(c.logger))
	c.batches = notify.New[BatchEvent](notify.WithLogger(c.logger))
	c.completions = notify.New[Completion](notify.WithLogger(c.logger))
	c.exec = newExecutor(func(t Task, v any, stack []byte) {
		c.logger.Error("task panicked",
			zap.String("task", t.ID),
			zap.Stringer("type", t.Type),
			zap.Any("panic", v),
			zap.ByteString("stack", stack))
	})
	return c
}

// Start launches the worker goroutine.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrShutdown
	}
	if c.started {
		return ErrAlreadyRunning
	}
	c.started = true
	go c.loop()
	c.signal()
	c.logger.Info("coordinator started",
		zap.Bool("batching", c.cfg.BatchEnabled),
		zap.Stringer("grouping", c.cfg.Grouping))
	return nil
}

// Running reports whether the worker is running.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.closed
}

// Shutdown stops the worker. A closure already running finishes; no new
// closure starts. Tasks that never ran settle as StateDiscarded. If ctx
// expires first the running closure's context is cancelled and ctx.Err()
// is returned.
//
// Shutdown before Start still discards submitted tasks and closes the
// coordinator, then returns ErrNotRunning.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started && !c.closed {
		c.closed = true
		close(c.done)
		c.mu.Unlock()
		c.discard()
		c.runCancel()
		close(c.stopped)
		return ErrNotRunning
	}
	if c.closed {
		c.mu.Unlock()
		<-c.stopped
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	select {
	case <-c.stopped:
		c.runCancel()
		c.logger.Info("coordinator stopped")
		return nil
	case <-ctx.Done():
		c.runCancel()
		return ctx.Err()
	}
}

// Pause stops the worker from starting new tasks.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume lets a paused worker continue.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	c.signal()
}

// Paused reports whether execution is paused.
func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// SetHandler registers h for tasks of type t that carry no closure.
func (c *Coordinator) SetHandler(t TaskType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		delete(c.handlers, t)
		return
	}
	c.handlers[t] = h
}

// SetGroupingStrategy changes the batch group key for tasks grouped from
// now on.
func (c *Coordinator) SetGroupingStrategy(g GroupingStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(g) < len(groupingNames) {
		c.cfg.Grouping = g
	}
}

// SetBatchEnabled toggles batch grouping. Disabling it flushes open groups.
func (c *Coordinator) SetBatchEnabled(enabled bool) {
	c.mu.Lock()
	c.cfg.BatchEnabled = enabled
	if !enabled && len(c.groups) > 0 {
		c.flushAll = true
	}
	c.mu.Unlock()
	c.signal()
}

// SetBatchTimeout changes the maximum batch group age.
func (c *Coordinator) SetBatchTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.cfg.BatchTimeout = d
	c.mu.Unlock()
	c.signal()
}

// Config returns the current configuration.
func (c *Coordinator) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Submit queues a task and returns its id.
func (c *Coordinator) Submit(t Task) (string, error) {
	ids, err := c.submit([]Task{t}, "")
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SubmitBatch queues tasks as one named batch group. The group flushes when
// every member has been dequeued, when it reaches the size cap or when it
// times out. An empty groupID is replaced by a generated one.
func (c *Coordinator) SubmitBatch(tasks []Task, groupID string) (string, error) {
	if len(tasks) == 0 {
		return "", fmt.Errorf("%w: empty batch", ErrInvalidTask)
	}
	if groupID == "" {
		groupID = uuid.NewString()
	}
	if _, err := c.submit(tasks, groupID); err != nil {
		return "", err
	}
	return groupID, nil
}

func (c *Coordinator) submit(tasks []Task, named string) ([]string, error) {
	prepared := make([]Task, len(tasks))
	for i, t := range tasks {
		if err := t.validate(); err != nil {
			return nil, err
		}
		prepared[i] = t.clone()
		if named != "" {
			prepared[i].Batchable = true
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrShutdown
	}
	seen := make(map[string]bool, len(prepared))
	for i := range prepared {
		id := prepared[i].ID
		if id == "" {
			continue
		}
		if seen[id] || c.knownLocked(id) {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, id)
		}
		seen[id] = true
	}

	now := time.Now()
	ids := make([]string, len(prepared))
	for i := range prepared {
		t := &prepared[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.Timestamp = now
		c.seq++
		rec := &record{task: *t, state: StatePending, seq: c.seq, named: named}
		c.tasks[t.ID] = rec
		c.queue = append(c.queue, rec)
		ids[i] = t.ID
	}
	if named != "" {
		c.named[named] += len(prepared)
	}
	c.mu.Unlock()

	c.metrics.recordSubmit(len(prepared))
	c.signal()
	for _, t := range prepared {
		c.logger.Debug("task submitted",
			zap.String("task", t.ID),
			zap.Stringer("type", t.Type),
			zap.String("target", t.Target),
			zap.Int("priority", t.Priority))
	}
	return ids, nil
}

// Cancel removes a pending task. Tasks that are executing or already
// settled cannot be cancelled.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	rec, ok := c.tasks[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if rec.state == StateExecuting {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskExecuting, id)
	}
	c.removeQueuedLocked(rec)
	c.removeBlockedLocked(rec)
	c.removeFromGroupLocked(rec)
	if rec.named != "" && rec.group == "" {
		c.memberArrivedLocked(rec.named)
	}
	c.settleLocked(rec, StateCancelled)
	c.mu.Unlock()

	c.metrics.recordCancel()
	c.signal()
	c.logger.Debug("task cancelled", zap.String("task", id))
	return nil
}

// Flush forces every open batch group to flush.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	if len(c.groups) > 0 {
		c.flushAll = true
	}
	c.mu.Unlock()
	c.signal()
}

// Wait blocks until task id settles and returns its final state.
func (c *Coordinator) Wait(ctx context.Context, id string) (TaskState, error) {
	c.mu.Lock()
	if state, ok := c.settled[id]; ok {
		c.mu.Unlock()
		return state, nil
	}
	if _, ok := c.finished[id]; ok {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %s settled and its state is no longer retained", ErrTaskNotFound, id)
	}
	if _, ok := c.tasks[id]; !ok {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	ch := make(chan TaskState, 1)
	c.waiters[id] = append(c.waiters[id], ch)
	c.mu.Unlock()

	select {
	case state := <-ch:
		return state, nil
	case <-ctx.Done():
		c.mu.Lock()
		c.waiters[id] = removeChan(c.waiters[id], ch)
		if len(c.waiters[id]) == 0 {
			delete(c.waiters, id)
		}
		c.mu.Unlock()
		return 0, ctx.Err()
	}
}

// WaitIdle blocks until no task is pending or executing.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	if len(c.tasks) == 0 {
		c.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.idleWaiters = append(c.idleWaiters, ch)
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnUpdate registers fn for every executed task.
func (c *Coordinator) OnUpdate(fn func(Task)) *notify.Subscription {
	return c.updates.Subscribe(fn)
}

// OnBatch registers fn for every flushed batch group.
func (c *Coordinator) OnBatch(fn func(BatchEvent)) *notify.Subscription {
	return c.batches.Subscribe(fn)
}

// OnCompletion registers fn for every executed task's outcome.
func (c *Coordinator) OnCompletion(fn func(Completion)) *notify.Subscription {
	return c.completions.Subscribe(fn)
}

// State returns the lifecycle state of a task, including recently settled
// ones.
func (c *Coordinator) State(id string) (TaskState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.tasks[id]; ok {
		return rec.state, true
	}
	state, ok := c.settled[id]
	return state, ok
}

// Task returns a copy of an unsettled task.
func (c *Coordinator) Task(id string) (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.tasks[id]; ok {
		return rec.task.clone(), true
	}
	return Task{}, false
}

// IsPending reports whether id is waiting to execute.
func (c *Coordinator) IsPending(id string) bool {
	state, ok := c.State(id)
	return ok && state == StatePending
}

// IsExecuting reports whether id's closure is running.
func (c *Coordinator) IsExecuting(id string) bool {
	state, ok := c.State(id)
	return ok && state == StateExecuting
}

// PendingTasks returns the ids of pending tasks in submission order.
func (c *Coordinator) PendingTasks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	recs := make([]*record, 0, len(c.tasks))
	for _, rec := range c.tasks {
		if rec.state == StatePending {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.task.ID
	}
	return ids
}

// ExecutingTasks returns the id of the running task, if any.
func (c *Coordinator) ExecutingTasks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executing == nil {
		return nil
	}
	return []string{c.executing.task.ID}
}

// Metrics returns a snapshot of the performance counters.
func (c *Coordinator) Metrics() Metrics {
	m := c.metrics.snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	m.QueueDepth = len(c.queue)
	for _, rec := range c.tasks {
		if rec.state == StatePending {
			m.Pending++
		}
	}
	for _, recs := range c.blocked {
		for _, rec := range recs {
			if rec.state == StatePending {
				m.Blocked++
			}
		}
	}
	m.Groups = len(c.groups)
	if c.executing != nil {
		m.Executing = 1
	}
	return m
}

// ResetMetrics zeroes the cumulative counters.
func (c *Coordinator) ResetMetrics() {
	c.metrics.reset()
}
