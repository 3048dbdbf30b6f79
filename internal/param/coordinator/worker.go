package coordinator

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// loop is the worker. It blocks on wake, done or the earliest batch
// deadline and never polls.
func (c *Coordinator) loop() {
	defer close(c.stopped)
	defer c.discard()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.Lock()
		var (
			single  *record
			group   *batchGroup
			timeout time.Duration
			timed   bool
		)
		if !c.paused {
			single, group = c.nextLocked(time.Now())
			if single == nil && group == nil {
				timeout, timed = c.nextDeadlineLocked(time.Now())
			}
		}
		c.mu.Unlock()

		switch {
		case group != nil:
			c.runGroup(group)
			continue
		case single != nil:
			c.runTask(single, "")
			continue
		}

		var timer *time.Timer
		var fire <-chan time.Time
		if timed {
			timer = time.NewTimer(timeout)
			fire = timer.C
		}
		select {
		case <-c.wake:
		case <-fire:
		case <-c.done:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// nextLocked returns the next unit of work: a due batch group or a single
// task ready to run.
func (c *Coordinator) nextLocked(now time.Time) (*record, *batchGroup) {
	if g := c.dueGroupLocked(now); g != nil {
		return nil, g
	}

	for len(c.queue) > 0 {
		rec := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		if rec.state != StatePending {
			continue
		}
		if dep, ok := c.unmetLocked(rec); ok {
			c.blocked[dep] = append(c.blocked[dep], rec)
			c.metrics.recordConflict()
			c.logger.Debug("task waiting on dependency",
				zap.String("task", rec.task.ID),
				zap.String("dependency", dep))
			continue
		}
		if rec.named != "" {
			g := c.addToGroupLocked(rec, "named:"+rec.named, now)
			c.memberArrivedLocked(rec.named)
			if c.groupDueLocked(g, now) {
				delete(c.groups, g.key)
				return nil, g
			}
			continue
		}
		if c.cfg.BatchEnabled && rec.task.Batchable {
			g := c.addToGroupLocked(rec, c.groupKeyLocked(rec.task), now)
			if c.groupDueLocked(g, now) {
				delete(c.groups, g.key)
				return nil, g
			}
			continue
		}
		return rec, nil
	}
	if len(c.groups) == 0 {
		c.flushAll = false
	}
	return nil, nil
}

func (c *Coordinator) unmetLocked(rec *record) (string, bool) {
	for _, dep := range rec.task.Dependencies {
		if _, ok := c.finished[dep]; !ok {
			return dep, true
		}
	}
	return "", false
}

func (c *Coordinator) groupKeyLocked(t Task) string {
	switch c.cfg.Grouping {
	case ByType:
		return "type:" + t.Type.String()
	case ByTarget:
		return "target:" + t.Target
	case ByPriority:
		return "priority:" + strconv.Itoa(t.Priority)
	case ByDependency:
		deps := append([]string(nil), t.Dependencies...)
		sort.Strings(deps)
		return "dependency:" + strings.Join(deps, ",")
	default:
		return "mixed:" + t.Type.String() + ":" + strconv.Itoa(t.Priority)
	}
}

func (c *Coordinator) addToGroupLocked(rec *record, key string, now time.Time) *batchGroup {
	g := c.groups[key]
	if g == nil {
		g = &batchGroup{id: uuid.NewString(), key: key, named: rec.named, created: now}
		if rec.named != "" {
			g.id = rec.named
		}
		c.groups[key] = g
	}
	rec.group = g.id
	g.tasks = append(g.tasks, rec)
	return g
}

func (c *Coordinator) memberArrivedLocked(named string) {
	c.named[named]--
	if c.named[named] <= 0 {
		delete(c.named, named)
	}
}

func (c *Coordinator) groupDueLocked(g *batchGroup, now time.Time) bool {
	if c.flushAll || len(g.tasks) >= c.cfg.MaxBatchSize || now.Sub(g.created) >= c.cfg.BatchTimeout {
		return true
	}
	if g.named != "" {
		_, waiting := c.named[g.named]
		return !waiting
	}
	return !c.cfg.BatchEnabled
}

// dueGroupLocked removes and returns the oldest due group.
func (c *Coordinator) dueGroupLocked(now time.Time) *batchGroup {
	var due *batchGroup
	for _, g := range c.groups {
		if !c.groupDueLocked(g, now) {
			continue
		}
		if due == nil || g.created.Before(due.created) {
			due = g
		}
	}
	if due != nil {
		delete(c.groups, due.key)
	}
	return due
}

func (c *Coordinator) nextDeadlineLocked(now time.Time) (time.Duration, bool) {
	var earliest time.Time
	for _, g := range c.groups {
		deadline := g.created.Add(c.cfg.BatchTimeout)
		if earliest.IsZero() || deadline.Before(earliest) {
			earliest = deadline
		}
	}
	if earliest.IsZero() {
		return 0, false
	}
	d := earliest.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func (c *Coordinator) runTask(rec *record, groupID string) bool {
	c.mu.Lock()
	if c.closed || rec.state != StatePending {
		c.mu.Unlock()
		return false
	}
	rec.state = StateExecuting
	c.executing = rec
	h := c.handlers[rec.task.Type]
	c.mu.Unlock()

	start := time.Now()
	res := c.exec.execute(c.runCtx, rec.task, h)
	state := StateDone
	if res.err != nil {
		state = StateFailed
	}

	wait := start.Sub(rec.task.Timestamp)
	c.metrics.recordExecution(res, wait)
	if res.err != nil && !res.panicked {
		c.logger.Warn("task failed",
			zap.String("task", rec.task.ID),
			zap.Stringer("type", rec.task.Type),
			zap.String("target", rec.task.Target),
			zap.Error(res.err))
	}

	// observers run before the task settles so Wait returns after them
	c.completions.Notify(Completion{
		TaskID:   rec.task.ID,
		Type:     rec.task.Type,
		Target:   rec.task.Target,
		GroupID:  groupID,
		Success:  res.err == nil,
		Err:      res.err,
		Duration: res.duration,
		Wait:     wait,
	})
	c.updates.Notify(rec.task)

	c.mu.Lock()
	c.executing = nil
	c.settleLocked(rec, state)
	c.mu.Unlock()
	return true
}

// runGroup runs a flushed group. For each target only the highest priority
// task runs; equal priorities keep the latest submitted. Tasks without a
// target are never superseded.
func (c *Coordinator) runGroup(g *batchGroup) {
	start := time.Now()

	c.mu.Lock()
	best := make(map[string]int, len(g.tasks))
	var live []*record
	for _, rec := range g.tasks {
		if rec.state == StatePending {
			live = append(live, rec)
		}
	}
	for i, rec := range live {
		k := rec.task.Target
		if k == "" {
			continue
		}
		if j, ok := best[k]; !ok || rec.task.Priority >= live[j].task.Priority {
			best[k] = i
		}
	}
	var kept, superseded []*record
	for i, rec := range live {
		if k := rec.task.Target; k == "" || best[k] == i {
			kept = append(kept, rec)
			continue
		}
		superseded = append(superseded, rec)
		c.settleLocked(rec, StateSuperseded)
	}
	c.mu.Unlock()

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].task.Priority > kept[j].task.Priority })
	c.metrics.recordBatch(len(live))
	c.metrics.recordSuperseded(len(superseded))

	ev := BatchEvent{GroupID: g.id, Key: g.key}
	for _, rec := range superseded {
		ev.Superseded = append(ev.Superseded, rec.task.ID)
	}
	for _, rec := range kept {
		if c.runTask(rec, g.id) {
			ev.Executed = append(ev.Executed, rec.task.ID)
		}
	}
	ev.Duration = time.Since(start)

	c.logger.Debug("batch group flushed",
		zap.String("group", g.id),
		zap.String("key", g.key),
		zap.Int("executed", len(ev.Executed)),
		zap.Int("superseded", len(ev.Superseded)))
	c.batches.Notify(ev)
}

// settleLocked records a terminal state, releases waiters and re-queues
// tasks parked on id.
func (c *Coordinator) settleLocked(rec *record, state TaskState) {
	id := rec.task.ID
	rec.state = state
	delete(c.tasks, id)

	c.finished[id] = struct{}{}
	c.settled[id] = state
	c.settledOrder = append(c.settledOrder, id)
	if over := len(c.settledOrder) - c.cfg.Retention; over > 0 {
		for _, old := range c.settledOrder[:over] {
			delete(c.settled, old)
		}
		c.settledOrder = append([]string(nil), c.settledOrder[over:]...)
	}

	for _, ch := range c.waiters[id] {
		ch <- state
	}
	delete(c.waiters, id)

	if parked := c.blocked[id]; len(parked) > 0 {
		for _, p := range parked {
			if p.state == StatePending {
				c.queue = append(c.queue, p)
			}
		}
		delete(c.blocked, id)
	}

	if len(c.tasks) == 0 {
		for _, ch := range c.idleWaiters {
			close(ch)
		}
		c.idleWaiters = nil
	}
}

func (c *Coordinator) knownLocked(id string) bool {
	if _, ok := c.tasks[id]; ok {
		return true
	}
	_, ok := c.finished[id]
	return ok
}

func (c *Coordinator) removeQueuedLocked(rec *record) {
	for i, q := range c.queue {
		if q == rec {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) removeBlockedLocked(rec *record) {
	for dep, recs := range c.blocked {
		for i, r := range recs {
			if r != rec {
				continue
			}
			recs = append(recs[:i], recs[i+1:]...)
			if len(recs) == 0 {
				delete(c.blocked, dep)
			} else {
				c.blocked[dep] = recs
			}
			return
		}
	}
}

func (c *Coordinator) removeFromGroupLocked(rec *record) {
	if rec.group == "" {
		return
	}
	for key, g := range c.groups {
		if g.id != rec.group {
			continue
		}
		for i, r := range g.tasks {
			if r == rec {
				g.tasks = append(g.tasks[:i], g.tasks[i+1:]...)
				break
			}
		}
		if len(g.tasks) == 0 {
			delete(c.groups, key)
		}
		return
	}
}

// discard settles everything still pending once the worker exits.
func (c *Coordinator) discard() {
	c.mu.Lock()
	var n int
	for _, rec := range c.tasks {
		if rec.state == StatePending {
			c.settleLocked(rec, StateDiscarded)
			n++
		}
	}
	c.queue = nil
	c.blocked = make(map[string][]*record)
	c.groups = make(map[string]*batchGroup)
	c.named = make(map[string]int)
	c.mu.Unlock()

	if n > 0 {
		c.metrics.recordDiscarded(n)
		c.logger.Info("pending tasks discarded", zap.Int("count", n))
	}
}

func removeChan[T any](chs []chan T, ch chan T) []chan T {
	for i, c := range chs {
		if c == ch {
			return append(chs[:i], chs[i+1:]...)
		}
	}
	return chs
}
