package coordinator

import (
	"sync"
	"time"
)

// Metrics is a snapshot of coordinator performance counters.
type Metrics struct {
	TasksSubmitted      uint64
	TasksExecuted       uint64
	TasksFailed         uint64
	TasksPanicked       uint64
	TasksCancelled      uint64
	TasksSuperseded     uint64
	TasksDiscarded      uint64
	BatchGroups         uint64
	AverageBatchSize    float64
	AverageExecution    time.Duration
	AverageWait         time.Duration
	DependencyConflicts uint64

	// Point-in-time depths, not reset by ResetMetrics.
	QueueDepth int
	Pending    int
	Blocked    int
	Groups     int
	Executing  int
}

// metrics collects coordinator statistics.
type metrics struct {
	mu sync.Mutex

	submitted  uint64
	executed   uint64
	failed     uint64
	panicked   uint64
	cancelled  uint64
	superseded uint64
	discarded  uint64
	groups     uint64
	groupTasks uint64
	conflicts  uint64
	execTotal  time.Duration
	waitTotal  time.Duration
}

func (m *metrics) recordSubmit(n int) {
	m.mu.Lock()
	m.submitted += uint64(n)
	m.mu.Unlock()
}

func (m *metrics) recordExecution(res result, wait time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed++
	m.execTotal += res.duration
	m.waitTotal += wait
	if res.err != nil {
		m.failed++
	}
	if res.panicked {
		m.panicked++
	}
}

func (m *metrics) recordCancel() {
	m.mu.Lock()
	m.cancelled++
	m.mu.Unlock()
}

func (m *metrics) recordSuperseded(n int) {
	m.mu.Lock()
	m.superseded += uint64(n)
	m.mu.Unlock()
}

func (m *metrics) recordDiscarded(n int) {
	m.mu.Lock()
	m.discarded += uint64(n)
	m.mu.Unlock()
}

func (m *metrics) recordBatch(size int) {
	m.mu.Lock()
	m.groups++
	m.groupTasks += uint64(size)
	m.mu.Unlock()
}

func (m *metrics) recordConflict() {
	m.mu.Lock()
	m.conflicts++
	m.mu.Unlock()
}

func (m *metrics) snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Metrics{
		TasksSubmitted:      m.submitted,
		TasksExecuted:       m.executed,
		TasksFailed:         m.failed,
		TasksPanicked:       m.panicked,
		TasksCancelled:      m.cancelled,
		TasksSuperseded:     m.superseded,
		TasksDiscarded:      m.discarded,
		BatchGroups:         m.groups,
		DependencyConflicts: m.conflicts,
	}
	if m.groups > 0 {
		s.AverageBatchSize = float64(m.groupTasks) / float64(m.groups)
	}
	if m.executed > 0 {
		s.AverageExecution = m.execTotal / time.Duration(m.executed)
		s.AverageWait = m.waitTotal / time.Duration(m.executed)
	}
	return s
}

func (m *metrics) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted, m.executed, m.failed, m.panicked = 0, 0, 0, 0
	m.cancelled, m.superseded, m.discarded = 0, 0, 0
	m.groups, m.groupTasks, m.conflicts = 0, 0, 0
	m.execTotal, m.waitTotal = 0, 0
}
