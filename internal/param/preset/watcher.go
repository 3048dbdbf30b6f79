package preset

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherClosed is returned when operating on a closed watcher.
var ErrWatcherClosed = errors.New("preset watcher closed")

// Op describes how a preset file changed.
type Op uint8

const (
	// OpWrite indicates the preset was created or rewritten.
	OpWrite Op = iota + 1
	// OpRemove indicates the preset was deleted or renamed away.
	OpRemove
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event reports a debounced change to one preset file.
type Event struct {
	Name      string
	Path      string
	Op        Op
	Timestamp time.Time
}

// WatcherStats contains watcher statistics.
type WatcherStats struct {
	Events  int64
	Dropped int64
	Errors  int64
}

// Watcher reports changes to preset files in a FileStore directory.
// Bursts of filesystem events for the same preset are coalesced into one
// Event after a quiet period.
type Watcher struct {
	mu      sync.Mutex
	store   *FileStore
	fsw     *fsnotify.Watcher
	delay   time.Duration
	pending map[string]*pendingEvent
	logger  *zap.Logger

	events chan Event
	errors chan error

	totalEvents atomic.Int64
	dropped     atomic.Int64
	totalErrors atomic.Int64

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

type pendingEvent struct {
	timer *time.Timer
	seq   uint64
	ev    Event
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before an event is emitted.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher starts watching the directory of store.
func NewWatcher(store *FileStore, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		store:   store,
		fsw:     fsw,
		delay:   100 * time.Millisecond,
		pending: make(map[string]*pendingEvent),
		logger:  zap.NewNop(),
		events:  make(chan Event, 64),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := fsw.Add(store.Dir()); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Events returns the event channel. It is closed by Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the error channel. It is closed by Close.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Stats returns watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	return WatcherStats{
		Events:  w.totalEvents.Load(),
		Dropped: w.dropped.Load(),
		Errors:  w.totalErrors.Load(),
	}
}

// Close stops the watcher. Pending debounced events are discarded.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.pending = nil
	w.mu.Unlock()

	w.closedWg.Wait()
	err := w.fsw.Close()

	w.mu.Lock()
	close(w.events)
	close(w.errors)
	w.mu.Unlock()
	return err
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case fsEvent, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(fsEvent)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.totalErrors.Add(1)
			w.logger.Warn("preset watcher error", zap.Error(err))
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handleFSEvent(fsEvent fsnotify.Event) {
	name, ok := w.store.NameFor(fsEvent.Name)
	if !ok {
		return
	}
	var op Op
	switch {
	case fsEvent.Op.Has(fsnotify.Remove), fsEvent.Op.Has(fsnotify.Rename):
		op = OpRemove
	case fsEvent.Op.Has(fsnotify.Create), fsEvent.Op.Has(fsnotify.Write):
		op = OpWrite
	default:
		return
	}
	w.schedule(Event{Name: name, Path: fsEvent.Name, Op: op, Timestamp: time.Now()})
}

// schedule (re)arms the debounce timer for ev.Name. Only the last event of a
// burst is delivered.
func (w *Watcher) schedule(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	p := w.pending[ev.Name]
	if p == nil {
		p = &pendingEvent{}
		w.pending[ev.Name] = p
	} else if p.timer != nil {
		p.timer.Stop()
	}
	p.seq++
	p.ev = ev
	seq := p.seq
	p.timer = time.AfterFunc(w.delay, func() { w.fire(ev.Name, seq) })
}

func (w *Watcher) fire(name string, seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	p := w.pending[name]
	if p == nil || p.seq != seq {
		return
	}
	delete(w.pending, name)

	select {
	case w.events <- p.ev:
		w.totalEvents.Add(1)
		w.logger.Debug("preset changed", zap.String("name", name), zap.Stringer("op", p.ev.Op))
	default:
		w.dropped.Add(1)
		w.logger.Warn("preset event channel full, dropping event", zap.String("name", name))
	}
}
