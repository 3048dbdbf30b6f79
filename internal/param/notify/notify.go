// Package notify provides ordered, panic-safe observer lists.
//
// A Notifier delivers events to its subscribers synchronously on the
// publishing goroutine, in registration order, with no lock held. A panic in
// one observer is recovered, logged and reported to the optional panic
// handler; the remaining observers still run.
package notify

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Observer receives events of type E.
type Observer[E any] func(event E)

// Filter selects which events an observer receives.
type Filter[E any] func(event E) bool

// CallbackError describes a recovered observer panic.
type CallbackError struct {
	Subscription uint64
	Value        any
	Stack        []byte
}

// Error implements error.
func (e *CallbackError) Error() string {
	return fmt.Sprintf("observer %d panicked: %v", e.Subscription, e.Value)
}

// Subscription represents an active observer subscription.
type Subscription struct {
	id     uint64
	cancel func(uint64)
	once   sync.Once
}

// ID returns the subscription identifier. IDs increase monotonically per
// Notifier.
func (s *Subscription) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(func() { s.cancel(s.id) })
}

type entry[E any] struct {
	id       uint64
	observer Observer[E]
	filter   Filter[E]
}

// Notifier manages subscriptions for a single event type.
type Notifier[E any] struct {
	mu        sync.RWMutex
	observers map[uint64]entry[E]
	nextID    uint64
	closed    bool

	logger  *zap.Logger
	onPanic func(*CallbackError)
}

// Option configures a Notifier.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	onPanic func(*CallbackError)
}

// WithLogger sets the logger used to report recovered panics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPanicHandler sets a function called for every recovered observer panic.
func WithPanicHandler(fn func(*CallbackError)) Option {
	return func(o *options) {
		o.onPanic = fn
	}
}

// New creates a new Notifier.
func New[E any](opts ...Option) *Notifier[E] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Notifier[E]{
		observers: make(map[uint64]entry[E]),
		nextID:    1,
		logger:    o.logger,
		onPanic:   o.onPanic,
	}
}

// Subscribe registers an observer for all events.
func (n *Notifier[E]) Subscribe(observer Observer[E]) *Subscription {
	return n.SubscribeFunc(observer, nil)
}

// SubscribeFunc registers an observer that only receives events accepted by
// filter. A nil filter accepts everything.
func (n *Notifier[E]) SubscribeFunc(observer Observer[E], filter Filter[E]) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers[id] = entry[E]{id: id, observer: observer, filter: filter}

	return &Subscription{id: id, cancel: n.unsubscribe}
}

// Len returns the number of active subscriptions.
func (n *Notifier[E]) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers)
}

// Notify delivers event to every matching observer in registration order.
func (n *Notifier[E]) Notify(event E) {
	for _, e := range n.snapshot() {
		if e.filter != nil && !e.filter(event) {
			continue
		}
		n.call(e, event)
	}
}

// Close drops all subscriptions. Later Notify calls deliver nothing and
// later subscriptions are inert.
func (n *Notifier[E]) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.observers = make(map[uint64]entry[E])
}

func (n *Notifier[E]) snapshot() []entry[E] {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed || len(n.observers) == 0 {
		return nil
	}
	out := make([]entry[E], 0, len(n.observers))
	for _, e := range n.observers {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (n *Notifier[E]) call(e entry[E], event E) {
	defer func() {
		if r := recover(); r != nil {
			cerr := &CallbackError{Subscription: e.id, Value: r, Stack: debug.Stack()}
			n.logger.Error("observer panicked",
				zap.Uint64("subscription", e.id),
				zap.Any("panic", r),
				zap.ByteString("stack", cerr.Stack))
			if n.onPanic != nil {
				n.onPanic(cerr)
			}
		}
	}()
	e.observer(event)
}

func (n *Notifier[E]) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, id)
}

// Batch collects events and delivers them together on Commit.
type Batch[E any] struct {
	notifier *Notifier[E]
	events   []E
	mu       sync.Mutex
}

// NewBatch creates a new batch for collecting events.
func (n *Notifier[E]) NewBatch() *Batch[E] {
	return &Batch[E]{notifier: n}
}

// Add adds an event to the batch.
func (b *Batch[E]) Add(event E) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Commit sends all batched events to observers, in the order they were added.
func (b *Batch[E]) Commit() {
	b.mu.Lock()
	events := b.events
	b.events = nil
	b.mu.Unlock()

	for _, ev := range events {
		b.notifier.Notify(ev)
	}
}

// Discard clears the batch without sending notifications.
func (b *Batch[E]) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// Len returns the number of pending events.
func (b *Batch[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
