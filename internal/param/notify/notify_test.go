package notify

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_Subscribe(t *testing.T) {
	n := New[string]()

	var received atomic.Int32
	sub := n.Subscribe(func(string) { received.Add(1) })

	n.Notify("a")
	assert.EqualValues(t, 1, received.Load())

	sub.Unsubscribe()
	sub.Unsubscribe()

	n.Notify("b")
	assert.EqualValues(t, 1, received.Load())
	assert.Equal(t, 0, n.Len())
}

func TestNotifier_RegistrationOrder(t *testing.T) {
	n := New[int]()

	var got []uint64
	var subs []*Subscription
	for i := 0; i < 5; i++ {
		var s *Subscription
		s = n.Subscribe(func(int) { got = append(got, s.ID()) })
		subs = append(subs, s)
	}

	n.Notify(1)

	require.Len(t, got, 5)
	for i := range subs {
		assert.Equal(t, subs[i].ID(), got[i])
		if i > 0 {
			assert.Greater(t, got[i], got[i-1])
		}
	}
}

func TestNotifier_PanicIsolated(t *testing.T) {
	var panics []*CallbackError
	n := New[string](WithPanicHandler(func(e *CallbackError) { panics = append(panics, e) }))

	var after bool
	n.Subscribe(func(string) { panic("boom") })
	n.Subscribe(func(string) { after = true })

	assert.NotPanics(t, func() { n.Notify("x") })
	assert.True(t, after, "observer after the panicking one must still run")
	require.Len(t, panics, 1)
	assert.Equal(t, "boom", panics[0].Value)
	assert.Contains(t, panics[0].Error(), "panicked")
}

func TestNotifier_Filter(t *testing.T) {
	n := New[string]()

	var got []string
	n.SubscribeFunc(func(s string) { got = append(got, s) }, func(s string) bool { return s != "skip" })

	n.Notify("one")
	n.Notify("skip")
	n.Notify("two")

	assert.Equal(t, []string{"one", "two"}, got)
}

func TestNotifier_UnsubscribeDuringNotify(t *testing.T) {
	n := New[int]()

	var second int
	var first *Subscription
	first = n.Subscribe(func(int) { first.Unsubscribe() })
	n.Subscribe(func(int) { second++ })

	n.Notify(1)
	n.Notify(2)

	assert.Equal(t, 2, second)
	assert.Equal(t, 1, n.Len())
}

func TestNotifier_Close(t *testing.T) {
	n := New[int]()
	var calls int
	n.Subscribe(func(int) { calls++ })
	n.Close()
	n.Notify(1)
	assert.Zero(t, calls)
}

func TestNotifier_Concurrent(t *testing.T) {
	n := New[int]()

	var total atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := n.Subscribe(func(v int) { total.Add(int64(v)) })
			for j := 0; j < 100; j++ {
				n.Notify(1)
			}
			sub.Unsubscribe()
		}()
	}
	wg.Wait()

	assert.Positive(t, total.Load())
	assert.Equal(t, 0, n.Len())
}

func TestBatch(t *testing.T) {
	n := New[string]()

	var got []string
	n.Subscribe(func(s string) { got = append(got, s) })

	b := n.NewBatch()
	b.Add("a")
	b.Add("b")
	assert.Equal(t, 2, b.Len())
	assert.Empty(t, got)

	b.Commit()
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Zero(t, b.Len())

	b.Add("c")
	b.Discard()
	b.Commit()
	assert.Equal(t, []string{"a", "b"}, got)
}
