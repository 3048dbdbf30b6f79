package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/paramtree/internal/param/coordinator"
	"github.com/dshills/paramtree/internal/param/registry"
	"github.com/dshills/paramtree/internal/param/value"
)

// Bridge connects one subsystem's live configuration to the registry.
//
// Paths are local to the bridge's system. Implementations must be safe for
// concurrent use: the manager calls Value from sync goroutines while the
// coordinator worker calls SetValue and OnParameterChanged.
type Bridge interface {
	System() registry.SystemType
	Name() string
	Available() bool
	ParameterPaths() []string
	Value(path string) value.Value
	SetValue(path string, v value.Value) error
	OnParameterChanged(path string, from, to value.Value)
}

// Refresher is implemented by bridges that rebuild derived state when the
// coordinator runs a refresh task for their system.
type Refresher interface {
	Refresh(ctx context.Context, kind coordinator.TaskType, target string) error
}

// Binding exposes one parameter of a collaborator. A nil Set makes the
// binding read-only.
type Binding struct {
	Get func() value.Value
	Set func(value.Value) error
}

// MapBridge is a Bridge built from per-path getter and setter bindings.
type MapBridge struct {
	system registry.SystemType
	name   string

	mu        sync.RWMutex
	bindings  map[string]Binding
	available func() bool
	onChange  func(path string, from, to value.Value)
	onRefresh func(ctx context.Context, kind coordinator.TaskType, target string) error
}

// NewMapBridge returns an empty bridge for system st.
func NewMapBridge(st registry.SystemType, name string) *MapBridge {
	if name == "" {
		name = st.String()
	}
	return &MapBridge{
		system:   st,
		name:     name,
		bindings: make(map[string]Binding),
	}
}

// Bind registers the getter and setter for path.
func (b *MapBridge) Bind(path string, get func() value.Value, set func(value.Value) error) *MapBridge {
	b.mu.Lock()
	b.bindings[path] = Binding{Get: get, Set: set}
	b.mu.Unlock()
	return b
}

// Unbind removes the binding for path.
func (b *MapBridge) Unbind(path string) {
	b.mu.Lock()
	delete(b.bindings, path)
	b.mu.Unlock()
}

// WithAvailability sets the availability check. Without one the bridge is
// always available.
func (b *MapBridge) WithAvailability(fn func() bool) *MapBridge {
	b.mu.Lock()
	b.available = fn
	b.mu.Unlock()
	return b
}

// OnChange sets the hook run after a registry change reaches the bridge.
func (b *MapBridge) OnChange(fn func(path string, from, to value.Value)) *MapBridge {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
	return b
}

// OnRefresh sets the hook run for refresh tasks of the bridge's system.
func (b *MapBridge) OnRefresh(fn func(ctx context.Context, kind coordinator.TaskType, target string) error) *MapBridge {
	b.mu.Lock()
	b.onRefresh = fn
	b.mu.Unlock()
	return b
}

func (b *MapBridge) System() registry.SystemType { return b.system }

func (b *MapBridge) Name() string { return b.name }

func (b *MapBridge) Available() bool {
	b.mu.RLock()
	fn := b.available
	b.mu.RUnlock()
	return fn == nil || fn()
}

// ParameterPaths returns the bound paths in sorted order.
func (b *MapBridge) ParameterPaths() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	paths := make([]string, 0, len(b.bindings))
	for p := range b.bindings {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Value reads path through its getter. Unbound paths yield the zero Value.
func (b *MapBridge) Value(path string) value.Value {
	b.mu.RLock()
	bd, ok := b.bindings[path]
	b.mu.RUnlock()
	if !ok || bd.Get == nil {
		return value.Value{}
	}
	return bd.Get()
}

func (b *MapBridge) SetValue(path string, v value.Value) error {
	b.mu.RLock()
	bd, ok := b.bindings[path]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: no binding for %q", b.name, path)
	}
	if bd.Set == nil {
		return fmt.Errorf("%s: %w: %s", b.name, ErrReadOnly, path)
	}
	return bd.Set(v)
}

func (b *MapBridge) OnParameterChanged(path string, from, to value.Value) {
	b.mu.RLock()
	fn := b.onChange
	b.mu.RUnlock()
	if fn != nil {
		fn(path, from, to)
	}
}

func (b *MapBridge) Refresh(ctx context.Context, kind coordinator.TaskType, target string) error {
	b.mu.RLock()
	fn := b.onRefresh
	b.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, kind, target)
}

var (
	_ Bridge    = (*MapBridge)(nil)
	_ Refresher = (*MapBridge)(nil)
)
