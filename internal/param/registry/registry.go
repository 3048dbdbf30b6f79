// Package registry federates one parameter tree per subsystem.
//
// The registry owns its trees. Callers address parameters either by
// (system, local path) or by a fully-qualified path whose first segment is
// the system token, e.g. "mesh.deflection". Every successful write to a
// registered tree is re-published as a SystemChange to registry observers.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/paramtree/internal/param/notify"
	"github.com/dshills/paramtree/internal/param/preset"
	"github.com/dshills/paramtree/internal/param/tree"
	"github.com/dshills/paramtree/internal/param/value"
)

// Errors returned by registry operations.
var (
	// ErrSystemNotRegistered indicates no tree backs the addressed system.
	ErrSystemNotRegistered = errors.New("parameter system not registered")

	// ErrUnknownSystem indicates a system token outside the known set.
	ErrUnknownSystem = fmt.Errorf("%w: unknown system", ErrSystemNotRegistered)

	// ErrSystemAlreadyRegistered indicates a second tree for the same system.
	ErrSystemAlreadyRegistered = errors.New("parameter system already registered")

	// ErrDependencyCycle indicates the system dependency graph has a cycle.
	ErrDependencyCycle = errors.New("system dependency cycle")
)

// Source tags attached to changes made by the registry itself.
const (
	SourceRegistry = "registry"
	SourcePreset   = "preset"
)

// SystemChange records a value transition in one system's tree.
type SystemChange struct {
	System    SystemType
	Path      string
	OldValue  value.Value
	NewValue  value.Value
	Timestamp time.Time
	Source    string
	Batch     bool
}

// FullPath returns the fully-qualified path of the change.
func (c SystemChange) FullPath() string {
	return BuildFullPath(c.System, c.Path)
}

type entry struct {
	tree *tree.Tree
	sub  *notify.Subscription
}

// Registry owns the per-system parameter trees.
type Registry struct {
	mu      sync.RWMutex
	systems map[SystemType]*entry
	deps    map[SystemType]map[SystemType]struct{}

	changes *notify.Notifier[SystemChange]
	store   preset.Store
	logger  *zap.Logger
	now     func() time.Time

	noDefaults bool

	changesNotified atomic.Int64
	batchUpdates    atomic.Int64
	presetsSaved    atomic.Int64
	presetsLoaded   atomic.Int64
	lastChange      atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. Default trees inherit it.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStore sets the preset store. The default is an in-memory store.
func WithStore(s preset.Store) Option {
	return func(r *Registry) {
		if s != nil {
			r.store = s
		}
	}
}

// WithClock overrides the preset timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithoutDefaults skips registration of the default systems.
func WithoutDefaults() Option {
	return func(r *Registry) {
		r.noDefaults = true
	}
}

// New creates a registry. Unless WithoutDefaults is given it registers the
// geometry, rendering, mesh and lighting trees and the built-in system
// dependencies.
func New(opts ...Option) *Registry {
	r := &Registry{
		systems: make(map[SystemType]*entry),
		deps:    make(map[SystemType]map[SystemType]struct{}),
		store:   preset.NewMemoryStore(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.changes = notify.New[SystemChange](notify.WithLogger(r.logger))
	if !r.noDefaults {
		r.initializeDefaults()
	}
	return r
}

func (r *Registry) initializeDefaults() {
	l := tree.WithLogger(r.logger)
	defaults := map[SystemType]*tree.Tree{
		Geometry:  tree.NewGeometryTree(l),
		Rendering: tree.NewRenderingTree(l),
		Mesh:      tree.NewMeshTree(l),
		Lighting:  tree.NewLightingTree(l),
	}
	for _, st := range AllSystems() {
		if t, ok := defaults[st]; ok {
			_ = r.Register(st, t)
		}
	}
	_ = r.AddSystemDependency(Rendering, Geometry)
	_ = r.AddSystemDependency(Mesh, Geometry)
	_ = r.AddSystemDependency(Lighting, Rendering)
}

// Register hands ownership of t to the registry under system st.
func (r *Registry) Register(st SystemType, t *tree.Tree) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownSystem, st)
	}
	if t == nil {
		return fmt.Errorf("register %s: nil tree", st)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.systems[st]; ok {
		return fmt.Errorf("%w: %s", ErrSystemAlreadyRegistered, st)
	}
	sub := t.OnChange(func(ev tree.ChangeEvent) { r.forward(st, ev) })
	r.systems[st] = &entry{tree: t, sub: sub}
	r.logger.Debug("system registered", zap.Stringer("system", st))
	return nil
}

// Unregister releases the tree of system st.
func (r *Registry) Unregister(st SystemType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.systems[st]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSystemNotRegistered, st)
	}
	e.sub.Unsubscribe()
	delete(r.systems, st)
	r.logger.Debug("system unregistered", zap.Stringer("system", st))
	return nil
}

// System returns the tree for st, or nil when none is registered.
func (r *Registry) System(st SystemType) *tree.Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.systems[st]; ok {
		return e.tree
	}
	return nil
}

// Systems returns the registered systems in declaration order.
func (r *Registry) Systems() []SystemType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SystemType, 0, len(r.systems))
	for st := range r.systems {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) tree(st SystemType) (*tree.Tree, error) {
	if t := r.System(st); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSystemNotRegistered, st)
}

// Set stores v at path in system st.
func (r *Registry) Set(st SystemType, path string, v value.Value) error {
	return r.SetFrom(SourceRegistry, st, path, v)
}

// SetFrom is Set with an explicit change source.
func (r *Registry) SetFrom(source string, st SystemType, path string, v value.Value) error {
	t, err := r.tree(st)
	if err != nil {
		return err
	}
	return t.SetValueFrom(source, path, v)
}

// Get returns the value at path in system st, or the zero Value.
func (r *Registry) Get(st SystemType, path string) value.Value {
	t := r.System(st)
	if t == nil {
		return value.Value{}
	}
	return t.Value(path)
}

// Has reports whether system st has a parameter at path.
func (r *Registry) Has(st SystemType, path string) bool {
	t := r.System(st)
	return t != nil && t.HasParameter(path)
}

// SetMany applies values to system st. Entries are independent; the error
// joins every failure.
func (r *Registry) SetMany(st SystemType, values map[string]value.Value) error {
	return r.SetManyFrom(SourceRegistry, st, values)
}

// SetManyFrom is SetMany with an explicit change source.
func (r *Registry) SetManyFrom(source string, st SystemType, values map[string]value.Value) error {
	t, err := r.tree(st)
	if err != nil {
		return err
	}
	r.batchUpdates.Add(1)
	return t.SetValuesFrom(source, values)
}

// All returns every parameter of system st keyed by local path.
func (r *Registry) All(st SystemType) map[string]value.Value {
	t := r.System(st)
	if t == nil {
		return nil
	}
	return t.Snapshot()
}

// ParseFullPath splits "system.local.path" on its first separator.
func ParseFullPath(full string) (SystemType, string, error) {
	token, local, ok := strings.Cut(full, tree.Separator)
	if !ok || local == "" {
		return 0, "", fmt.Errorf("%w: %q has no system prefix", tree.ErrInvalidPath, full)
	}
	st, err := ParseSystemType(token)
	if err != nil {
		return 0, "", err
	}
	return st, local, nil
}

// BuildFullPath joins a system token and a local path.
func BuildFullPath(st SystemType, path string) string {
	return tree.JoinPath(st.String(), path)
}

// SetByFullPath stores v at a fully-qualified path.
func (r *Registry) SetByFullPath(full string, v value.Value) error {
	return r.SetByFullPathFrom(SourceRegistry, full, v)
}

// SetByFullPathFrom is SetByFullPath with an explicit change source.
func (r *Registry) SetByFullPathFrom(source, full string, v value.Value) error {
	st, path, err := ParseFullPath(full)
	if err != nil {
		return err
	}
	return r.SetFrom(source, st, path, v)
}

// GetByFullPath returns the value at a fully-qualified path, or the zero
// Value when it does not resolve.
func (r *Registry) GetByFullPath(full string) value.Value {
	st, path, err := ParseFullPath(full)
	if err != nil {
		return value.Value{}
	}
	return r.Get(st, path)
}

// HasByFullPath reports whether a fully-qualified path resolves to a
// parameter.
func (r *Registry) HasByFullPath(full string) bool {
	st, path, err := ParseFullPath(full)
	if err != nil {
		return false
	}
	return r.Has(st, path)
}

// OnSystemChange registers fn for every successful write to any registered
// tree.
func (r *Registry) OnSystemChange(fn func(SystemChange)) *notify.Subscription {
	return r.changes.Subscribe(fn)
}

func (r *Registry) forward(st SystemType, ev tree.ChangeEvent) {
	r.changesNotified.Add(1)
	r.lastChange.Store(ev.Timestamp.UnixNano())
	r.changes.Notify(SystemChange{
		System:    st,
		Path:      ev.Path,
		OldValue:  ev.OldValue,
		NewValue:  ev.NewValue,
		Timestamp: ev.Timestamp,
		Source:    ev.Source,
		Batch:     ev.Batch,
	})
}

// ValidateAll reports whether every registered tree validates.
func (r *Registry) ValidateAll() bool {
	return len(r.ValidationReport()) == 0
}

// ValidationReport aggregates the validation errors of every registered
// tree, prefixed with the system token.
func (r *Registry) ValidationReport() []string {
	var out []string
	for _, st := range r.Systems() {
		t := r.System(st)
		if t == nil {
			continue
		}
		for _, msg := range t.ValidationErrors() {
			out = append(out, st.String()+": "+msg)
		}
	}
	return out
}
