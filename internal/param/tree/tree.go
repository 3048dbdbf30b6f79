// Package tree implements the hierarchical, path-addressed parameter store.
//
// A Tree owns a root node. Parameters are addressed by dot-separated paths
// such as "material.diffuse.r"; missing ancestors are created as containers
// on demand. Every successful write raises a ChangeEvent to the tree's
// observers and, when other parameters declared a dependency on the changed
// path, a DependencyEvent. Dependents are never recomputed automatically.
package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/paramtree/internal/param/notify"
	"github.com/dshills/paramtree/internal/param/value"
)

// Tree is a concurrency-safe parameter tree.
type Tree struct {
	mu   sync.RWMutex
	root *Node
	name string

	changes    *notify.Notifier[ChangeEvent]
	dependents *notify.Notifier[DependencyEvent]

	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the tree logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithName sets the name used in log output.
func WithName(name string) Option {
	return func(t *Tree) {
		t.name = name
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Tree) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates an empty tree.
func New(opts ...Option) *Tree {
	t := &Tree{
		name:   "root",
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.String("tree", t.name))
	t.root = newNode(t, "", Container)
	t.changes = notify.New[ChangeEvent](notify.WithLogger(t.logger))
	t.dependents = notify.New[DependencyEvent](notify.WithLogger(t.logger))
	return t
}

// Name returns the tree name.
func (t *Tree) Name() string { return t.name }

// Root returns the root container.
func (t *Tree) Root() *Node { return t.root }

// ParameterOption configures a parameter at creation.
type ParameterOption func(*paramConfig)

type paramConfig struct {
	min, max    value.Value
	description string
	tags        []string
	allowRetype bool
}

// WithRange sets inclusive numeric bounds. Pass a zero Value to leave a side
// unbounded.
func WithRange(min, max value.Value) ParameterOption {
	return func(c *paramConfig) {
		c.min, c.max = min, max
	}
}

// WithDescription sets the parameter description.
func WithDescription(desc string) ParameterOption {
	return func(c *paramConfig) {
		c.description = desc
	}
}

// WithTags sets the parameter tags.
func WithTags(tags ...string) ParameterOption {
	return func(c *paramConfig) {
		c.tags = append([]string(nil), tags...)
	}
}

// WithRetype allows values whose kind differs from the default's.
func WithRetype() ParameterOption {
	return func(c *paramConfig) {
		c.allowRetype = true
	}
}

// CreateParameter creates a parameter at path with the given default,
// creating missing ancestors as containers. If a parameter already exists at
// path it is returned unchanged.
func (t *Tree) CreateParameter(path string, def value.Value, opts ...ParameterOption) (*Node, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if !def.IsValid() {
		return nil, &ValidationError{Path: path, Message: "default value is empty", Code: CodeTypeMismatch}
	}

	var cfg paramConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := checkBounds(path, cfg.min, cfg.max); err != nil {
		return nil, err
	}
	ps := &paramState{
		current:     def,
		def:         def,
		min:         cfg.min,
		max:         cfg.max,
		allowRetype: cfg.allowRetype,
	}
	if err := ps.validate(path, def); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.ensureLocked(parts[:len(parts)-1])
	if err != nil {
		return nil, err
	}
	name := parts[len(parts)-1]
	if existing, ok := parent.children[name]; ok {
		if existing.typ != Parameter {
			return nil, fmt.Errorf("%w: %s is a %s", ErrKindConflict, path, existing.typ)
		}
		return existing, nil
	}

	n := newNode(t, name, Parameter)
	n.param = ps
	n.description = cfg.description
	n.tags = cfg.tags
	n.deps = make(map[string]struct{})
	t.attachLocked(parent, n)
	return n, nil
}

// CreateGroup creates a group at path. An existing container at path is
// promoted to a group.
func (t *Tree) CreateGroup(path, description string) (*Node, error) {
	n, err := t.CreateNode(path, Group)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if description != "" {
		n.description = description
	}
	return n, nil
}

// CreateNode creates a container or group at path, creating missing
// ancestors. Parameters must be created with CreateParameter.
func (t *Tree) CreateNode(path string, typ NodeType) (*Node, error) {
	if typ == Parameter {
		return nil, fmt.Errorf("%w: parameters need a default value", ErrKindConflict)
	}
	parts, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.ensureLocked(parts[:len(parts)-1])
	if err != nil {
		return nil, err
	}
	name := parts[len(parts)-1]
	if existing, ok := parent.children[name]; ok {
		switch {
		case existing.typ == typ:
			return existing, nil
		case existing.typ == Container && typ == Group:
			existing.typ = Group
			return existing, nil
		case existing.typ == Group && typ == Container:
			return existing, nil
		default:
			return nil, fmt.Errorf("%w: %s is a %s", ErrKindConflict, path, existing.typ)
		}
	}
	n := newNode(t, name, typ)
	t.attachLocked(parent, n)
	return n, nil
}

// AddChild inserts a new container or group named name under parentPath.
// Unlike CreateNode it fails with ErrDuplicateName if the name is taken.
func (t *Tree) AddChild(parentPath, name string, typ NodeType) (*Node, error) {
	if !ValidSegment(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	if typ == Parameter {
		return nil, fmt.Errorf("%w: parameters need a default value", ErrKindConflict)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.containerLocked(parentPath)
	if err != nil {
		return nil, err
	}
	if _, ok := parent.children[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, JoinPath(parentPath, name))
	}
	n := newNode(t, name, typ)
	t.attachLocked(parent, n)
	return n, nil
}

// Node returns the node at path, or nil. The empty path returns the root.
func (t *Tree) Node(path string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findLocked(path)
}

// HasParameter reports whether path resolves to a parameter.
func (t *Tree) HasParameter(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.findLocked(path)
	return n != nil && n.typ == Parameter
}

// SetValue stores v at path.
func (t *Tree) SetValue(path string, v value.Value) error {
	return t.SetValueFrom(SourceTree, path, v)
}

// SetValueFrom stores v at path and tags the change event with source.
func (t *Tree) SetValueFrom(source, path string, v value.Value) error {
	ev, err := t.store(source, path, v)
	if err != nil {
		t.logger.Debug("set rejected", zap.String("path", path), zap.Error(err))
		return err
	}
	t.publish(ev)
	return nil
}

// Value returns the current value at path, or the zero Value when path does
// not resolve to a parameter.
func (t *Tree) Value(path string) value.Value {
	v, _ := t.Lookup(path)
	return v
}

// Lookup returns the current value at path and whether it resolved.
func (t *Tree) Lookup(path string) (value.Value, bool) {
	n, err := t.parameter(path)
	if err != nil {
		return value.Value{}, false
	}
	return n.Value(), true
}

// SetValues applies every entry independently. Successful entries stay
// applied even when others fail; the returned error joins all failures.
// Change events carry Batch and are delivered after all entries are
// processed.
func (t *Tree) SetValues(values map[string]value.Value) error {
	return t.SetValuesFrom(SourceTree, values)
}

// SetValuesFrom is SetValues with an explicit source tag.
func (t *Tree) SetValuesFrom(source string, values map[string]value.Value) error {
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	// change events go out together once every entry has been applied;
	// dependency notices follow them
	var errs []error
	batch := t.changes.NewBatch()
	events := make([]ChangeEvent, 0, len(paths))
	for _, p := range paths {
		ev, err := t.store(source, p, values[p])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ev.Batch = true
		batch.Add(ev)
		events = append(events, ev)
	}
	batch.Commit()
	for _, ev := range events {
		t.publishDependents(ev)
	}
	if len(errs) > 0 {
		t.logger.Debug("batch set partially failed",
			zap.Int("applied", len(events)),
			zap.Int("failed", len(errs)))
	}
	return errors.Join(errs...)
}

// Values returns the current values for paths that resolve to parameters.
func (t *Tree) Values(paths []string) map[string]value.Value {
	out := make(map[string]value.Value, len(paths))
	for _, p := range paths {
		if v, ok := t.Lookup(p); ok {
			out[p] = v
		}
	}
	return out
}

// Snapshot returns every parameter value keyed by path.
func (t *Tree) Snapshot() map[string]value.Value {
	return t.Values(t.ParameterPaths())
}

// ResetToDefault restores the default value at path.
func (t *Tree) ResetToDefault(path string) error {
	n, err := t.parameter(path)
	if err != nil {
		return err
	}
	return t.SetValue(path, n.Default())
}

// SetRange replaces the numeric bounds of a parameter. The current value is
// not revalidated; Validate reports it if it now falls outside.
func (t *Tree) SetRange(path string, min, max value.Value) error {
	n, err := t.parameter(path)
	if err != nil {
		return err
	}
	if err := checkBounds(path, min, max); err != nil {
		return err
	}
	n.param.mu.Lock()
	defer n.param.mu.Unlock()
	n.param.min, n.param.max = min, max
	return nil
}

// SetDescription sets the description of the node at path.
func (t *Tree) SetDescription(path, desc string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.findLocked(path)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	n.description = desc
	return nil
}

// SetTags replaces the tags of the node at path.
func (t *Tree) SetTags(path string, tags ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.findLocked(path)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	n.tags = append([]string(nil), tags...)
	return nil
}

// ParameterPaths returns every parameter path in depth-first insertion order.
func (t *Tree) ParameterPaths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	t.walkLocked(t.root, func(n *Node) {
		if n.typ == Parameter {
			out = append(out, n.path)
		}
	})
	return out
}

// PathsByTag returns the paths of parameters carrying tag.
func (t *Tree) PathsByTag(tag string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	t.walkLocked(t.root, func(n *Node) {
		if n.typ == Parameter && n.hasTagLocked(tag) {
			out = append(out, n.path)
		}
	})
	return out
}

// ChildPaths returns the paths of the immediate children of parentPath.
// The empty path lists the root's children.
func (t *Tree) ChildPaths(parentPath string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.findLocked(parentPath)
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.children[name].path)
	}
	return out
}

// AddDependency records that the parameter at path depends on dependency.
// The dependency path does not need to exist.
func (t *Tree) AddDependency(path, dependency string) error {
	if _, err := SplitPath(dependency); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.parameterLocked(path)
	if err != nil {
		return err
	}
	n.deps[dependency] = struct{}{}
	return nil
}

// RemoveDependency drops a dependency edge.
func (t *Tree) RemoveDependency(path, dependency string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.parameterLocked(path)
	if err != nil {
		return err
	}
	delete(n.deps, dependency)
	return nil
}

// Dependencies returns the paths the parameter at path depends on.
func (t *Tree) Dependencies(path string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.parameterLocked(path)
	if err != nil {
		return nil
	}
	return n.depsLocked()
}

// Dependents returns every parameter whose dependency set contains path.
func (t *Tree) Dependents(path string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	t.walkLocked(t.root, func(n *Node) {
		if _, ok := n.deps[path]; ok {
			out = append(out, n.path)
		}
	})
	return out
}

// Remove deletes the node at path and its subtree.
func (t *Tree) Remove(path string) error {
	if _, err := SplitPath(path); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.findLocked(path)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	t.detachLocked(n)
	return nil
}

// Move re-parents the node at path under newParent, recomputing the paths
// of the moved subtree. Dependency edges naming moved parameters are
// rewritten to the new paths.
func (t *Tree) Move(path, newParent string) error {
	if _, err := SplitPath(path); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.findLocked(path)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	dst, err := t.containerLocked(newParent)
	if err != nil {
		return err
	}
	if IsUnder(dst.path, path) && dst != t.root {
		return fmt.Errorf("%w: cannot move %s into its own subtree", ErrKindConflict, path)
	}
	if _, ok := dst.children[n.name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, JoinPath(newParent, n.name))
	}

	oldPrefix := n.path
	t.detachLocked(n)
	t.attachLocked(dst, n)
	newPrefix := n.path

	t.walkLocked(t.root, func(p *Node) {
		for d := range p.deps {
			if IsUnder(d, oldPrefix) {
				delete(p.deps, d)
				p.deps[newPrefix+strings.TrimPrefix(d, oldPrefix)] = struct{}{}
			}
		}
	})
	return nil
}

// Validate reports whether every parameter's current value passes
// validation.
func (t *Tree) Validate() bool {
	return len(t.ValidationErrors()) == 0
}

// ValidationErrors returns one message per invalid parameter.
func (t *Tree) ValidationErrors() []string {
	type entry struct {
		path  string
		param *paramState
	}
	t.mu.RLock()
	var params []entry
	t.walkLocked(t.root, func(n *Node) {
		if n.typ == Parameter {
			params = append(params, entry{n.path, n.param})
		}
	})
	t.mu.RUnlock()

	var out []string
	for _, e := range params {
		e.param.mu.RLock()
		err := e.param.validate(e.path, e.param.current)
		e.param.mu.RUnlock()
		if err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

func (t *Tree) store(source, path string, v value.Value) (ChangeEvent, error) {
	n, err := t.parameter(path)
	if err != nil {
		return ChangeEvent{}, err
	}
	p := n.param
	p.mu.Lock()
	if err := p.validate(path, v); err != nil {
		p.mu.Unlock()
		return ChangeEvent{}, err
	}
	old := p.current
	p.current = v
	p.mu.Unlock()

	return ChangeEvent{
		Path:      path,
		OldValue:  old,
		NewValue:  v,
		Timestamp: t.now(),
		Source:    source,
	}, nil
}

func (t *Tree) parameter(path string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.parameterLocked(path)
}

func (t *Tree) parameterLocked(path string) (*Node, error) {
	n := t.findLocked(path)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if n.typ != Parameter {
		return nil, fmt.Errorf("%w: %s", ErrNotParameter, path)
	}
	return n, nil
}

func (t *Tree) containerLocked(path string) (*Node, error) {
	n := t.findLocked(path)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if n.typ == Parameter {
		return nil, fmt.Errorf("%w: %s is a parameter", ErrKindConflict, path)
	}
	return n, nil
}

func (t *Tree) findLocked(path string) *Node {
	if path == "" {
		return t.root
	}
	n := t.root
	for _, part := range strings.Split(path, Separator) {
		if n.children == nil {
			return nil
		}
		n = n.children[part]
		if n == nil {
			return nil
		}
	}
	return n
}

func (t *Tree) ensureLocked(parts []string) (*Node, error) {
	n := t.root
	for _, part := range parts {
		if n.typ == Parameter {
			return nil, fmt.Errorf("%w: %s is a parameter", ErrKindConflict, n.path)
		}
		child, ok := n.children[part]
		if !ok {
			child = newNode(t, part, Container)
			t.attachLocked(n, child)
		}
		n = child
	}
	if n.typ == Parameter {
		return nil, fmt.Errorf("%w: %s is a parameter", ErrKindConflict, n.path)
	}
	return n, nil
}

func (t *Tree) attachLocked(parent, n *Node) {
	n.parent = parent
	parent.children[n.name] = n
	parent.order = append(parent.order, n.name)
	t.repathLocked(n)
}

func (t *Tree) detachLocked(n *Node) {
	parent := n.parent
	if parent == nil {
		return
	}
	delete(parent.children, n.name)
	for i, name := range parent.order {
		if name == n.name {
			parent.order = append(parent.order[:i], parent.order[i+1:]...)
			break
		}
	}
	n.parent = nil
}

func (t *Tree) repathLocked(n *Node) {
	if n.parent == nil {
		n.path = ""
	} else {
		n.path = JoinPath(n.parent.path, n.name)
	}
	for _, name := range n.order {
		t.repathLocked(n.children[name])
	}
}

func (t *Tree) walkLocked(n *Node, fn func(*Node)) {
	if n != t.root {
		fn(n)
	}
	for _, name := range n.order {
		t.walkLocked(n.children[name], fn)
	}
}
