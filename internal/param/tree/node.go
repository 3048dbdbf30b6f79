package tree

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/paramtree/internal/param/value"
)

// NodeType identifies the variant of a Node.
type NodeType uint8

const (
	// Container is a pure namespace node.
	Container NodeType = iota
	// Parameter is a leaf holding a typed value.
	Parameter
	// Group is a container carrying presentation metadata.
	Group
)

// String returns the node type name.
func (t NodeType) String() string {
	switch t {
	case Container:
		return "container"
	case Parameter:
		return "parameter"
	case Group:
		return "group"
	default:
		return "unknown"
	}
}

// Node is an element of a parameter tree.
//
// Structure and metadata are guarded by the owning tree's lock. The value of
// a parameter node is guarded by its own lock so that parameters do not
// contend with each other.
type Node struct {
	tree   *Tree
	name   string
	typ    NodeType
	parent *Node
	path   string

	children map[string]*Node
	order    []string

	description string
	tags        []string
	deps        map[string]struct{}

	collapsed bool
	icon      string

	param *paramState
}

type paramState struct {
	mu          sync.RWMutex
	current     value.Value
	def         value.Value
	min         value.Value
	max         value.Value
	allowRetype bool
}

func newNode(t *Tree, name string, typ NodeType) *Node {
	n := &Node{tree: t, name: name, typ: typ}
	if typ != Parameter {
		n.children = make(map[string]*Node)
	}
	return n
}

// Name returns the node's own segment name.
func (n *Node) Name() string { return n.name }

// Type returns the node variant.
func (n *Node) Type() NodeType {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.typ
}

// IsParameter reports whether the node holds a value.
func (n *Node) IsParameter() bool { return n.param != nil }

// Path returns the dot-joined path from the root.
func (n *Node) Path() string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.path
}

// Parent returns the parent node, or nil for the root.
func (n *Node) Parent() *Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.parent
}

// Child returns the named child, or nil.
func (n *Node) Child(name string) *Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.children[name]
}

// Children returns the children in insertion order.
func (n *Node) Children() []*Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	out := make([]*Node, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.children[name])
	}
	return out
}

// Description returns the node description.
func (n *Node) Description() string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.description
}

// Tags returns a copy of the node tags.
func (n *Node) Tags() []string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return append([]string(nil), n.tags...)
}

// HasTag reports whether the node carries tag.
func (n *Node) HasTag(tag string) bool {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.hasTagLocked(tag)
}

func (n *Node) hasTagLocked(tag string) bool {
	for _, t := range n.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Collapsed reports the group's collapsed flag.
func (n *Node) Collapsed() bool {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.collapsed
}

// SetCollapsed sets the group's collapsed flag.
func (n *Node) SetCollapsed(c bool) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.collapsed = c
}

// Icon returns the group's icon name.
func (n *Node) Icon() string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.icon
}

// SetIcon sets the group's icon name.
func (n *Node) SetIcon(icon string) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.icon = icon
}

// Value returns the current value of a parameter node, or the zero Value for
// other node types.
func (n *Node) Value() value.Value {
	if n.param == nil {
		return value.Value{}
	}
	n.param.mu.RLock()
	defer n.param.mu.RUnlock()
	return n.param.current
}

// Default returns the default value of a parameter node.
func (n *Node) Default() value.Value {
	if n.param == nil {
		return value.Value{}
	}
	n.param.mu.RLock()
	defer n.param.mu.RUnlock()
	return n.param.def
}

// Range returns the configured bounds. Unset bounds are zero Values.
func (n *Node) Range() (min, max value.Value) {
	if n.param == nil {
		return value.Value{}, value.Value{}
	}
	n.param.mu.RLock()
	defer n.param.mu.RUnlock()
	return n.param.min, n.param.max
}

// Dependencies returns the sorted dependency paths of a parameter node.
func (n *Node) Dependencies() []string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.depsLocked()
}

func (n *Node) depsLocked() []string {
	out := make([]string, 0, len(n.deps))
	for d := range n.deps {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// validate checks v against the parameter's kind and bounds. The caller holds
// p.mu.
func (p *paramState) validate(path string, v value.Value) error {
	if !v.IsValid() {
		return &ValidationError{Path: path, Message: "value is empty", Value: v, Code: CodeTypeMismatch}
	}
	if !p.allowRetype && v.Kind() != p.def.Kind() {
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("expected %s, got %s", p.def.Kind(), v.Kind()),
			Value:   v,
			Code:    CodeTypeMismatch,
		}
	}
	f, ok := v.Numeric()
	if !ok {
		return nil
	}
	if lo, ok := p.min.Numeric(); ok && f < lo {
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value must be >= %s", p.min),
			Value:   v,
			Code:    CodeOutOfRange,
		}
	}
	if hi, ok := p.max.Numeric(); ok && f > hi {
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value must be <= %s", p.max),
			Value:   v,
			Code:    CodeOutOfRange,
		}
	}
	return nil
}

func checkBounds(path string, min, max value.Value) error {
	lo, hasLo := min.Numeric()
	hi, hasHi := max.Numeric()
	if min.IsValid() && !hasLo || max.IsValid() && !hasHi {
		return &ValidationError{Path: path, Message: "bounds must be numeric", Code: CodeInvalidBounds}
	}
	if hasLo && hasHi && lo > hi {
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("minimum %s exceeds maximum %s", min, max),
			Code:    CodeInvalidBounds,
		}
	}
	return nil
}
