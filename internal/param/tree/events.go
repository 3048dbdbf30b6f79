package tree

import (
	"time"

	"go.uber.org/zap"

	"github.com/dshills/paramtree/internal/param/notify"
	"github.com/dshills/paramtree/internal/param/value"
)

// SourceTree is the source tag for changes made without an explicit source.
const SourceTree = "tree"

// ChangeEvent records a parameter value transition.
type ChangeEvent struct {
	Path      string
	OldValue  value.Value
	NewValue  value.Value
	Timestamp time.Time
	Source    string
	// Batch is set for changes applied through SetValues.
	Batch bool
}

// DependencyEvent lists the parameters that declared a dependency on a path
// that just changed. Dependents are not recomputed.
type DependencyEvent struct {
	Path       string
	Dependents []string
	Source     string
}

// OnChange registers fn for every value change in the tree.
func (t *Tree) OnChange(fn func(ChangeEvent)) *notify.Subscription {
	return t.changes.Subscribe(fn)
}

// OnPathChange registers fn for changes at prefix or beneath it.
func (t *Tree) OnPathChange(prefix string, fn func(ChangeEvent)) *notify.Subscription {
	return t.changes.SubscribeFunc(fn, func(ev ChangeEvent) bool {
		return IsUnder(ev.Path, prefix)
	})
}

// OnDependents registers fn for dependency notifications.
func (t *Tree) OnDependents(fn func(DependencyEvent)) *notify.Subscription {
	return t.dependents.Subscribe(fn)
}

func (t *Tree) publish(ev ChangeEvent) {
	t.changes.Notify(ev)
	t.publishDependents(ev)
}

func (t *Tree) publishDependents(ev ChangeEvent) {
	deps := t.Dependents(ev.Path)
	if len(deps) == 0 {
		return
	}
	t.logger.Debug("dependent parameters need re-evaluation",
		zap.String("path", ev.Path),
		zap.Strings("dependents", deps))
	t.dependents.Notify(DependencyEvent{Path: ev.Path, Dependents: deps, Source: ev.Source})
}
