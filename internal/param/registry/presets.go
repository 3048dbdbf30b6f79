package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/paramtree/internal/param/preset"
	"github.com/dshills/paramtree/internal/param/tree"
	"github.com/dshills/paramtree/internal/param/value"
)

// Store returns the preset store.
func (r *Registry) Store() preset.Store {
	return r.store
}

// Capture returns a preset document holding every parameter of every
// registered system.
func (r *Registry) Capture(name string) *preset.Document {
	doc := preset.NewDocument(name, r.now())
	for _, st := range r.Systems() {
		for path, v := range r.All(st) {
			doc.Set(st.String(), path, v)
		}
	}
	return doc
}

// SavePreset captures every registered system under name.
func (r *Registry) SavePreset(ctx context.Context, name string) error {
	if err := preset.ValidateName(name); err != nil {
		return err
	}
	doc := r.Capture(name)
	if err := r.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("save preset %q: %w", name, err)
	}
	r.presetsSaved.Add(1)
	r.logger.Info("preset saved", zap.String("preset", name), zap.Int("parameters", doc.Len()))
	return nil
}

// LoadPreset restores a saved preset. Unregistered systems named in the
// preset are created empty and registered; parameters missing from a tree
// are created with the stored value as their default. Parameters already
// holding the stored value are left untouched. Failures do not stop the
// load; the error joins all of them.
func (r *Registry) LoadPreset(ctx context.Context, name string) error {
	doc, err := r.store.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("load preset %q: %w", name, err)
	}
	if err := r.Apply(doc); err != nil {
		return fmt.Errorf("load preset %q: %w", name, err)
	}
	r.presetsLoaded.Add(1)
	r.logger.Info("preset loaded", zap.String("preset", name), zap.Int("parameters", doc.Len()))
	return nil
}

// Apply writes the values of doc into the registered systems.
func (r *Registry) Apply(doc *preset.Document) error {
	var errs []error
	for _, sysName := range doc.SystemNames() {
		st, err := ParseSystemType(sysName)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		t, err := r.ensureSystem(st)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		updates := make(map[string]value.Value)
		for path, v := range doc.Systems[sysName] {
			if !t.HasParameter(path) {
				if _, err := t.CreateParameter(path, v); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", st, err))
				}
				continue
			}
			if !t.Value(path).Equal(v) {
				updates[path] = v
			}
		}
		if len(updates) == 0 {
			continue
		}
		r.batchUpdates.Add(1)
		if err := t.SetValuesFrom(SourcePreset, updates); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st, err))
		}
	}
	return errors.Join(errs...)
}

// Presets lists the saved presets.
func (r *Registry) Presets(ctx context.Context) ([]string, error) {
	return r.store.List(ctx)
}

// DeletePreset removes a saved preset.
func (r *Registry) DeletePreset(ctx context.Context, name string) error {
	if err := r.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete preset %q: %w", name, err)
	}
	r.logger.Info("preset deleted", zap.String("preset", name))
	return nil
}

func (r *Registry) ensureSystem(st SystemType) (*tree.Tree, error) {
	if t := r.System(st); t != nil {
		return t, nil
	}
	t := tree.New(tree.WithName(st.String()), tree.WithLogger(r.logger))
	if err := r.Register(st, t); err != nil {
		// lost a race with another registration
		if errors.Is(err, ErrSystemAlreadyRegistered) {
			return r.System(st), nil
		}
		return nil, err
	}
	return t, nil
}
