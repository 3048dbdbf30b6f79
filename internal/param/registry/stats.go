package registry

import (
	"fmt"
	"strings"
	"time"
)

// Stats contains registry statistics.
type Stats struct {
	Systems         int
	Parameters      int
	Dependencies    int
	ChangesNotified int64
	BatchUpdates    int64
	PresetsSaved    int64
	PresetsLoaded   int64
	LastChange      time.Time
}

// Stats returns a snapshot of registry statistics.
func (r *Registry) Stats() Stats {
	s := Stats{
		ChangesNotified: r.changesNotified.Load(),
		BatchUpdates:    r.batchUpdates.Load(),
		PresetsSaved:    r.presetsSaved.Load(),
		PresetsLoaded:   r.presetsLoaded.Load(),
	}
	if ns := r.lastChange.Load(); ns != 0 {
		s.LastChange = time.Unix(0, ns)
	}
	systems := r.Systems()
	s.Systems = len(systems)
	for _, st := range systems {
		if t := r.System(st); t != nil {
			s.Parameters += len(t.ParameterPaths())
		}
	}
	r.mu.RLock()
	for _, deps := range r.deps {
		s.Dependencies += len(deps)
	}
	r.mu.RUnlock()
	return s
}

// StatusReport renders a human-readable summary of the registry.
func (r *Registry) StatusReport() string {
	s := r.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "Parameter registry: %d systems, %d parameters\n", s.Systems, s.Parameters)
	for _, st := range r.Systems() {
		t := r.System(st)
		if t == nil {
			continue
		}
		fmt.Fprintf(&b, "  %-12s %3d parameters", st, len(t.ParameterPaths()))
		if deps := r.SystemDependencies(st); len(deps) > 0 {
			names := make([]string, len(deps))
			for i, d := range deps {
				names[i] = d.String()
			}
			fmt.Fprintf(&b, "  depends on %s", strings.Join(names, ", "))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Changes notified: %d\n", s.ChangesNotified)
	fmt.Fprintf(&b, "Batch updates: %d\n", s.BatchUpdates)
	fmt.Fprintf(&b, "Presets saved/loaded: %d/%d\n", s.PresetsSaved, s.PresetsLoaded)
	if report := r.ValidationReport(); len(report) > 0 {
		fmt.Fprintf(&b, "Validation errors: %d\n", len(report))
		for _, msg := range report {
			fmt.Fprintf(&b, "  %s\n", msg)
		}
	} else {
		b.WriteString("Validation: ok\n")
	}
	return b.String()
}
