package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/paramtree/internal/param/registry"
	"github.com/dshills/paramtree/internal/param/value"
)

// SetParameter writes a value by fully-qualified path.
func (m *Manager) SetParameter(full string, v value.Value) error {
	return m.registry.SetByFullPath(full, v)
}

// Parameter reads a value by fully-qualified path. Unknown paths yield the
// zero Value.
func (m *Manager) Parameter(full string) value.Value {
	return m.registry.GetByFullPath(full)
}

// HasParameter reports whether full names an existing parameter.
func (m *Manager) HasParameter(full string) bool {
	return m.registry.HasByFullPath(full)
}

// SetParameters writes every entry in path order. Failures do not stop
// later writes; they are joined into the returned error.
func (m *Manager) SetParameters(values map[string]value.Value) error {
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var errs []error
	for _, p := range paths {
		if err := m.registry.SetByFullPath(p, values[p]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Parameters reads the given fully-qualified paths. Paths that do not name
// a parameter are omitted.
func (m *Manager) Parameters(paths ...string) map[string]value.Value {
	out := make(map[string]value.Value, len(paths))
	for _, p := range paths {
		if v := m.registry.GetByFullPath(p); v.IsValid() {
			out[p] = v
		}
	}
	return out
}

// AddParameterDependency records that full depends on dependency. The
// dependency may be given as a fully-qualified path of the same system or
// as a path local to it.
func (m *Manager) AddParameterDependency(full, dependency string) error {
	st, path, err := registry.ParseFullPath(full)
	if err != nil {
		return err
	}
	t := m.registry.System(st)
	if t == nil {
		return fmt.Errorf("%w: %s", registry.ErrSystemNotRegistered, st)
	}
	return t.AddDependency(path, localPath(st, dependency))
}

// RemoveParameterDependency drops a dependency recorded by
// AddParameterDependency.
func (m *Manager) RemoveParameterDependency(full, dependency string) error {
	st, path, err := registry.ParseFullPath(full)
	if err != nil {
		return err
	}
	t := m.registry.System(st)
	if t == nil {
		return fmt.Errorf("%w: %s", registry.ErrSystemNotRegistered, st)
	}
	return t.RemoveDependency(path, localPath(st, dependency))
}

// ParameterDependencies returns the fully-qualified dependencies of full.
func (m *Manager) ParameterDependencies(full string) []string {
	st, path, err := registry.ParseFullPath(full)
	if err != nil {
		return nil
	}
	t := m.registry.System(st)
	if t == nil {
		return nil
	}
	deps := t.Dependencies(path)
	out := make([]string, len(deps))
	for i, d := range deps {
		out[i] = registry.BuildFullPath(st, d)
	}
	return out
}

func localPath(st registry.SystemType, p string) string {
	if dst, local, err := registry.ParseFullPath(p); err == nil && dst == st {
		return local
	}
	return p
}

// ScheduleParameterChange queues a parameter-change task for full using the
// configured batching strategy.
func (m *Manager) ScheduleParameterChange(full string, from, to value.Value) (string, error) {
	return m.coord.SubmitParameterChange(full, from, to, m.strategy())
}

func (m *Manager) ScheduleGeometryRebuild(target string) (string, error) {
	return m.coord.ScheduleGeometryRebuild(target)
}

func (m *Manager) ScheduleRenderingUpdate(target string) (string, error) {
	return m.coord.ScheduleRenderingUpdate(target)
}

func (m *Manager) ScheduleLightingUpdate() (string, error) {
	return m.coord.ScheduleLightingUpdate()
}

func (m *Manager) ScheduleDisplayUpdate() (string, error) {
	return m.coord.ScheduleDisplayUpdate()
}

func (m *Manager) SchedulePerformanceUpdate() (string, error) {
	return m.coord.SchedulePerformanceUpdate()
}

// Flush releases every open batch group.
func (m *Manager) Flush() { m.coord.Flush() }

// WaitIdle blocks until the coordinator has no tasks left.
func (m *Manager) WaitIdle(ctx context.Context) error {
	return m.coord.WaitIdle(ctx)
}

// SavePreset stores the current values under name and makes it the active
// preset.
func (m *Manager) SavePreset(ctx context.Context, name string) error {
	if err := m.registry.SavePreset(ctx, name); err != nil {
		return err
	}
	m.setActive(name)
	m.publish(EventPresetSaved, "", name)
	return nil
}

// LoadPreset restores name and makes it the active preset. With
// WatchPresets, later edits to its file are reloaded.
func (m *Manager) LoadPreset(ctx context.Context, name string) error {
	if err := m.registry.LoadPreset(ctx, name); err != nil {
		return err
	}
	m.setActive(name)
	m.publish(EventPresetLoaded, "", name)
	return nil
}

// Presets lists the stored preset names.
func (m *Manager) Presets(ctx context.Context) ([]string, error) {
	return m.registry.Presets(ctx)
}

// DeletePreset removes a stored preset.
func (m *Manager) DeletePreset(ctx context.Context, name string) error {
	if err := m.registry.DeletePreset(ctx, name); err != nil {
		return err
	}
	m.mu.Lock()
	if m.active == name {
		m.active = ""
	}
	m.mu.Unlock()
	return nil
}

// ActivePreset returns the last saved or loaded preset name.
func (m *Manager) ActivePreset() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) setActive(name string) {
	m.mu.Lock()
	m.active = name
	m.mu.Unlock()
}

// ValidateAll reports whether every registered system is valid.
func (m *Manager) ValidateAll() bool { return m.registry.ValidateAll() }

// ValidationErrors returns the validation failures of every system.
func (m *Manager) ValidationErrors() []string { return m.registry.ValidationReport() }

// Report summarizes parameter and update activity.
type Report struct {
	TotalParameters     int
	ActiveSystems       int
	IntegratedSystems   int
	PendingUpdates      int
	ExecutedUpdates     uint64
	FailedUpdates       uint64
	AverageUpdateTime   time.Duration
	BatchGroups         uint64
	AverageBatchSize    float64
	DependencyConflicts uint64
	Syncs               int64
	SyncErrors          int64
	Pushes              int64
	PushErrors          int64
	Uptime              time.Duration
}

// Report returns the current performance report.
func (m *Manager) Report() Report {
	rs := m.registry.Stats()
	cm := m.coord.Metrics()
	return Report{
		TotalParameters:     rs.Parameters,
		ActiveSystems:       rs.Systems,
		IntegratedSystems:   len(m.IntegratedSystems()),
		PendingUpdates:      cm.Pending,
		ExecutedUpdates:     cm.TasksExecuted,
		FailedUpdates:       cm.TasksFailed,
		AverageUpdateTime:   cm.AverageExecution,
		BatchGroups:         cm.BatchGroups,
		AverageBatchSize:    cm.AverageBatchSize,
		DependencyConflicts: cm.DependencyConflicts,
		Syncs:               m.syncs.Load(),
		SyncErrors:          m.syncErrors.Load(),
		Pushes:              m.pushes.Load(),
		PushErrors:          m.pushErrors.Load(),
		Uptime:              m.Uptime(),
	}
}

// ResetMetrics clears the coordinator and manager counters.
func (m *Manager) ResetMetrics() {
	m.coord.ResetMetrics()
	m.syncs.Store(0)
	m.syncErrors.Store(0)
	m.pushes.Store(0)
	m.pushErrors.Store(0)
}

// Diagnostics returns a human-readable dump of integration state.
func (m *Manager) Diagnostics() string {
	var b strings.Builder
	cfg := m.Config()

	state := "stopped"
	switch {
	case m.IsClosed():
		state = "closed"
	case m.Running() && m.coord.Paused():
		state = "paused"
	case m.Running():
		state = "running"
	}
	fmt.Fprintf(&b, "Parameter integration: %s, up %s\n", state, m.Uptime().Round(time.Millisecond))

	b.WriteString("Systems:\n")
	for _, st := range registry.AllSystems() {
		s := m.Status(st)
		if s == NotIntegrated && m.registry.System(st) == nil {
			continue
		}
		fmt.Fprintf(&b, "  %-12s %s", st, s)
		if br, ok := m.Bridge(st); ok {
			fmt.Fprintf(&b, " via %q", br.Name())
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "Auto sync: %s", onOff(cfg.AutoSync))
	if cfg.AutoSync {
		fmt.Fprintf(&b, " every %s", cfg.SyncInterval)
	}
	fmt.Fprintf(&b, "\nBidirectional: %s\nSmart batching: %s\nDependency tracking: %s\n",
		onOff(cfg.Bidirectional), onOff(cfg.SmartBatching), onOff(cfg.DependencyTracking))
	if p := m.ActivePreset(); p != "" {
		fmt.Fprintf(&b, "Active preset: %s\n", p)
	}

	if cfg.PerformanceMonitoring {
		r := m.Report()
		fmt.Fprintf(&b, "Updates: %d executed, %d failed, %d pending\n",
			r.ExecutedUpdates, r.FailedUpdates, r.PendingUpdates)
		fmt.Fprintf(&b, "Average update time: %s\n", r.AverageUpdateTime)
		fmt.Fprintf(&b, "Batch groups: %d (average size %.1f)\n", r.BatchGroups, r.AverageBatchSize)
		fmt.Fprintf(&b, "Dependency conflicts: %d\n", r.DependencyConflicts)
		fmt.Fprintf(&b, "Syncs: %d (%d failed), pushes: %d (%d failed)\n",
			r.Syncs, r.SyncErrors, r.Pushes, r.PushErrors)
	}

	b.WriteString(m.registry.StatusReport())
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// Health returns the health status of the integration components.
func (m *Manager) Health() HealthStatus {
	h := HealthStatus{
		Status:     StatusHealthy,
		Uptime:     m.Uptime(),
		Components: make(map[string]ComponentHealth),
	}

	switch {
	case m.IsClosed():
		h.Components["coordinator"] = ComponentHealth{Status: StatusUnhealthy, Message: "closed"}
	case !m.Running():
		h.Components["coordinator"] = ComponentHealth{Status: StatusDegraded, Message: "not started"}
	case m.coord.Paused():
		h.Components["coordinator"] = ComponentHealth{Status: StatusDegraded, Message: "paused"}
	default:
		cm := m.coord.Metrics()
		h.Components["coordinator"] = ComponentHealth{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d pending, %d executed", cm.Pending, cm.TasksExecuted),
		}
	}

	if errs := m.registry.ValidationReport(); len(errs) > 0 {
		h.Components["registry"] = ComponentHealth{
			Status:    StatusDegraded,
			Message:   fmt.Sprintf("%d validation errors", len(errs)),
			LastError: errs[0],
		}
	} else {
		h.Components["registry"] = ComponentHealth{Status: StatusHealthy, Message: "valid"}
	}

	m.mu.RLock()
	lastSync := m.lastSync
	m.mu.RUnlock()
	if lastSync != nil {
		h.Components["sync"] = ComponentHealth{Status: StatusDegraded, Message: "last sync failed", LastError: lastSync.Error()}
	} else {
		h.Components["sync"] = ComponentHealth{Status: StatusHealthy, Message: fmt.Sprintf("%d syncs", m.syncs.Load())}
	}

	for _, st := range registry.AllSystems() {
		name := "bridge:" + st.String()
		if e := m.entry(st); e != nil {
			state, failures, err := e.breaker.snapshot()
			ch := ComponentHealth{Status: StatusHealthy, Message: e.bridge.Name()}
			switch {
			case state == CircuitOpen:
				ch.Status, ch.Message = StatusUnhealthy, "circuit open"
			case !e.bridge.Available():
				ch.Status, ch.Message = StatusUnhealthy, "unavailable"
			case failures > 0:
				ch.Status, ch.Message = StatusDegraded, fmt.Sprintf("%d consecutive push failures", failures)
			}
			if err != nil {
				ch.LastError = err.Error()
			}
			h.Components[name] = ch
			h.Integrated++
		} else if m.Status(st) == IntegrationError {
			h.Components[name] = ComponentHealth{Status: StatusUnhealthy, Message: "integration failed"}
		}
	}

	for _, c := range h.Components {
		h.Status = worse(h.Status, c.Status)
	}
	return h
}
