package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/paramtree/internal/param/coordinator"
	"github.com/dshills/paramtree/internal/param/notify"
	"github.com/dshills/paramtree/internal/param/preset"
	"github.com/dshills/paramtree/internal/param/registry"
	"github.com/dshills/paramtree/internal/param/tree"
	"github.com/dshills/paramtree/internal/param/value"
)

// SourceBridge tags registry writes that originate from a bridge. Such
// changes are never pushed back to the bridge they came from.
const SourceBridge = "bridge"

// Manager keeps collaborator bridges, the parameter registry and the update
// coordinator in step.
//
// Registry changes become coordinator tasks: a parameter-change task that
// pushes the value to the owning bridge, parameter-change tasks for the
// dependents of the changed parameter, and refresh tasks for the changed
// system and every system that depends on it. Bridges are pulled into the
// registry on Sync and, with AutoSync, periodically.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu sync.RWMutex

	cfg      Config
	registry *registry.Registry
	coord    *coordinator.Coordinator
	bridges  map[registry.SystemType]*bridgeEntry
	status   map[registry.SystemType]SystemStatus
	active   string
	lastSync error

	events *notify.Notifier[Event]
	logger *zap.Logger
	now    func() time.Time

	// Background work
	runCtx    context.Context
	runCancel context.CancelFunc
	changeSub *notify.Subscription
	watcher   *preset.Watcher
	syncStop  chan struct{}
	interval  chan time.Duration
	wg        sync.WaitGroup

	// Lifecycle
	started  atomic.Bool
	closed   atomic.Bool
	shutdown chan struct{}

	// Metrics
	startTime  time.Time
	syncs      atomic.Int64
	syncErrors atomic.Int64
	pushes     atomic.Int64
	pushErrors atomic.Int64
}

type bridgeEntry struct {
	bridge  Bridge
	breaker *circuitBreaker
}

// Option configures a Manager instance.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRegistry sets the registry. The default is registry.New with the
// default systems.
func WithRegistry(r *registry.Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithCoordinator sets the coordinator. The manager installs its task
// handlers on it and shuts it down on Close.
func WithCoordinator(c *coordinator.Coordinator) Option {
	return func(m *Manager) {
		m.coord = c
	}
}

// WithClock overrides the event and breaker time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager. Call Start to begin coordinating updates
// and Close when done.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		bridges:  make(map[registry.SystemType]*bridgeEntry),
		status:   make(map[registry.SystemType]SystemStatus),
		logger:   zap.NewNop(),
		now:      time.Now,
		interval: make(chan time.Duration, 1),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = registry.New(registry.WithLogger(m.logger))
	}
	if m.coord == nil {
		m.coord = coordinator.New(coordinator.DefaultConfig(), coordinator.WithLogger(m.logger))
	}
	m.events = notify.New[Event](notify.WithLogger(m.logger))
	m.startTime = m.now()
	return m, nil
}

// Registry returns the managed registry.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// Coordinator returns the managed coordinator.
func (m *Manager) Coordinator() *coordinator.Coordinator { return m.coord }

// Start installs the task handlers, starts the coordinator and begins
// translating registry changes into tasks. Background loops stop when ctx
// is cancelled or the manager is closed.
func (m *Manager) Start(ctx context.Context) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	m.coord.SetHandler(coordinator.TypeParameterChange, m.handleParameterChange)
	for _, t := range refreshTypes {
		m.coord.SetHandler(t, m.handleRefresh)
	}
	if err := m.coord.Start(); err != nil && !errors.Is(err, coordinator.ErrAlreadyRunning) {
		m.started.Store(false)
		return fmt.Errorf("start coordinator: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.runCtx, m.runCancel = runCtx, cancel
	m.changeSub = m.registry.OnSystemChange(m.onSystemChange)
	cfg := m.cfg
	m.mu.Unlock()

	if cfg.AutoSync {
		m.startSyncLoop(cfg.SyncInterval)
	}
	if cfg.WatchPresets {
		if err := m.startWatcher(cfg.WatchDebounce); err != nil {
			m.logger.Warn("preset watching disabled", zap.Error(err))
		}
	}

	m.logger.Info("integration started",
		zap.Int("bridges", len(m.IntegratedSystems())),
		zap.Bool("auto_sync", cfg.AutoSync),
		zap.Bool("bidirectional", cfg.Bidirectional))
	m.publish(EventStarted, "", fmt.Sprintf("%d systems integrated", len(m.IntegratedSystems())))
	return nil
}

// Running reports whether Start succeeded and Close has not been called.
func (m *Manager) Running() bool {
	return m.started.Load() && !m.closed.Load()
}

// Close stops background work, shuts the coordinator down and releases
// resources. ctx bounds the wait for in-flight tasks.
//
// It is safe to call Close multiple times.
func (m *Manager) Close(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	close(m.shutdown)
	m.publish(EventStopping, "", "")

	m.mu.Lock()
	sub, w, stop, cancel := m.changeSub, m.watcher, m.syncStop, m.runCancel
	m.changeSub, m.watcher, m.syncStop = nil, nil, nil
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if stop != nil {
		close(stop)
	}
	if cancel != nil {
		cancel()
	}

	var errs []error
	if w != nil {
		if err := w.Close(); err != nil && !errors.Is(err, preset.ErrWatcherClosed) {
			errs = append(errs, fmt.Errorf("close preset watcher: %w", err))
		}
	}
	m.wg.Wait()

	if err := m.coord.Shutdown(ctx); err != nil && !errors.Is(err, coordinator.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("shutdown coordinator: %w", err))
	}

	m.logger.Info("integration stopped", zap.Duration("uptime", m.Uptime()))
	m.publish(EventStopped, "", m.Uptime().String())
	m.events.Close()
	return errors.Join(errs...)
}

// IsClosed returns true if the manager has been closed.
func (m *Manager) IsClosed() bool {
	return m.closed.Load()
}

// ShutdownChan returns a channel that is closed when shutdown begins.
func (m *Manager) ShutdownChan() <-chan struct{} {
	return m.shutdown
}

// Uptime returns how long the manager has existed.
func (m *Manager) Uptime() time.Duration {
	return m.now().Sub(m.startTime)
}

// Config returns the current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// SetConfig replaces the configuration. On a running manager the sync loop
// is started, stopped or re-timed to match.
func (m *Manager) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	prev := m.cfg
	m.cfg = cfg
	m.mu.Unlock()

	if m.Running() {
		switch {
		case cfg.AutoSync && !prev.AutoSync:
			m.startSyncLoop(cfg.SyncInterval)
		case !cfg.AutoSync && prev.AutoSync:
			m.stopSyncLoop()
		case cfg.AutoSync && cfg.SyncInterval != prev.SyncInterval:
			m.retime(cfg.SyncInterval)
		}
	}
	m.publish(EventConfigChanged, "", "")
	return nil
}

// EnableAutoSync toggles the periodic sync.
func (m *Manager) EnableAutoSync(enabled bool) error {
	cfg := m.Config()
	cfg.AutoSync = enabled
	return m.SetConfig(cfg)
}

// SetSyncInterval changes the period of the automatic sync.
func (m *Manager) SetSyncInterval(d time.Duration) error {
	cfg := m.Config()
	cfg.SyncInterval = d
	return m.SetConfig(cfg)
}

// Integrate connects b to the registry. The bridge's system tree is
// created if needed, parameters the tree lacks are created from the bridge
// values and the remaining bridge values are pulled in. A later Integrate
// for the same system replaces the earlier bridge.
func (m *Manager) Integrate(b Bridge) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if b == nil {
		return fmt.Errorf("%w: nil bridge", ErrInvalidConfiguration)
	}
	st := b.System()
	if !st.Valid() {
		return fmt.Errorf("integrate %s: %w: %s", b.Name(), registry.ErrUnknownSystem, st)
	}
	m.setStatus(st, Integrating)

	if !b.Available() {
		m.setStatus(st, IntegrationError)
		m.publish(EventSystemError, st.String(), fmt.Sprintf("bridge %q unavailable", b.Name()))
		return fmt.Errorf("integrate %s: %w", b.Name(), ErrBridgeUnavailable)
	}
	if m.registry.System(st) == nil {
		t := tree.New(tree.WithName(st.String()), tree.WithLogger(m.logger))
		if err := m.registry.Register(st, t); err != nil && !errors.Is(err, registry.ErrSystemAlreadyRegistered) {
			m.setStatus(st, IntegrationError)
			return fmt.Errorf("integrate %s: %w", b.Name(), err)
		}
	}
	if _, err := m.pull(context.Background(), b); err != nil {
		m.setStatus(st, IntegrationError)
		m.publish(EventSystemError, st.String(), err.Error())
		return fmt.Errorf("integrate %s: %w", b.Name(), err)
	}

	m.mu.Lock()
	m.bridges[st] = &bridgeEntry{bridge: b, breaker: newCircuitBreaker(m.cfg.Breaker, m.now)}
	m.status[st] = Integrated
	m.mu.Unlock()

	m.logger.Info("system integrated",
		zap.Stringer("system", st),
		zap.String("bridge", b.Name()),
		zap.Int("parameters", len(b.ParameterPaths())))
	m.publish(EventSystemIntegrated, st.String(), b.Name())
	return nil
}

// Remove disconnects the bridge of system st. The system's tree stays in
// the registry.
func (m *Manager) Remove(st registry.SystemType) error {
	m.mu.Lock()
	e, ok := m.bridges[st]
	if ok {
		delete(m.bridges, st)
		m.status[st] = NotIntegrated
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotIntegrated, st)
	}
	m.publish(EventSystemRemoved, st.String(), e.bridge.Name())
	return nil
}

// Status returns the integration status of st.
func (m *Manager) Status(st registry.SystemType) SystemStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status[st]
}

// IsIntegrated reports whether a bridge is connected for st.
func (m *Manager) IsIntegrated(st registry.SystemType) bool {
	return m.Status(st) == Integrated
}

// IntegratedSystems returns the systems with a connected bridge.
func (m *Manager) IntegratedSystems() []registry.SystemType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]registry.SystemType, 0, len(m.bridges))
	for st := range m.bridges {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bridge returns the bridge connected for st.
func (m *Manager) Bridge(st registry.SystemType) (Bridge, bool) {
	e := m.entry(st)
	if e == nil {
		return nil, false
	}
	return e.bridge, true
}

func (m *Manager) setStatus(st registry.SystemType, s SystemStatus) {
	m.mu.Lock()
	m.status[st] = s
	m.mu.Unlock()
}

func (m *Manager) entry(st registry.SystemType) *bridgeEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bridges[st]
}

func (m *Manager) entries() []*bridgeEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*bridgeEntry, 0, len(m.bridges))
	for _, e := range m.bridges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].bridge.System() < out[j].bridge.System() })
	return out
}

// Sync pulls every connected bridge into the registry concurrently.
func (m *Manager) Sync(ctx context.Context) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	entries := m.entries()
	errs := make([]error, len(entries))
	updated := make([]int, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			updated[i], errs[i] = m.pull(gctx, e.bridge)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.syncs.Add(1)
	err := errors.Join(errs...)
	m.mu.Lock()
	m.lastSync = err
	m.mu.Unlock()
	if err != nil {
		m.syncErrors.Add(1)
		m.publish(EventSyncFailed, "", err.Error())
		return err
	}
	total := 0
	for _, n := range updated {
		total += n
	}
	if total > 0 {
		m.logger.Debug("bridges synced", zap.Int("updated", total))
		m.publish(EventSyncCompleted, "", fmt.Sprintf("%d parameters updated", total))
	}
	return nil
}

// pull copies the bridge values into the registry and returns the number
// of values that changed.
func (m *Manager) pull(ctx context.Context, b Bridge) (int, error) {
	if !b.Available() {
		return 0, fmt.Errorf("%s: %w", b.Name(), ErrBridgeUnavailable)
	}
	st := b.System()
	t := m.registry.System(st)
	if t == nil {
		return 0, fmt.Errorf("%w: %s", registry.ErrSystemNotRegistered, st)
	}

	var errs []error
	changed := make(map[string]value.Value)
	for _, p := range b.ParameterPaths() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		v := b.Value(p)
		if !v.IsValid() {
			continue
		}
		if !t.HasParameter(p) {
			if _, err := t.CreateParameter(p, v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			}
			continue
		}
		if t.Value(p).Equal(v) {
			continue
		}
		changed[p] = v
	}
	if len(changed) > 0 {
		if err := m.registry.SetManyFrom(SourceBridge, st, changed); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return len(changed), errors.Join(errs...)
}

// Push writes registry values that differ from the bridges' values to
// every connected bridge.
func (m *Manager) Push(ctx context.Context) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	entries := m.entries()
	errs := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			st := e.bridge.System()
			var perr []error
			for _, p := range e.bridge.ParameterPaths() {
				if err := gctx.Err(); err != nil {
					return err
				}
				v := m.registry.Get(st, p)
				if !v.IsValid() || e.bridge.Value(p).Equal(v) {
					continue
				}
				if err := m.push(gctx, e, p, v); err != nil {
					perr = append(perr, err)
				}
			}
			errs[i] = errors.Join(perr...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// push writes one value through the bridge's breaker with retries.
func (m *Manager) push(ctx context.Context, e *bridgeEntry, path string, v value.Value) error {
	cfg := m.Config()
	err := e.breaker.execute(func() error {
		return retry(ctx, cfg.Retry, func() error { return e.bridge.SetValue(path, v) })
	})
	m.pushes.Add(1)
	if err == nil {
		return nil
	}

	m.pushErrors.Add(1)
	st := e.bridge.System()
	full := registry.BuildFullPath(st, path)
	m.logger.Warn("bridge push failed",
		zap.String("bridge", e.bridge.Name()),
		zap.String("path", full),
		zap.Error(err))
	m.publish(EventPushFailed, st.String(), fmt.Sprintf("%s: %v", full, err))
	return fmt.Errorf("push %s to %s: %w", full, e.bridge.Name(), err)
}

// Config-driven strategy for parameter-change tasks.
func (m *Manager) strategy() coordinator.Strategy {
	if m.Config().SmartBatching {
		return coordinator.Batched
	}
	return coordinator.Immediate
}

// onSystemChange turns one registry change into coordinator tasks.
func (m *Manager) onSystemChange(c registry.SystemChange) {
	if m.closed.Load() {
		return
	}
	cfg := m.Config()
	strategy := m.strategy()
	integrated := m.entry(c.System) != nil

	if integrated && c.Source != SourceBridge {
		_, err := m.coord.SubmitParameterChange(c.FullPath(), c.OldValue, c.NewValue, strategy)
		m.submitted("parameter change", c.FullPath(), err)
	}
	if integrated && cfg.DependencyTracking {
		if t := m.registry.System(c.System); t != nil {
			for _, dep := range t.Dependents(c.Path) {
				full := registry.BuildFullPath(c.System, dep)
				v := t.Value(dep)
				_, err := m.coord.SubmitParameterChange(full, v, v, strategy)
				m.submitted("dependent change", full, err)
			}
		}
	}

	// Refreshes target the system token so they never share a target with
	// parameter-change tasks in a batch group.
	m.scheduleRefresh(c.System, c.System.String())
	for _, st := range m.registry.DependentSystems(c.System) {
		m.scheduleRefresh(st, st.String())
	}
}

func (m *Manager) scheduleRefresh(st registry.SystemType, target string) {
	var err error
	switch st {
	case registry.Geometry, registry.Mesh:
		_, err = m.coord.ScheduleGeometryRebuild(target)
	case registry.Rendering:
		_, err = m.coord.ScheduleRenderingUpdate(target)
	case registry.Lighting:
		_, err = m.coord.ScheduleLightingUpdate()
	case registry.Display:
		_, err = m.coord.ScheduleDisplayUpdate()
	case registry.Performance:
		_, err = m.coord.SchedulePerformanceUpdate()
	default:
		return
	}
	m.submitted("refresh", target, err)
}

func (m *Manager) submitted(kind, target string, err error) {
	if err != nil {
		m.logger.Debug("task not scheduled",
			zap.String("kind", kind),
			zap.String("target", target),
			zap.Error(err))
	}
}

var refreshTypes = []coordinator.TaskType{
	coordinator.TypeGeometryRebuild,
	coordinator.TypeRenderingUpdate,
	coordinator.TypeLightingUpdate,
	coordinator.TypeDisplayUpdate,
	coordinator.TypePerformanceUpdate,
}

// handleParameterChange pushes the task value to the owning bridge and
// notifies it.
func (m *Manager) handleParameterChange(ctx context.Context, t coordinator.Task) error {
	st, path, err := registry.ParseFullPath(t.Target)
	if err != nil {
		return err
	}
	e := m.entry(st)
	if e == nil {
		return nil
	}
	if !e.bridge.Available() {
		return fmt.Errorf("%s: %w", e.bridge.Name(), ErrBridgeUnavailable)
	}
	if m.Config().Bidirectional && !e.bridge.Value(path).Equal(t.NewValue) {
		if err := m.push(ctx, e, path, t.NewValue); err != nil {
			return err
		}
	}
	e.bridge.OnParameterChanged(path, t.OldValue, t.NewValue)
	return nil
}

// handleRefresh forwards refresh tasks to bridges implementing Refresher.
func (m *Manager) handleRefresh(ctx context.Context, t coordinator.Task) error {
	st, ok := refreshSystem(t)
	if !ok {
		return nil
	}
	e := m.entry(st)
	if e == nil {
		return nil
	}
	r, ok := e.bridge.(Refresher)
	if !ok {
		return nil
	}
	return r.Refresh(ctx, t.Type, t.Target)
}

// refreshSystem resolves the system a refresh task is meant for: the
// system token leading its target, else the system implied by its type.
func refreshSystem(t coordinator.Task) (registry.SystemType, bool) {
	token, _, _ := strings.Cut(t.Target, ".")
	if st, err := registry.ParseSystemType(token); err == nil {
		return st, true
	}
	switch t.Type {
	case coordinator.TypeGeometryRebuild:
		return registry.Geometry, true
	case coordinator.TypeRenderingUpdate:
		return registry.Rendering, true
	case coordinator.TypeLightingUpdate:
		return registry.Lighting, true
	case coordinator.TypeDisplayUpdate:
		return registry.Display, true
	case coordinator.TypePerformanceUpdate:
		return registry.Performance, true
	}
	return 0, false
}

func (m *Manager) startSyncLoop(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncStop != nil || m.runCtx == nil {
		return
	}
	stop := make(chan struct{})
	m.syncStop = stop
	m.wg.Add(1)
	go m.syncLoop(m.runCtx, interval, stop)
}

func (m *Manager) stopSyncLoop() {
	m.mu.Lock()
	stop := m.syncStop
	m.syncStop = nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// retime hands the sync loop a new period, replacing any undelivered one.
func (m *Manager) retime(d time.Duration) {
	for {
		select {
		case m.interval <- d:
			return
		default:
		}
		select {
		case <-m.interval:
		default:
		}
	}
}

func (m *Manager) syncLoop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case d := <-m.interval:
			ticker.Reset(d)
		case <-ticker.C:
			if err := m.Sync(ctx); err != nil && ctx.Err() == nil {
				m.logger.Debug("periodic sync failed", zap.Error(err))
			}
		}
	}
}

func (m *Manager) startWatcher(debounce time.Duration) error {
	fs, ok := m.registry.Store().(*preset.FileStore)
	if !ok {
		return fmt.Errorf("%w: preset watching needs a file store", ErrInvalidConfiguration)
	}
	opts := []preset.WatcherOption{preset.WithWatcherLogger(m.logger)}
	if debounce > 0 {
		opts = append(opts, preset.WithDebounce(debounce))
	}
	w, err := preset.NewWatcher(fs, opts...)
	if err != nil {
		return fmt.Errorf("watch presets: %w", err)
	}

	m.mu.Lock()
	m.watcher = w
	ctx := m.runCtx
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watchLoop(ctx, w)
	return nil
}

// watchLoop runs until the watcher closes its channels.
func (m *Manager) watchLoop(ctx context.Context, w *preset.Watcher) {
	defer m.wg.Done()
	events, errs := w.Events(), w.Errors()
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.reloadPreset(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.logger.Warn("preset watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) reloadPreset(ctx context.Context, ev preset.Event) {
	if ev.Op != preset.OpWrite || ev.Name != m.ActivePreset() || ctx.Err() != nil {
		return
	}
	if err := m.registry.LoadPreset(ctx, ev.Name); err != nil {
		m.logger.Warn("preset reload failed", zap.String("preset", ev.Name), zap.Error(err))
		m.publish(EventSystemError, "", err.Error())
		return
	}
	m.logger.Info("preset reloaded", zap.String("preset", ev.Name))
	m.publish(EventPresetReloaded, "", ev.Name)
}
