package integration

import (
	"time"

	"github.com/dshills/paramtree/internal/param/notify"
)

// Event types published by the manager.
const (
	EventStarted          = "integration.started"
	EventStopping         = "integration.stopping"
	EventStopped          = "integration.stopped"
	EventSystemIntegrated = "system.integrated"
	EventSystemRemoved    = "system.removed"
	EventSystemError      = "system.error"
	EventSyncCompleted    = "sync.completed"
	EventSyncFailed       = "sync.failed"
	EventPushFailed       = "push.failed"
	EventPresetSaved      = "preset.saved"
	EventPresetLoaded     = "preset.loaded"
	EventPresetReloaded   = "preset.reloaded"
	EventConfigChanged    = "config.changed"
)

// Event describes a change in the integration layer.
type Event struct {
	Type string
	// System is the system token, empty for manager-wide events.
	System    string
	Details   string
	Timestamp time.Time
}

// OnEvent subscribes fn to integration events.
func (m *Manager) OnEvent(fn func(Event)) *notify.Subscription {
	return m.events.Subscribe(fn)
}

// OnEventType subscribes fn to events of a single type.
func (m *Manager) OnEventType(eventType string, fn func(Event)) *notify.Subscription {
	return m.events.SubscribeFunc(fn, func(e Event) bool { return e.Type == eventType })
}

func (m *Manager) publish(eventType, system, details string) {
	m.events.Notify(Event{
		Type:      eventType,
		System:    system,
		Details:   details,
		Timestamp: m.now(),
	})
}
