// Package sync provides the offline-first dual-write and reconciliation engine.
package sync

import "sync"

// EventType identifies a sync notification.
type EventType string

const (
	EventConnectivityChanged EventType = "connectivity_changed"
	EventSyncStatusChanged   EventType = "sync_status_changed"
	EventSyncCompleted       EventType = "sync_completed"
)

// Event is a notification emitted by the engine or forwarded from the
// connectivity monitor.
type Event struct {
	Type EventType

	// RemoteReachable is set for connectivity_changed events.
	RemoteReachable bool

	// Status is set for sync_status_changed events.
	Status string

	// Result is set for sync_completed events.
	Result *Result
}

// EventHandler receives engine events.
type EventHandler interface {
	OnSyncEvent(event Event)
}

// notifier fans events out to registered handlers. Delivery is synchronous
// and in registration order.
type notifier struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

func (n *notifier) add(h EventHandler) {
	if h == nil {
		return
	}
	n.mu.Lock()
	n.handlers = append(n.handlers, h)
	n.mu.Unlock()
}

func (n *notifier) emit(e Event) {
	n.mu.RLock()
	handlers := make([]EventHandler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.RUnlock()

	for _, h := range handlers {
		h.OnSyncEvent(e)
	}
}
