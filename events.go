package mailqueue

import (
	"context"
	"sync"
)

// EventKind names a lifecycle notification.
type EventKind string

const (
	// EventQueued fires after an email was stored as PENDING.
	EventQueued EventKind = "queued"
	// EventDelayed fires after the recovery pass moved an email to DELAYED.
	EventDelayed EventKind = "delayed"
	// EventSend fires before the transport is called; subscribers may modify Event.Message.
	EventSend EventKind = "send"
	// EventSent fires after an email was stored as SENT.
	EventSent EventKind = "sent"
	// EventFailed fires after an email was stored as FAILED.
	EventFailed EventKind = "failed"
	// EventRead fires after an email was stored as READ.
	EventRead EventKind = "read"
	// EventError fires after EventFailed with the transport error.
	EventError EventKind = "error"
	// EventStarted fires when the scheduler starts.
	EventStarted EventKind = "started"
	// EventStopped fires when the scheduler stops.
	EventStopped EventKind = "stopped"
)

// Kinds lists every event kind in declaration order.
func Kinds() []EventKind {
	return []EventKind{
		EventQueued, EventDelayed, EventSend, EventSent, EventFailed,
		EventRead, EventError, EventStarted, EventStopped,
	}
}

// Event is passed to subscribers.
type Event struct {
	Kind EventKind
	// ID is zero for EventStarted and EventStopped.
	ID ID
	// Message is set for EventSend only.
	Message *Message
	// Err is set for EventFailed and EventError.
	Err error
}

// Subscriber handles an event. A returned error stops the remaining subscribers of that emit.
type Subscriber func(ctx context.Context, ev Event) error

// Hub is a typed registry of subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[EventKind][]Subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[EventKind][]Subscriber)}
}

// Subscribe appends fn to the subscribers of kind.
func (h *Hub) Subscribe(kind EventKind, fn Subscriber) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[kind] = append(h.subs[kind], fn)
}

// Emit calls the subscribers of ev.Kind synchronously in registration order.
// It returns the first subscriber error unchanged.
func (h *Hub) Emit(ctx context.Context, ev Event) error {
	h.mu.RLock()
	subs := h.subs[ev.Kind]
	h.mu.RUnlock()

	for _, fn := range subs {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}

	return nil
}

// Len returns the number of subscribers registered for kind.
func (h *Hub) Len(kind EventKind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs[kind])
}
