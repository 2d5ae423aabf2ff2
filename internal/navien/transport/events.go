package transport

import (
	"sync"
	"time"
)

// EventKind identifies a connection lifecycle event.
type EventKind int

const (
	// EventConnectionLost fires when the broker session drops and the
	// client gives up (auto-reconnect disabled or exhausted).
	EventConnectionLost EventKind = iota

	// EventConnectionRestored fires when the session is re-established
	// after a loss.
	EventConnectionRestored

	// EventReconnectionFailed fires when an automatic reconnect attempt
	// fails.
	EventReconnectionFailed

	// EventConnectionInterrupted fires when the session drops but the
	// client is still attempting automatic reconnection.
	EventConnectionInterrupted

	// EventConnectionResumed fires when an interrupted session resumes.
	EventConnectionResumed
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventConnectionLost:
		return "connection_lost"
	case EventConnectionRestored:
		return "connection_restored"
	case EventReconnectionFailed:
		return "reconnection_failed"
	case EventConnectionInterrupted:
		return "connection_interrupted"
	case EventConnectionResumed:
		return "connection_resumed"
	default:
		return "unknown"
	}
}

// Event carries the details of a connection lifecycle event.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	// Err is set for loss, interruption, and reconnection failure events.
	Err error

	// Attempt is the reconnect attempt count for EventReconnectionFailed.
	Attempt int

	// SessionPresent reports whether the broker retained session state
	// across an EventConnectionResumed.
	SessionPresent bool
}

// EventHandler receives connection lifecycle events.
//
// Handlers are invoked from the session's network goroutines and must not
// block. Panics are recovered and logged.
type EventHandler func(Event)

// SubscriberID identifies one registered event handler so it can be
// removed without affecting other subscribers of the same kind.
type SubscriberID uint64

// eventRegistry is a typed publish/subscribe registry keyed by EventKind.
type eventRegistry struct {
	mu     sync.RWMutex
	nextID SubscriberID
	subs   map[EventKind]map[SubscriberID]EventHandler
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{subs: make(map[EventKind]map[SubscriberID]EventHandler)}
}

// on registers a handler for one event kind and returns its id.
func (r *eventRegistry) on(kind EventKind, handler EventHandler) SubscriberID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	if r.subs[kind] == nil {
		r.subs[kind] = make(map[SubscriberID]EventHandler)
	}
	r.subs[kind][id] = handler
	return id
}

// off removes exactly the registration identified by id.
// Removing an unknown id is a no-op.
func (r *eventRegistry) off(kind EventKind, id SubscriberID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[kind], id)
}

// emit invokes every handler registered for the event's kind.
// Each handler runs under panic recovery so one bad subscriber cannot
// take down the session's network goroutine.
func (r *eventRegistry) emit(ev Event, logger Logger) {
	r.mu.RLock()
	handlers := make([]EventHandler, 0, len(r.subs[ev.Kind]))
	for _, h := range r.subs[ev.Kind] {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil && logger != nil {
					logger.Error("event handler panic recovered",
						"event", ev.Kind.String(),
						"panic", rec,
					)
				}
			}()
			h(ev)
		}()
	}
}
