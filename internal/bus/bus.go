// Package bus carries runtime lifecycle events between components: producers
// publish fire-and-forget, consumers subscribe by event type or tap the whole
// stream.
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for the voice runtime
const (
	// Connectivity events
	EventTypeConnectivityUp   EventType = "connectivity.up"
	EventTypeConnectivityDown EventType = "connectivity.down"
	EventTypeProbeFailed      EventType = "connectivity.probe_failed"

	// Mode events
	EventTypeModeChanged       EventType = "mode.changed"
	EventTypeModeIdle          EventType = "mode.idle"
	EventTypeConversationEnded EventType = "mode.conversation_ended"

	// Session events
	EventTypeSessionStarted EventType = "session.started"
	EventTypeSessionEnded   EventType = "session.ended"
	EventTypeSessionFailed  EventType = "session.failed"
	EventTypeTranscript     EventType = "session.transcript"
	EventTypeResponse       EventType = "session.response"

	// Reminder events
	EventTypeReminderCreated EventType = "reminder.created"
	EventTypeReminderFired   EventType = "reminder.fired"
	EventTypeReminderDeleted EventType = "reminder.deleted"
	EventTypeReminderCleared EventType = "reminder.cleared"
	EventTypeStoreReloaded   EventType = "reminder.store_reloaded"
)

// Event is one bus notification.
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler consumes events.
type Handler func(Event)

// EventBus fans events out to subscribers. Publishers may hold locks, so
// Publish delivers on fresh goroutines and never waits on a consumer.
type EventBus struct {
	mu   sync.RWMutex
	subs map[EventType][]Handler
	taps []Handler
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[EventType][]Handler)}
}

// Subscribe registers a handler for one event type.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], handler)
}

// SubscribeAll registers a handler that receives every event, whatever its
// type. Used for stream-wide consumers like the debug event log.
func (b *EventBus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taps = append(b.taps, handler)
}

// Publish delivers the event asynchronously to every matching handler.
func (b *EventBus) Publish(event Event) {
	for _, h := range b.snapshot(event.Type) {
		go h(event)
	}
}

// PublishSync delivers the event inline, one handler at a time, and returns
// once every handler has run. For teardown paths and tests that need
// ordering.
func (b *EventBus) PublishSync(event Event) {
	for _, h := range b.snapshot(event.Type) {
		h(event)
	}
}

// snapshot copies the handler set for a type under the read lock, so a
// handler subscribing mid-delivery never mutates a list being walked.
func (b *EventBus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.subs[eventType])+len(b.taps))
	out = append(out, b.subs[eventType]...)
	out = append(out, b.taps...)
	return out
}
