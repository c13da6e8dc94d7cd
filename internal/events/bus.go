package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler is invoked for every published event of a subscribed type.
// Handlers run on dispatch goroutines and must not block indefinitely.
type Handler func(event *Event)

// Bus is an in-process pub/sub event bus. Publishing never blocks the
// caller: each handler runs on its own goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type. Returns the number of
// handlers now registered for that type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return len(b.handlers[eventType])
}

// Publish delivers data to all handlers subscribed to its event type.
// Delivery is asynchronous; a panicking handler is logged and does not
// affect other handlers or the publisher.
func (b *Bus) Publish(data EventData) {
	event := &Event{
		Type:      data.EventType(),
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		h := handler
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error().
						Str("event_type", string(event.Type)).
						Interface("panic", r).
						Msg("Event handler panicked")
				}
			}()
			h(event)
		}()
	}
}
