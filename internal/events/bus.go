// Package events provides the in-process pub/sub bus the sync core
// components communicate over. Components depend on the Bus interface,
// so tests can publish connectivity and queue events without a real
// platform event source.
package events

import "sync"

// Topics published by the core. Payloads are plain maps; consumers
// pick the fields they care about and ignore the rest.
const (
	// TopicNetworkOnline and TopicNetworkOffline are published by the
	// embedding application when the platform reports a connectivity change.
	TopicNetworkOnline  = "network.online"
	TopicNetworkOffline = "network.offline"

	// TopicConnectionState carries the monitor's state transitions.
	// Payload: {"state": string, "transient": bool, "auto_hide_ms": int64}.
	TopicConnectionState = "connection.state"

	// TopicQueueChanged fires after enqueue, remove, clear, and each drain step.
	// Payload: {"pending": int}.
	TopicQueueChanged = "queue.changed"

	// TopicQueueItemFailed fires when an item is promoted to the dead-letter
	// store. Payload: {"method", "url", "status_code", "queued_at"}.
	TopicQueueItemFailed = "queue.item_failed"

	// TopicCredentialChanged is published by the auth layer on login/logout.
	TopicCredentialChanged = "auth.credential_changed"
)

// Handler receives a published event.
type Handler func(topic string, payload map[string]interface{})

// Bus is the pub/sub port. Publish is fire-and-forget: the core never
// requires an ack from observers.
type Bus interface {
	Publish(topic string, payload map[string]interface{})
	Subscribe(topic string, handler Handler) (unsubscribe func())
}

// MemoryBus is a goroutine-safe in-process Bus. Handlers run
// synchronously in publish order; a panicking handler is swallowed so
// one broken observer cannot take down the core.
type MemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string]map[int]Handler),
	}
}

// Publish delivers the payload to every subscriber of the topic.
func (b *MemoryBus) Publish(topic string, payload map[string]interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[topic]))
	for _, h := range b.handlers[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in observer callbacks
			h(topic, payload)
		}()
	}
}

// Subscribe registers a handler for a topic and returns a function that
// removes it.
func (b *MemoryBus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[topic][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
	}
}
