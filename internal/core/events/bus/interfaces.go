package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus for lifecycle
// notifications (entities created or removed, clients connected or gone).
//
// Delivery is synchronous in the publisher's goroutine and follows
// subscription order. Handler errors are joined and returned to the publisher.
type EventBus interface {
	Publish(event Event) error
	// PublishAsync delivers in a new goroutine. The channel receives the joined
	// handler error (or nil) and is then closed.
	PublishAsync(event Event) <-chan error
	PublishBatch(events ...Event) error

	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe is a no-op for nil.
	Unsubscribe(Subscription) error

	Subscribers(eventType string) int
}

// Event types published by the core packages.
const (
	EntityCreated      = "scene.entity.created"
	EntityRemoved      = "scene.entity.removed"
	ClientConnected    = "network.client.connected"
	ClientDisconnected = "network.client.disconnected"
	RemoteCallReceived = "network.rpc.received"
)

// Event is an immutable message transported by the bus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
	Metadata() map[string]any
}

type EventHandler func(event Event) error

// Subscription is a handler bound to one event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}
