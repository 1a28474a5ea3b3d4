package bus

import "time"

// Event represents a derived domain event published on the bus.
// Kinds are dot-namespaced ("conversation.updated", "message.upserted")
// so consumers can subscribe to a whole namespace at once.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
