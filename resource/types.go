package resource

// Handle is an opaque reference to a delegate in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Event types for delegate lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a delegate lifecycle event.
type Event struct {
	Value  any
	Class  string
	Handle Handle
	Type   EventType
}

// Observer receives notifications about delegate lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by delegates that need cleanup
// when their handle is removed.
type Dropper interface {
	Drop()
}
