package events

// Publisher sends domain events to an external broker.
type Publisher interface {
	Publish(topic string, event any) error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }
