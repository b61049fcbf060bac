package events

import (
	"context"
	"time"
)

const (
	TypeChatTurnCompleted = "CHAT_TURN_COMPLETED"
	TypeAdEventsRecorded  = "AD_EVENTS_RECORDED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHAT_TURN_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Publisher is satisfied by the NATS publisher.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops events. It stands in when the bus is unreachable.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
