package engagement

import (
	"context"
	"time"
)

type EventType string

const (
	EventImpression       EventType = "impression"
	EventFirstInteraction EventType = "first_interaction"
	EventClick            EventType = "click"
	EventMouseoverStart   EventType = "mouseover_start"
	EventMouseoverEnd     EventType = "mouseover_end"
	EventDismiss          EventType = "dismiss"
)

// EventTypes lists every accepted event type.
var EventTypes = []EventType{
	EventImpression,
	EventFirstInteraction,
	EventClick,
	EventMouseoverStart,
	EventMouseoverEnd,
	EventDismiss,
}

func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is one engagement observation on a rendered ad. EventID is generated
// on the client and travels with retries, so the receiver can tell duplicates apart.
type Event struct {
	EventID    string                 `json:"eventId"`
	SessionID  string                 `json:"sessionId"`
	MessageID  string                 `json:"messageId"`
	AdMode     string                 `json:"adMode"`
	EventType  EventType              `json:"eventType"`
	DurationMs *int64                 `json:"durationMs,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// Sink delivers one batch. A returned error means the whole batch must be retried.
type Sink interface {
	SubmitBatch(ctx context.Context, events []Event) error
}

type SinkFunc func(ctx context.Context, events []Event) error

func (f SinkFunc) SubmitBatch(ctx context.Context, events []Event) error {
	return f(ctx, events)
}
