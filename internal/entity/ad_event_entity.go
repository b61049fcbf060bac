package entity

import (
	"time"

	"github.com/google/uuid"
)

// AdEvent is append-only.
type AdEvent struct {
	Id         uuid.UUID
	EventId    string
	SessionId  string
	MessageId  string
	AdMode     string
	EventType  string
	DurationMs *int64
	Metadata   map[string]interface{}
	CreatedAt  time.Time
}
