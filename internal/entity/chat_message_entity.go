package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AdSelection is the category and product an assistant message was served with.
type AdSelection struct {
	Category    string
	ProductName string
	ProductUrl  string
	ProductDesc string
}

// ChatMessage is immutable once stored. User messages never carry AdMode or AdSelection.
type ChatMessage struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Role           string
	Content        string
	AdMode         string
	AdSelection    *AdSelection
	CreatedAt      time.Time
}
