package entity

import (
	"time"

	"github.com/google/uuid"
)

const DefaultConversationTitle = "New Chat"

type Conversation struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	SessionId uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt *time.Time
}
