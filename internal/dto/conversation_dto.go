package dto

import (
	"time"

	"ad-chat-be/pkg/stream"

	"github.com/google/uuid"
)

type CreateConversationRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type ConversationResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// MessageResponse carries AdData when an ad product was stored with the message.
type MessageResponse struct {
	Id        uuid.UUID       `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	AdMode    string          `json:"adMode,omitempty"`
	AdData    *stream.Payload `json:"adData"`
	CreatedAt time.Time       `json:"createdAt"`
}
