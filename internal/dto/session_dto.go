package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateSessionResponse struct {
	Token     string    `json:"token"`
	UserId    uuid.UUID `json:"userId"`
	SessionId uuid.UUID `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CurrentSessionResponse struct {
	UserId    uuid.UUID `json:"userId"`
	SessionId uuid.UUID `json:"sessionId"`
}
