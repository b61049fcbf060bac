package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationId uuid.UUID `gorm:"type:uuid;not null;index:idx_chat_messages_conversation_created,priority:1"`
	Role           string    `gorm:"type:varchar(20);not null;index"`
	Content        string    `gorm:"type:text;not null"`
	AdMode         *string   `gorm:"type:varchar(20)"`
	AdCategory     *string   `gorm:"type:text"`
	AdProductName  *string   `gorm:"type:text"`
	AdProductUrl   *string   `gorm:"type:text"`
	AdProductDesc  *string   `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_chat_messages_conversation_created,priority:2"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
