package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AdEvent struct {
	Id         uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventId    string            `gorm:"type:varchar(64);index"`
	SessionId  string            `gorm:"type:varchar(64);not null;index"`
	MessageId  string            `gorm:"type:varchar(64);not null;index"`
	AdMode     string            `gorm:"type:varchar(20);not null"`
	EventType  string            `gorm:"type:varchar(32);not null;index"`
	DurationMs *int64            `gorm:"type:bigint"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`
}

func (AdEvent) TableName() string {
	return "ad_events"
}
