package mapper

import (
	"time"

	"ad-chat-be/internal/entity"
	"ad-chat-be/internal/model"

	"gorm.io/datatypes"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Conversation Mappers

func (m *ChatMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	var updatedAt *time.Time
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		updatedAt = &t
	}

	return &entity.Conversation{
		Id:        c.Id,
		UserId:    c.UserId,
		SessionId: c.SessionId,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAt,
	}
}

func (m *ChatMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	return &model.Conversation{
		Id:        c.Id,
		UserId:    c.UserId,
		SessionId: c.SessionId,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAt,
	}
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}

	var selection *entity.AdSelection
	if msg.AdProductName != nil {
		selection = &entity.AdSelection{
			Category:    deref(msg.AdCategory),
			ProductName: *msg.AdProductName,
			ProductUrl:  deref(msg.AdProductUrl),
			ProductDesc: deref(msg.AdProductDesc),
		}
	}

	return &entity.ChatMessage{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Role:           msg.Role,
		Content:        msg.Content,
		AdMode:         deref(msg.AdMode),
		AdSelection:    selection,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) *model.ChatMessage {
	if msg == nil {
		return nil
	}

	out := &model.ChatMessage{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Role:           msg.Role,
		Content:        msg.Content,
		AdMode:         ref(msg.AdMode),
		CreatedAt:      msg.CreatedAt,
	}
	if msg.AdSelection != nil {
		out.AdCategory = ref(msg.AdSelection.Category)
		out.AdProductName = &msg.AdSelection.ProductName
		out.AdProductUrl = ref(msg.AdSelection.ProductUrl)
		out.AdProductDesc = ref(msg.AdSelection.ProductDesc)
	}
	return out
}

func (m *ChatMapper) ChatMessagesToEntities(msgs []*model.ChatMessage) []*entity.ChatMessage {
	entities := make([]*entity.ChatMessage, len(msgs))
	for i, msg := range msgs {
		entities[i] = m.ChatMessageToEntity(msg)
	}
	return entities
}

// Ad Event Mappers

func (m *ChatMapper) AdEventToModel(e *entity.AdEvent) *model.AdEvent {
	if e == nil {
		return nil
	}

	var metadata datatypes.JSONMap
	if len(e.Metadata) > 0 {
		metadata = datatypes.JSONMap(e.Metadata)
	}

	return &model.AdEvent{
		Id:         e.Id,
		EventId:    e.EventId,
		SessionId:  e.SessionId,
		MessageId:  e.MessageId,
		AdMode:     e.AdMode,
		EventType:  e.EventType,
		DurationMs: e.DurationMs,
		Metadata:   metadata,
		CreatedAt:  e.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ref maps "" to NULL.
func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
