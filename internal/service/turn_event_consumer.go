package service

import (
	"context"
	"encoding/json"
	"time"

	"ad-chat-be/internal/dto"
	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/internal/pkg/metrics"
	"ad-chat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// turnEventConsumer fans turn completions out of the process: frame metrics
// locally and a CHAT_TURN_COMPLETED event on the bus.
type turnEventConsumer struct {
	subscriber message.Subscriber
	topicName  string
	publisher  events.Publisher
	logger     logger.ILogger
}

func NewTurnEventConsumer(
	subscriber message.Subscriber,
	topicName string,
	publisher events.Publisher,
	log logger.ILogger,
) IConsumerService {
	return &turnEventConsumer{
		subscriber: subscriber,
		topicName:  topicName,
		publisher:  publisher,
		logger:     log,
	}
}

func (c *turnEventConsumer) Consume(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			c.processMessage(msg)
		}
	}()

	return nil
}

func (c *turnEventConsumer) processMessage(msg *message.Message) {
	var payload dto.TurnCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.logger.Error("TURN_CONSUMER", "Failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	if payload.FrameKind != "" {
		metrics.RecordFrame(payload.FrameKind)
	}

	ctx, cancel := context.WithTimeout(msg.Context(), 5*time.Second)
	defer cancel()

	err := c.publisher.Publish(ctx, events.BaseEvent{
		Type: events.TypeChatTurnCompleted,
		Data: map[string]interface{}{
			"conversationId": payload.ConversationId,
			"messageId":      payload.MessageId,
			"turnIndex":      payload.TurnIndex,
			"adMode":         payload.AdMode,
			"outcome":        payload.Outcome,
			"category":       payload.Category,
			"productName":    payload.ProductName,
			"frameKind":      payload.FrameKind,
			"textLength":     payload.TextLength,
			"durationMs":     payload.DurationMs,
		},
		OccurredAt: time.Now(),
	})
	if err != nil {
		c.logger.Warn("TURN_CONSUMER", "Failed to forward turn completion", map[string]interface{}{
			"conversation_id": payload.ConversationId,
			"error":           err.Error(),
		})
	}

	// Analytics delivery is best-effort; a Nack would redeliver in a hot loop while the bus is down.
	msg.Ack()
}
