package service

import (
	"context"
	"time"

	"ad-chat-be/internal/dto"
	"ad-chat-be/internal/entity"
	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/internal/pkg/metrics"
	"ad-chat-be/internal/repository/unitofwork"
	"ad-chat-be/pkg/events"

	"github.com/google/uuid"
)

type IAdEventService interface {
	// Record stores a batch as-is. Events are not deduplicated: a retried batch
	// is stored again under the same eventIds.
	Record(ctx context.Context, req *dto.RecordAdEventsRequest) (*dto.RecordAdEventsResponse, error)
}

type adEventService struct {
	uowFactory unitofwork.RepositoryFactory
	publisher  events.Publisher
	logger     logger.ILogger
}

func NewAdEventService(uowFactory unitofwork.RepositoryFactory, publisher events.Publisher, log logger.ILogger) IAdEventService {
	return &adEventService{
		uowFactory: uowFactory,
		publisher:  publisher,
		logger:     log,
	}
}

func (s *adEventService) Record(ctx context.Context, req *dto.RecordAdEventsRequest) (*dto.RecordAdEventsResponse, error) {
	if len(req.Events) == 0 {
		return &dto.RecordAdEventsResponse{Count: 0}, nil
	}

	now := time.Now()
	batch := make([]*entity.AdEvent, 0, len(req.Events))
	byType := make(map[string]int)
	for _, e := range req.Events {
		batch = append(batch, &entity.AdEvent{
			Id:         uuid.New(),
			EventId:    e.EventId,
			SessionId:  e.SessionId,
			MessageId:  e.MessageId,
			AdMode:     e.AdMode,
			EventType:  e.EventType,
			DurationMs: e.DurationMs,
			Metadata:   e.Metadata,
			CreatedAt:  now,
		})
		byType[e.EventType]++
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.AdEventRepository().CreateBulk(ctx, batch); err != nil {
		s.logger.Error("AD_EVENTS", "Failed to store event batch", map[string]interface{}{
			"count": len(batch),
			"error": err.Error(),
		})
		return nil, err
	}

	for eventType, n := range byType {
		metrics.RecordAdEvents(eventType, n)
	}

	s.publish(ctx, batch, byType, now)
	return &dto.RecordAdEventsResponse{Count: len(batch)}, nil
}

// publish forwards a batch summary downstream. Failure does not affect the response.
func (s *adEventService) publish(ctx context.Context, batch []*entity.AdEvent, byType map[string]int, at time.Time) {
	messageIds := make([]string, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, e := range batch {
		if _, ok := seen[e.MessageId]; ok {
			continue
		}
		seen[e.MessageId] = struct{}{}
		messageIds = append(messageIds, e.MessageId)
	}

	counts := make(map[string]interface{}, len(byType))
	for k, v := range byType {
		counts[k] = v
	}

	err := s.publisher.Publish(ctx, events.BaseEvent{
		Type: events.TypeAdEventsRecorded,
		Data: map[string]interface{}{
			"count":      len(batch),
			"byType":     counts,
			"messageIds": messageIds,
		},
		OccurredAt: at,
	})
	if err != nil {
		s.logger.Warn("AD_EVENTS", "Failed to publish batch summary", map[string]interface{}{"error": err.Error()})
	}
}
