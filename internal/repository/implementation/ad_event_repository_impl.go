package implementation

import (
	"context"

	"ad-chat-be/internal/entity"
	"ad-chat-be/internal/mapper"
	"ad-chat-be/internal/model"
	"ad-chat-be/internal/repository/contract"

	"gorm.io/gorm"
)

const adEventBatchSize = 200

type AdEventRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewAdEventRepository(db *gorm.DB) contract.AdEventRepository {
	return &AdEventRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *AdEventRepositoryImpl) CreateBulk(ctx context.Context, events []*entity.AdEvent) error {
	if len(events) == 0 {
		return nil
	}

	models := make([]*model.AdEvent, len(events))
	for i, e := range events {
		models[i] = r.mapper.AdEventToModel(e)
	}

	if err := r.db.WithContext(ctx).CreateInBatches(models, adEventBatchSize).Error; err != nil {
		return err
	}

	for i, m := range models {
		events[i].Id = m.Id
		events[i].CreatedAt = m.CreatedAt
	}
	return nil
}
