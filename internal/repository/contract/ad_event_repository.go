package contract

import (
	"context"

	"ad-chat-be/internal/entity"
)

type AdEventRepository interface {
	CreateBulk(ctx context.Context, events []*entity.AdEvent) error
}
