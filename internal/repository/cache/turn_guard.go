package cache

import (
	"context"
	"fmt"
	"time"

	"ad-chat-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const turnKeyPrefix = "chat:turn:"

// Deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTurnGuard shares turn locks between API instances.
type RedisTurnGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTurnGuard(rdb *redis.Client, ttl time.Duration) *RedisTurnGuard {
	return &RedisTurnGuard{
		rdb: rdb,
		ttl: ttl,
	}
}

func (g *RedisTurnGuard) Acquire(ctx context.Context, conversationId uuid.UUID) (func(), error) {
	key := turnKeyPrefix + conversationId.String()
	token := uuid.NewString()

	ok, err := g.rdb.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire turn lock: %w", err)
	}
	if !ok {
		return nil, contract.ErrTurnInFlight
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, g.rdb, []string{key}, token).Err()
	}, nil
}
