package memory

import (
	"context"
	"time"

	"ad-chat-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// TurnGuard is the single-instance guard. Entries expire after ttl.
type TurnGuard struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewTurnGuard(ttl time.Duration) *TurnGuard {
	// Purge expired locks every minute
	c := cache.New(ttl, time.Minute)
	return &TurnGuard{
		cache: c,
		ttl:   ttl,
	}
}

func (g *TurnGuard) Acquire(ctx context.Context, conversationId uuid.UUID) (func(), error) {
	key := conversationId.String()
	token := uuid.NewString()

	// Add fails when a live entry exists
	if err := g.cache.Add(key, token, g.ttl); err != nil {
		return nil, contract.ErrTurnInFlight
	}

	return func() {
		// Only drop our own lock, not one taken after ours expired
		if held, found := g.cache.Get(key); found && held.(string) == token {
			g.cache.Delete(key)
		}
	}, nil
}
