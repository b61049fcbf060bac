package contract

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrTurnInFlight is returned when another turn of the same conversation holds the guard.
var ErrTurnInFlight = errors.New("a turn is already in flight for this conversation")

// TurnGuard admits at most one assistant turn per conversation at a time.
// Locks expire after a TTL so a crashed holder cannot block a conversation forever.
type TurnGuard interface {
	// Acquire returns a release func, or ErrTurnInFlight.
	Acquire(ctx context.Context, conversationId uuid.UUID) (release func(), err error)
}
