package service

import (
	"context"
	"time"

	"ad-chat-be/internal/dto"
	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/internal/pkg/serverutils"

	"github.com/google/uuid"
)

type ISessionService interface {
	Create(ctx context.Context) (*dto.CreateSessionResponse, error)
	Current(userId, sessionId uuid.UUID) *dto.CurrentSessionResponse
}

type sessionService struct {
	jwtSecret string
	ttl       time.Duration
	now       func() time.Time
	logger    logger.ILogger
}

func NewSessionService(jwtSecret string, ttl time.Duration, log logger.ILogger) ISessionService {
	return &sessionService{
		jwtSecret: jwtSecret,
		ttl:       ttl,
		now:       time.Now,
		logger:    log,
	}
}

// Create issues an anonymous user and session pair with a signed bearer token.
func (s *sessionService) Create(ctx context.Context) (*dto.CreateSessionResponse, error) {
	userId := uuid.New()
	sessionId := uuid.New()

	token, expiresAt, err := serverutils.SignSessionToken(s.jwtSecret, userId, sessionId, s.ttl, s.now())
	if err != nil {
		s.logger.Error("SESSION", "Failed to sign session token", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	s.logger.Info("SESSION", "Session created", map[string]interface{}{
		"user_id":    userId.String(),
		"session_id": sessionId.String(),
	})

	return &dto.CreateSessionResponse{
		Token:     token,
		UserId:    userId,
		SessionId: sessionId,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *sessionService) Current(userId, sessionId uuid.UUID) *dto.CurrentSessionResponse {
	return &dto.CurrentSessionResponse{
		UserId:    userId,
		SessionId: sessionId,
	}
}
