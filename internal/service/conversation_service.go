package service

import (
	"context"
	"time"

	"ad-chat-be/internal/dto"
	"ad-chat-be/internal/entity"
	"ad-chat-be/internal/repository/specification"
	"ad-chat-be/internal/repository/unitofwork"
	"ad-chat-be/pkg/ads/catalog"
	"ad-chat-be/pkg/ads/schedule"
	"ad-chat-be/pkg/stream"

	"github.com/google/uuid"
)

type IConversationService interface {
	Create(ctx context.Context, userId, sessionId uuid.UUID, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error)
	GetAll(ctx context.Context, userId uuid.UUID) ([]*dto.ConversationResponse, error)
	GetMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]*dto.MessageResponse, error)
}

type conversationService struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewConversationService(uowFactory unitofwork.RepositoryFactory) IConversationService {
	return &conversationService{
		uowFactory: uowFactory,
	}
}

func (s *conversationService) Create(ctx context.Context, userId, sessionId uuid.UUID, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error) {
	title := req.Title
	if title == "" {
		title = entity.DefaultConversationTitle
	}

	conversation := &entity.Conversation{
		Id:        uuid.New(),
		UserId:    userId,
		SessionId: sessionId,
		Title:     title,
		CreatedAt: time.Now(),
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ConversationRepository().Create(ctx, conversation); err != nil {
		return nil, err
	}
	return toConversationResponse(conversation), nil
}

// GetAll lists the caller's conversations, newest first.
func (s *conversationService) GetAll(ctx context.Context, userId uuid.UUID) ([]*dto.ConversationResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	conversations, err := uow.ConversationRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ConversationResponse, 0, len(conversations))
	for _, c := range conversations {
		res = append(res, toConversationResponse(c))
	}
	return res, nil
}

// GetMessages returns the history oldest first. Assistant messages stored with
// a product carry the metadata block they were streamed with.
func (s *conversationService) GetMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]*dto.MessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedConversation(ctx, uow, userId, conversationId); err != nil {
		return nil, err
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.MessageResponse, 0, len(messages))
	for _, m := range messages {
		res = append(res, &dto.MessageResponse{
			Id:        m.Id,
			Role:      m.Role,
			Content:   m.Content,
			AdMode:    m.AdMode,
			AdData:    adDataFor(m),
			CreatedAt: m.CreatedAt,
		})
	}
	return res, nil
}

func findOwnedConversation(ctx context.Context, uow unitofwork.UnitOfWork, userId, conversationId uuid.UUID) (*entity.Conversation, error) {
	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: conversationId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func adDataFor(m *entity.ChatMessage) *stream.Payload {
	if m.Role != entity.RoleAssistant || m.AdSelection == nil || m.AdSelection.ProductName == "" {
		return nil
	}
	return stream.FrameFor(schedule.Mode(m.AdMode), m.Id.String(), m.AdSelection.Category, &catalog.Product{
		Name: m.AdSelection.ProductName,
		URL:  m.AdSelection.ProductUrl,
		Desc: m.AdSelection.ProductDesc,
	})
}

func toConversationResponse(c *entity.Conversation) *dto.ConversationResponse {
	return &dto.ConversationResponse{
		Id:        c.Id,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
