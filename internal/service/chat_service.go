package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"
	"unicode/utf8"

	"ad-chat-be/internal/dto"
	"ad-chat-be/internal/entity"
	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/internal/pkg/metrics"
	"ad-chat-be/internal/repository/contract"
	"ad-chat-be/internal/repository/specification"
	"ad-chat-be/internal/repository/unitofwork"
	"ad-chat-be/pkg/ads/catalog"
	"ad-chat-be/pkg/ads/prompt"
	"ad-chat-be/pkg/ads/schedule"
	"ad-chat-be/pkg/llm"
	"ad-chat-be/pkg/stream"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TopicTurnCompleted = "chat.turn.completed"
	titleMaxRunes      = 80
	tracerName         = "ad-chat-be/chat"
)

// TopicClassifier labels a user message with a catalog category.
type TopicClassifier interface {
	Classify(ctx context.Context, text string, categories []string) string
}

type IChatService interface {
	// BeginTurn does everything that must happen before the first response byte:
	// ownership check, turn guard, user message persistence, mode decision, ad
	// selection and opening the model stream.
	BeginTurn(ctx context.Context, userId uuid.UUID, req *dto.SendChatRequest) (*Turn, error)
}

type ChatServiceDeps struct {
	UowFactory  unitofwork.RepositoryFactory
	Guard       contract.TurnGuard
	Scheduler   *schedule.Scheduler
	Catalog     *catalog.Catalog
	Matcher     *catalog.Matcher
	Classifier  TopicClassifier
	Provider    llm.LLMProvider
	Multiplexer *stream.Multiplexer
	Bus         message.Publisher
	Logger      logger.ILogger
}

type chatService struct {
	ChatServiceDeps
	tracer trace.Tracer
}

func NewChatService(deps ChatServiceDeps) IChatService {
	return &chatService{
		ChatServiceDeps: deps,
		tracer:          otel.Tracer(tracerName),
	}
}

func (s *chatService) BeginTurn(ctx context.Context, userId uuid.UUID, req *dto.SendChatRequest) (*Turn, error) {
	conversationId, err := uuid.Parse(req.ConversationId)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "conversationId must be a valid uuid")
	}

	uow := s.UowFactory.NewUnitOfWork(ctx)
	conversation, err := findOwnedConversation(ctx, uow, userId, conversationId)
	if err != nil {
		return nil, err
	}

	release, err := s.Guard.Acquire(ctx, conversationId)
	if errors.Is(err, contract.ErrTurnInFlight) {
		return nil, ErrTurnConflict
	}
	if err != nil {
		return nil, err
	}

	turn, err := s.prepare(ctx, uow, conversation, req.Message)
	if err != nil {
		release()
		return nil, err
	}
	turn.release = release
	return turn, nil
}

func (s *chatService) prepare(ctx context.Context, uow unitofwork.UnitOfWork, conversation *entity.Conversation, text string) (*Turn, error) {
	history, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversation.Id},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	answered, err := uow.ChatMessageRepository().Count(ctx,
		specification.ByConversationID{ConversationID: conversation.Id},
		specification.ByRole{Role: entity.RoleAssistant},
	)
	if err != nil {
		return nil, err
	}
	turnIndex := int(answered)
	mode := s.Scheduler.Decide(turnIndex)

	if err := s.saveUserMessage(ctx, uow, conversation, text, len(history) == 0); err != nil {
		return nil, err
	}

	var selection catalog.Selection
	if mode.RequiresProduct() {
		selection = s.selectAd(ctx, text)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	// The stream outlives the request handler, so it keeps only the values of ctx.
	genCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	genCtx, span := s.tracer.Start(genCtx, "chat.turn", trace.WithAttributes(
		attribute.String("conversation.id", conversation.Id.String()),
		attribute.Int("turn.index", turnIndex),
		attribute.String("ad.mode", mode.String()),
		attribute.String("ad.category", selection.Category),
	))
	if selection.Product != nil {
		span.SetAttributes(attribute.String("ad.product", selection.Product.Name))
	}

	tokens, err := s.Provider.Stream(genCtx, llm.WithSystem(prompt.ForMode(mode, selection.Product), messages))
	if err != nil {
		s.Logger.Error("CHAT", "Failed to open generation stream", map[string]interface{}{
			"conversation_id": conversation.Id.String(),
			"error":           err.Error(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream open failed")
		span.End()
		cancel()
		return nil, ErrGenerationStart
	}

	return &Turn{
		AdMode:         mode,
		ConversationId: conversation.Id,
		Index:          turnIndex,
		selection:      selection,
		tokens:         tokens,
		ctx:            genCtx,
		cancel:         cancel,
		span:           span,
		service:        s,
	}, nil
}

func (s *chatService) saveUserMessage(ctx context.Context, uow unitofwork.UnitOfWork, conversation *entity.Conversation, text string, first bool) error {
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	msg := &entity.ChatMessage{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		Role:           entity.RoleUser,
		Content:        text,
		CreatedAt:      time.Now(),
	}
	if err := uow.ChatMessageRepository().Create(ctx, msg); err != nil {
		return err
	}

	if first {
		now := time.Now()
		conversation.Title = titleFrom(text)
		conversation.UpdatedAt = &now
		if err := uow.ConversationRepository().Update(ctx, conversation); err != nil {
			return err
		}
	}

	return uow.Commit()
}

func (s *chatService) selectAd(ctx context.Context, text string) catalog.Selection {
	label := s.Classifier.Classify(ctx, text, s.Catalog.Categories())
	if label == prompt.UnknownTopic {
		metrics.RecordCategoryFallback("unknown_topic")
	}

	selection := s.Matcher.Select(label)
	if selection.Product == nil {
		metrics.RecordCategoryFallback("no_product")
	}

	s.Logger.Debug("CHAT", "Ad selected", map[string]interface{}{
		"label":    label,
		"category": selection.Category,
		"product":  productName(selection.Product),
	})
	return selection
}

// Turn is one accepted chat turn whose model stream is open. Run must be called
// exactly once; it releases the conversation's turn guard when done.
type Turn struct {
	AdMode         schedule.Mode
	ConversationId uuid.UUID
	Index          int

	selection catalog.Selection
	tokens    llm.TokenStream
	ctx       context.Context
	cancel    context.CancelFunc
	span      trace.Span
	release   func()
	service   *chatService
}

// Selection is the ad chosen for this turn. It is empty for no-ad turns.
func (t *Turn) Selection() catalog.Selection {
	return t.selection
}

// Run streams the answer into w and persists it. An abort (w failing, or Cancel)
// persists nothing.
func (t *Turn) Run(w io.Writer) (stream.Result, error) {
	started := time.Now()
	metrics.StreamStarted()
	defer metrics.StreamFinished()
	defer t.finish()

	var messageId uuid.UUID
	result, err := t.service.Multiplexer.Pipe(t.ctx, w, t.tokens, t.finalizer(&messageId))

	t.report(result, err, messageId, time.Since(started))
	return result, err
}

// Cancel aborts a running turn.
func (t *Turn) Cancel() {
	t.cancel()
}

func (t *Turn) finalizer(messageId *uuid.UUID) stream.Finalizer {
	return func(ctx context.Context, text string, complete bool) (*stream.Payload, error) {
		msg := &entity.ChatMessage{
			Id:             uuid.New(),
			ConversationId: t.ConversationId,
			Role:           entity.RoleAssistant,
			Content:        text,
			AdMode:         t.AdMode.String(),
			AdSelection:    selectionEntity(t.selection),
			CreatedAt:      time.Now(),
		}

		persistCtx := context.WithoutCancel(ctx)
		uow := t.service.UowFactory.NewUnitOfWork(persistCtx)
		if err := uow.ChatMessageRepository().Create(persistCtx, msg); err != nil {
			return nil, err
		}
		*messageId = msg.Id

		if !complete {
			return nil, nil
		}
		return stream.FrameFor(t.AdMode, msg.Id.String(), t.selection.Category, t.selection.Product), nil
	}
}

func (t *Turn) report(result stream.Result, err error, messageId uuid.UUID, elapsed time.Duration) {
	log := t.service.Logger
	metrics.RecordTurn(t.AdMode.String(), string(result.Outcome), elapsed.Seconds())

	t.span.SetAttributes(
		attribute.String("turn.outcome", string(result.Outcome)),
		attribute.Int("turn.text_length", len(result.Text)),
	)
	if err != nil && result.Outcome != stream.OutcomeAborted {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, string(result.Outcome))
	}

	details := map[string]interface{}{
		"conversation_id": t.ConversationId.String(),
		"turn_index":      t.Index,
		"ad_mode":         t.AdMode.String(),
		"outcome":         string(result.Outcome),
	}
	if err != nil {
		details["error"] = err.Error()
		log.Warn("CHAT", "Turn ended early", details)
	} else {
		log.Info("CHAT", "Turn completed", details)
	}

	completed := dto.TurnCompletedMessage{
		ConversationId: t.ConversationId.String(),
		TurnIndex:      t.Index,
		AdMode:         t.AdMode.String(),
		Outcome:        string(result.Outcome),
		Category:       t.selection.Category,
		ProductName:    productName(t.selection.Product),
		TextLength:     len(result.Text),
		DurationMs:     elapsed.Milliseconds(),
	}
	if messageId != uuid.Nil {
		completed.MessageId = messageId.String()
	}
	if result.Frame != nil {
		completed.FrameKind = string(result.Frame.Type)
	}
	t.service.publishCompleted(completed)
}

func (t *Turn) finish() {
	t.cancel()
	t.span.End()
	if t.release != nil {
		t.release()
	}
}

func (s *chatService) publishCompleted(payload dto.TurnCompletedMessage) {
	if s.Bus == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.Logger.Error("CHAT", "Failed to marshal turn completion", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := s.Bus.Publish(TopicTurnCompleted, message.NewMessage(watermill.NewUUID(), body)); err != nil {
		s.Logger.Warn("CHAT", "Failed to publish turn completion", map[string]interface{}{"error": err.Error()})
	}
}

func selectionEntity(sel catalog.Selection) *entity.AdSelection {
	if sel.Category == "" {
		return nil
	}
	out := &entity.AdSelection{Category: sel.Category}
	if sel.Product != nil {
		out.ProductName = sel.Product.Name
		out.ProductUrl = sel.Product.URL
		out.ProductDesc = sel.Product.Desc
	}
	return out
}

func titleFrom(text string) string {
	if utf8.RuneCountInString(text) <= titleMaxRunes {
		return text
	}
	return string([]rune(text)[:titleMaxRunes])
}

func productName(p *catalog.Product) string {
	if p == nil {
		return ""
	}
	return p.Name
}
