package bootstrap

import (
	"context"
	"fmt"
	"time"

	"ad-chat-be/internal/config"
	"ad-chat-be/internal/controller"
	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/internal/repository/cache"
	"ad-chat-be/internal/repository/contract"
	"ad-chat-be/internal/repository/memory"
	"ad-chat-be/internal/repository/unitofwork"
	"ad-chat-be/internal/service"
	"ad-chat-be/pkg/ads/catalog"
	"ad-chat-be/pkg/ads/classifier"
	"ad-chat-be/pkg/ads/schedule"
	"ad-chat-be/pkg/events"
	"ad-chat-be/pkg/llm/factory"
	pktNats "ad-chat-be/pkg/nats"
	"ad-chat-be/pkg/stream"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	SessionController      controller.ISessionController
	ConversationController controller.IConversationController
	ChatController         controller.IChatController
	EventController        controller.IEventController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	Logger logger.ILogger

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	llmLogger := logger.NewIsolatedLogger("logs/llm.log")
	c := &Container{Logger: sysLogger}
	c.closers = append(c.closers, func() { _ = sysLogger.Sync() })

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermillLogger)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Ads
	scheduler, err := schedule.NewScheduler(cfg.Ads.Schedule)
	if err != nil {
		return nil, err
	}
	adCatalog, err := catalog.Load(cfg.Ads.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load ad catalog: %w", err)
	}
	if adCatalog.Len() == 0 {
		sysLogger.Warn("BOOTSTRAP", "Ad catalog is empty; product-bearing turns will carry no ad", map[string]interface{}{
			"path": cfg.Ads.CatalogPath,
		})
	}
	matcher := catalog.NewMatcher(adCatalog, cfg.Ads.NoMatchFallback)

	// 4. LLM
	baseURL := cfg.Ai.LLMBaseURL
	if cfg.Ai.LLMProvider == "ollama" && baseURL == "" {
		baseURL = cfg.Ai.OllamaBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, baseURL, cfg.Ai.LLMApiKey)
	if err != nil {
		return nil, fmt.Errorf("initialize LLM provider: %w", err)
	}
	sysLogger.Info("BOOTSTRAP", "LLM provider ready", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	// 5. Infrastructure
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect to NATS, analytics fan-out disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			publisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	guard := newTurnGuard(cfg, sysLogger, c)

	// 6. Services
	sessionService := service.NewSessionService(cfg.Auth.JwtSecret, cfg.Auth.SessionTTL, sysLogger)
	conversationService := service.NewConversationService(uowFactory)
	chatService := service.NewChatService(service.ChatServiceDeps{
		UowFactory:  uowFactory,
		Guard:       guard,
		Scheduler:   scheduler,
		Catalog:     adCatalog,
		Matcher:     matcher,
		Classifier:  classifier.NewClassifier(llmProvider, llmLogger, cfg.Ads.CategorySampleLimit),
		Provider:    llmProvider,
		Multiplexer: stream.NewMultiplexer(sysLogger),
		Bus:         pubSub,
		Logger:      sysLogger,
	})
	adEventService := service.NewAdEventService(uowFactory, publisher, sysLogger)
	c.ConsumerService = service.NewTurnEventConsumer(pubSub, service.TopicTurnCompleted, publisher, sysLogger)

	// 7. Controllers
	c.SessionController = controller.NewSessionController(sessionService)
	c.ConversationController = controller.NewConversationController(conversationService)
	c.ChatController = controller.NewChatController(chatService)
	c.EventController = controller.NewEventController(adEventService)

	return c, nil
}

// newTurnGuard uses Redis when configured and reachable so the guard holds
// across instances; otherwise it falls back to a process-local guard.
func newTurnGuard(cfg *config.Config, log logger.ILogger, c *Container) contract.TurnGuard {
	if cfg.App.RedisURL == "" {
		return memory.NewTurnGuard(cfg.App.TurnLockTTL)
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Warn("BOOTSTRAP", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("BOOTSTRAP", "Failed to connect to Redis, using in-memory turn guard", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return memory.NewTurnGuard(cfg.App.TurnLockTTL)
	}

	c.closers = append(c.closers, func() { _ = rdb.Close() })
	return cache.NewRedisTurnGuard(rdb, cfg.App.TurnLockTTL)
}

// Close releases infrastructure connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
