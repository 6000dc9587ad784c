package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"repochat-be/internal/config"
	"repochat-be/internal/controller"
	"repochat-be/internal/handler"
	"repochat-be/internal/pkg/logger"
	"repochat-be/internal/repository/memory"
	"repochat-be/internal/service"
	"repochat-be/internal/websocket"
	"repochat-be/pkg/database"
	embeddingFactory "repochat-be/pkg/embedding/factory"
	"repochat-be/pkg/events"
	"repochat-be/pkg/ingest"
	llmFactory "repochat-be/pkg/llm/factory"
	pktNats "repochat-be/pkg/nats"
	"repochat-be/pkg/rag"
	"repochat-be/pkg/vectorstore"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Logger logger.ILogger

	// Controllers
	IngestController  controller.IIngestController
	ChatbotController controller.IChatbotController
	ChatSocketHandler *handler.ChatSocketHandler

	// Services the server reads from directly
	ChatbotService service.IChatbotService

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	closers []func()
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	isProd := cfg.App.Environment == "production"

	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, isProd)
	promptLogger := logger.NewIsolatedLogger(cfg.App.LLMLogFilePath)

	c := &Container{Logger: sysLogger}

	// 2. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Infrastructure
	rdb := newRedis(ctx, cfg.App.RedisURL, sysLogger)
	if rdb != nil {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	var forwarder service.EventForwarder
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "NATS unavailable, events stay in-process", map[string]interface{}{"error": err.Error()})
		} else {
			forwarder = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	indexFactory, db, err := newIndexFactory(ctx, cfg, isProd, sysLogger)
	if err != nil {
		c.Close()
		return nil, err
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			c.closers = append(c.closers, func() { _ = sqlDB.Close() })
		}
	}

	// 4. AI Providers
	embedder, err := embeddingFactory.NewEmbeddingProvider(cfg.Ai, cfg.Keys, cfg.Ingest.EmbeddingCacheTTL, rdb, sysLogger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "Embedding provider ready", map[string]interface{}{
		"provider": cfg.Ai.EmbeddingProvider,
		"model":    cfg.Ai.EmbeddingModel,
	})

	llmProvider, err := llmFactory.NewLLMProvider(cfg.Ai, cfg.Keys, sysLogger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "LLM provider ready", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	engine := rag.NewEngine(llmProvider, sysLogger, rag.Options{
		MaxHistoryTurns: cfg.Rag.MaxHistoryTurns,
		RewriteFallback: cfg.Rag.RewriteFallback,
		PromptLogger:    promptLogger,
	})

	// 5. Sessions & Services
	sessionRepo := memory.NewSessionRepository(cfg.Session.TTL, cfg.Session.CleanupInterval)
	publisherService := service.NewPublisherService(pubSub, cfg.App.EventsTopic)

	sessionRepo.OnExpired(func(s *memory.Session) {
		evt := events.NewSessionEvent(events.SessionExpired, s.ID, map[string]interface{}{
			events.KeyCollectionID: s.Index.ID(),
			events.KeySource:       s.Source,
		})
		if err := publisherService.Publish(context.Background(), evt); err != nil {
			sysLogger.Warn("Bootstrap", "Publishing session.expired failed, releasing index inline", map[string]interface{}{
				"session_id": s.ID,
				"error":      err.Error(),
			})
			_ = indexFactory.Release(context.Background(), s.Index.ID())
		}
	})

	wsHub := websocket.NewHub(rdb, sysLogger)
	c.WebSocketHub = wsHub

	c.ConsumerService = service.NewConsumerService(
		pubSub,
		cfg.App.EventsTopic,
		indexFactory,
		forwarder,
		wsHub, // Hub implements SessionNotifier
		sysLogger,
	)

	githubClient := ingest.NewGitHubClient(ctx, cfg.Keys.GitHub)

	ingestService := service.NewIngestService(
		sessionRepo,
		indexFactory,
		embedder,
		githubClient,
		publisherService,
		cfg.Ingest,
		sysLogger,
	)
	chatbotService := service.NewChatbotService(
		sessionRepo,
		engine,
		embedder,
		indexFactory,
		publisherService,
		cfg.Rag,
		sysLogger,
	)
	c.ChatbotService = chatbotService

	// 6. Controllers
	c.IngestController = controller.NewIngestController(ingestService, chatbotService)
	c.ChatbotController = controller.NewChatbotController(chatbotService)
	c.ChatSocketHandler = handler.NewChatSocketHandler(chatbotService, wsHub, sysLogger)

	c.closers = append(c.closers, func() {
		_ = promptLogger.Sync()
		_ = sysLogger.Sync()
	})

	return c, nil
}

// Close releases infrastructure in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// newRedis returns nil when no URL is configured or the server does not answer.
func newRedis(ctx context.Context, url string, log logger.ILogger) *redis.Client {
	if url == "" {
		return nil
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("Bootstrap", "Failed to parse Redis URL, using it as address", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: url}
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Bootstrap", "Redis unreachable, using in-process cache and hub", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func newIndexFactory(ctx context.Context, cfg *config.Config, isProd bool, log logger.ILogger) (vectorstore.Factory, *gorm.DB, error) {
	switch strings.ToLower(cfg.VectorStore.Type) {
	case "", "memory":
		return vectorstore.NewMemoryFactory(), nil, nil
	case "pgvector":
		if cfg.Database.Connection == "" {
			return nil, nil, fmt.Errorf("pgvector store requires DB_CONNECTION_STRING")
		}
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, isProd)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		factory := vectorstore.NewPgFactory(db)
		if cfg.VectorStore.PurgeOnStart {
			purged, err := factory.Purge(ctx)
			if err != nil {
				if sqlDB, dbErr := db.DB(); dbErr == nil {
					_ = sqlDB.Close()
				}
				return nil, nil, err
			}
			log.Info("Bootstrap", "Purged chunk rows left by a previous run", map[string]interface{}{"rows": purged})
		}
		return factory, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore.Type)
	}
}
