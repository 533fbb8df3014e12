package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"tawarln-chat/internal/ai"
	"tawarln-chat/internal/app"
	"tawarln-chat/internal/cache"
	"tawarln-chat/internal/config"
	"tawarln-chat/internal/enrich"
	"tawarln-chat/internal/model"
	"tawarln-chat/internal/platform/database"
	"tawarln-chat/internal/platform/logger"
	rabbitmqClient "tawarln-chat/internal/platform/rabbitmq"
	redisClient "tawarln-chat/internal/platform/redis"
	"tawarln-chat/internal/platform/vectorstore"
	"tawarln-chat/internal/ratelimit"
	"tawarln-chat/internal/repository"
	"tawarln-chat/internal/worker"
)

// KnowledgeStore is satisfied by both the SQL and the chromem backends.
type KnowledgeStore interface {
	app.ChunkWriter
	enrich.Matcher
}

type App struct {
	Config *config.Config
	Log    *logger.Logger
	DB     *gorm.DB
	// Redis and MQConn are nil when the dependency is not configured or unreachable.
	Redis         *redis.Client
	MQConn        *amqp.Connection
	SessionWorker *worker.SessionPersistWorker

	Auth      *app.AuthService
	Chat      *app.ChatService
	Sessions  *app.SessionService
	Knowledge *app.KnowledgeService
	Models    *app.ModelCatalog

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.New(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.ChatSession{}, &model.KnowledgeChunk{}, &model.AuditLog{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a := &App{Config: cfg, Log: log, DB: db, StartedAt: time.Now()}

	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, rate limiting and share cache disabled", "addr", cfg.Redis.Addr, "error", err)
		}
	}
	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.SessionPersistQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, sessions are persisted in process", "error", err)
		}
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewChatSessionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	store, err := newKnowledgeStore(cfg.Knowledge, db)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var sharedCache app.SharedSessionCache
	var limiter ratelimit.Limiter = ratelimit.NopLimiter{}
	if a.Redis != nil {
		sharedCache = cache.NewSharedSessionCache(a.Redis, time.Duration(cfg.Redis.ShareTTLSecond)*time.Second)
		limiter = ratelimit.NewRedisLimiter(a.Redis, cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
	}

	a.Sessions = app.NewSessionService(sessionRepo, sharedCache, log)
	a.Auth = app.NewAuthService(userRepo, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute)
	a.Models = app.NewModelCatalog(cfg.LLM.Models, cfg.LLM.DefaultModel)

	var persister app.SessionPersister = app.NewDirectPersister(a.Sessions)
	if a.MQConn != nil {
		persister = rabbitmqClient.NewSessionPublisher(a.MQConn, cfg.RabbitMQ.SessionPersistQueue)
		a.SessionWorker = worker.NewSessionPersistWorker(a.MQConn, a.Sessions, cfg.RabbitMQ.SessionPersistQueue, log)
		if err := a.SessionWorker.Start(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("start session worker failed: %w", err)
		}
	}

	llm := ai.NewOpenAICompatibleClient(ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
	}, &http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	}})
	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	}, &http.Client{Timeout: 30 * time.Second})

	a.Knowledge = app.NewKnowledgeService(embedder, store, auditRepo, userRepo, app.KnowledgeOptions{
		ChunkSize:    cfg.Knowledge.ChunkSize,
		ChunkOverlap: cfg.Knowledge.ChunkOverlap,
	}, log)

	a.Chat = app.NewChatService(
		llm,
		limiter,
		userRepo,
		newChain(cfg, llm, embedder, store, log),
		persister,
		a.Models,
		app.ChatOptions{
			SystemPrompt:       cfg.Chat.SystemPrompt,
			DefaultTemperature: cfg.Chat.DefaultTemperature,
			MaxTokens:          cfg.Chat.MaxTokens,
			MaxQueryChars:      cfg.Chat.MaxQueryChars,
			StopSequences:      cfg.Chat.StopSequences,
		},
		log,
	)

	return a, nil
}

// newChain orders strategies by precedence: URL scrape, knowledge base, web search.
// Strategies whose credentials are missing are left out.
func newChain(cfg *config.Config, llm *ai.OpenAICompatibleClient, embedder *ai.EmbeddingClient, store KnowledgeStore, log *logger.Logger) *enrich.Chain {
	strategies := []enrich.Strategy{
		enrich.NewURLScrape(enrich.URLScrapeConfig{
			UserAgent: cfg.Scrape.UserAgent,
			MaxChars:  cfg.Scrape.MaxChars,
			Timeout:   time.Duration(cfg.Scrape.TimeoutSec) * time.Second,
		}, nil, log),
	}
	if cfg.Embedding.APIKey != "" {
		strategies = append(strategies, enrich.NewKnowledgeRetrieval(embedder, store, cfg.Knowledge.MatchThreshold, cfg.Knowledge.MatchCount, log))
	} else {
		log.Warn("embedding api key not set, knowledge retrieval disabled")
	}
	if cfg.Search.APIKey != "" {
		rewriteModel := cfg.LLM.RewriteModel
		if rewriteModel == "" {
			rewriteModel = cfg.LLM.DefaultModel
		}
		strategies = append(strategies, enrich.NewWebSearch(
			enrich.NewSerperClient(cfg.Search.Endpoint, cfg.Search.APIKey, nil),
			enrich.NewQueryRewriter(llm, rewriteModel, log),
			cfg.Search.TopK,
			log,
		))
	} else {
		log.Warn("search api key not set, web search disabled")
	}
	return enrich.NewChain(log, strategies...)
}

func newKnowledgeStore(cfg config.KnowledgeConfig, db *gorm.DB) (KnowledgeStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "sql":
		return repository.NewKnowledgeChunkRepository(db), nil
	case "", "chromem":
		store, err := vectorstore.NewChromem(cfg.ChromemPath, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported knowledge backend %q", cfg.Backend)
	}
}

// Close drains in-flight session writes before tearing down the connections
// they depend on.
func (a *App) Close() error {
	var closeErr error
	if a.Chat != nil {
		a.Chat.Drain()
	}
	if a.SessionWorker != nil {
		a.SessionWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
