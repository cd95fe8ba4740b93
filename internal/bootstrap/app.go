package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docbot/internal/ai"
	appsvc "docbot/internal/app"
	"docbot/internal/cache"
	"docbot/internal/config"
	"docbot/internal/model"
	"docbot/internal/pkg/logging"
	mysqlClient "docbot/internal/platform/mysql"
	rabbitmqClient "docbot/internal/platform/rabbitmq"
	redisClient "docbot/internal/platform/redis"
	"docbot/internal/rag"
	"docbot/internal/repository"
	"docbot/internal/worker"
)

type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	IngestWorker *worker.IngestWorker

	AuthService *appsvc.AuthService
	RAGService  *appsvc.RAGService

	StartedAt time.Time

	llm       *ai.Client
	gateway   *rag.Gateway
	pipeline  *rag.Pipeline
	assembler *rag.Assembler
}

// New builds the full server: MySQL, Redis, RabbitMQ and the ingest worker.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	a, err := newCore(ctx, cfg, true)
	if err != nil {
		return nil, err
	}
	if err := a.connectQueue(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// NewCLI builds only what the command line needs: the model client and the
// vector index. MySQL is dialed only for the mysql index backend.
func NewCLI(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := newCore(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	a.RAGService = a.newRAGService()
	return a, nil
}

func newCore(ctx context.Context, cfg *config.Config, needUsers bool) (*App, error) {
	logger := logging.New(os.Stderr, cfg.App.LogLevel).With("app", cfg.App.Name)
	slog.SetDefault(logger)

	llm, err := ai.NewClient(ai.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		ChatModel:         cfg.LLM.Model,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		Timeout:           cfg.LLM.Timeout(),
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryDelay:        cfg.LLM.RetryDelay(),
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("create llm client failed: %w", err)
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		StartedAt: time.Now(),
		llm:       llm,
	}

	var store rag.VectorStore
	if needUsers || cfg.Index.Backend == "mysql" {
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.LogLevel == "debug")
		if err != nil {
			return nil, err
		}
		a.MySQL = db
		if err := db.AutoMigrate(&model.User{}, &model.VectorRecord{}); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("auto migrate tables failed: %w", err)
		}
		a.AuthService = appsvc.NewAuthService(
			repository.NewUserRepository(db),
			cfg.Auth.JWTSecret,
			time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
		)
	}
	switch cfg.Index.Backend {
	case "memory":
		store = rag.NewMemoryStore()
		logger.Warn("using in-memory vector index, uploads are lost on restart")
	default:
		store = repository.NewVectorRecordRepository(a.MySQL)
	}

	a.gateway = rag.NewGateway(store, cfg.RAG.EmbeddingDimension,
		rag.WithBatchSize(cfg.RAG.UpsertBatchSize),
		rag.WithFetchAllLimit(cfg.RAG.FetchAllLimit),
	)
	a.pipeline = rag.NewPipeline(llm,
		rag.WithChunkRetries(cfg.RAG.ChunkMaxRetries),
		rag.WithRetryDelay(cfg.LLM.RetryDelay()),
	)
	a.assembler = rag.NewAssembler(llm, cfg.RAG.PreviewLength)
	return a, nil
}

func (a *App) newRAGService(opts ...appsvc.RAGOption) *appsvc.RAGService {
	cfg := a.Config
	return appsvc.NewRAGService(a.llm, a.pipeline, a.gateway, a.assembler, appsvc.RAGConfig{
		ChunkSize:          cfg.RAG.ChunkSize,
		ChunkOverlap:       cfg.RAG.ChunkOverlap,
		Strategy:           rag.Strategy(cfg.RAG.Strategy),
		TopK:               cfg.RAG.TopK,
		EmbedConcurrency:   cfg.RAG.EmbedConcurrency,
		MaxContextMessages: cfg.LLM.MaxContextMessage,
	}, opts...)
}

func (a *App) connectQueue(ctx context.Context) error {
	cfg := a.Config

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	a.RAGService = a.newRAGService(
		appsvc.WithProgressStore(cache.NewProgressCache(redisCli, time.Duration(cfg.Redis.ProgressTTLSeconds)*time.Second)),
		appsvc.WithHistoryStore(cache.NewConversationCache(redisCli,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second, cfg.LLM.MaxContextMessage)),
		appsvc.WithJobPublisher(rabbitmqClient.NewIngestPublisher(mqConn, cfg.RabbitMQ.IngestQueue)),
	)

	a.IngestWorker = worker.NewIngestWorker(mqConn, a.RAGService, cfg.RabbitMQ.IngestQueue)
	if err := a.IngestWorker.Start(logging.NewContext(ctx, a.Logger.With("component", "ingest_worker"))); err != nil {
		return fmt.Errorf("start ingest worker failed: %w", err)
	}
	return nil
}

// HealthChecks lists a check for every connected dependency.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.MySQL != nil {
		checks["mysql"] = func(ctx context.Context) error {
			sqlDB, err := a.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if a.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
