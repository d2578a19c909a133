package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/assets"
	"github.com/safa0/google-rangerz/internal/client"
	"github.com/safa0/google-rangerz/internal/config"
	"github.com/safa0/google-rangerz/internal/database"
	"github.com/safa0/google-rangerz/internal/metrics"
	"github.com/safa0/google-rangerz/internal/repository"
	"github.com/safa0/google-rangerz/internal/service"
	"github.com/safa0/google-rangerz/pkg/ai"
)

// newTextGenerator выбирает сервис генерации текста по TEXT_BACKEND.
func newTextGenerator(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (service.TextGenerator, error) {
	aiCfg := ai.Config{
		APIKey:      cfg.Text.APIKey,
		BaseURL:     cfg.Text.BaseURL,
		ModelName:   cfg.Text.Model,
		Timeout:     cfg.Text.Timeout,
		Temperature: cfg.Text.Temperature,
		MaxTokens:   cfg.Text.MaxTokens,
	}
	recordUsage := func(model string, usage ai.UsageInfo) {
		m.TokensUsed(model, usage.PromptTokens, usage.CompletionTokens)
	}

	switch cfg.Text.Backend {
	case "openai":
		return ai.NewOpenAITextGenerator(aiCfg, logger, recordUsage)
	case "ollama":
		return ai.NewOllamaTextGenerator(aiCfg, logger, recordUsage)
	default:
		return client.NewTextServiceClient(cfg.Text.BaseURL, cfg.Text.Timeout, logger), nil
	}
}

// newImageGenerator выбирает сервис генерации картинок по IMAGE_BACKEND.
func newImageGenerator(cfg *config.Config, logger *zap.Logger) (service.ImageGenerator, error) {
	if cfg.Image.Backend == "openai" {
		return ai.NewOpenAIImageGenerator(ai.ImageConfig{
			APIKey:  cfg.Image.APIKey,
			BaseURL: cfg.Image.BaseURL,
			Model:   cfg.Image.Model,
			Size:    cfg.Image.Size,
			Timeout: cfg.Image.Timeout,
		}, logger)
	}
	return client.NewImageServiceClient(cfg.Image.BaseURL, cfg.Image.Timeout, logger), nil
}

// setupStories PostgreSQL, если задан DB_HOST, иначе хранилище в памяти.
func setupStories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.StoryRepository, *pgxpool.Pool, error) {
	if !cfg.UsePostgres() {
		logger.Warn("DB_HOST not set, using in-memory story repository")
		return repository.NewMemoryStoryRepository(), nil, nil
	}

	logger.Info("Connecting to PostgreSQL", zap.String("dsn", cfg.MaskedDSN()))
	pool, err := database.NewPool(ctx, database.PoolConfig{
		DSN:         cfg.GetDSN(),
		MaxConns:    cfg.DB.MaxConns,
		IdleTimeout: cfg.DB.IdleTimeout,
		MaxRetries:  5,
		RetryDelay:  3 * time.Second,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DB.Migrate {
		if err := database.NewMigrator(pool, logger).Up(); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return repository.NewPgStoryRepository(pool, logger), pool, nil
}

// setupCancels Redis, если задан REDIS_ADDR, иначе реестр в памяти.
func setupCancels(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.CancelRegistry, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Warn("REDIS_ADDR not set, using in-memory cancel registry")
		return repository.NewMemoryCancelRegistry(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	return repository.NewRedisCancelRegistry(rdb, cfg.Redis.CancelTTL, logger), closeFn, nil
}

// setupAssets локальная папка или бакет GCS.
func setupAssets(ctx context.Context, cfg *config.Config, logger *zap.Logger) (assets.Store, func(), error) {
	if cfg.Assets.Backend == "gcs" {
		store, err := assets.NewGCSStore(ctx, cfg.Assets.GCSBucket, cfg.Assets.CredentialsFile, cfg.Assets.PublicBaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close GCS client", zap.Error(err))
			}
		}, nil
	}
	store, err := assets.NewLocalStore(cfg.Assets.LocalDir, cfg.Assets.PublicBaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

// connectRabbitMQ подключается с повторами.
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	const maxRetries = 5
	const retryDelay = 5 * time.Second

	var conn *amqp.Connection
	var err error
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying",
			zap.Int("attempt", i+1), zap.Int("max_attempts", maxRetries), zap.Duration("delay", retryDelay), zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// newController собирает контроллер сессий из конфигурации.
func newController(cfg *config.Config, text service.TextGenerator, images service.ImageGenerator, deps service.ControllerDeps, m *metrics.Metrics, logger *zap.Logger) (*service.StoryController, error) {
	selector, err := service.NewChoiceSelector(cfg.Generation.ChoicePolicy)
	if err != nil {
		return nil, err
	}
	exercises, err := cfg.ExerciseTypes()
	if err != nil {
		return nil, err
	}

	acquirer := service.NewImageAcquirer(images, cfg.Image.StyleSuffix, cfg.Image.Timeout, m, logger)
	deps.Text = text
	deps.Engine = service.NewTurnEngine(text, acquirer, selector, cfg.Text.Model, cfg.Text.Timeout, m, logger)
	deps.Persister = service.NewChapterPersister(deps.Stories, deps.Assets, m, logger)
	deps.Exercises = service.RoundRobinExercises(exercises)
	deps.Metrics = m

	return service.NewStoryController(deps, service.ControllerConfig{
		TotalSteps: cfg.Generation.TotalSteps,
		Model:      cfg.Text.Model,
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.Generation.MaxAttempts,
			BaseDelay:   cfg.Generation.BaseRetryDelay,
			MaxDelay:    cfg.Generation.MaxRetryDelay,
		},
		Thumbnails:     cfg.Generation.Thumbnails,
		ThumbnailWidth: cfg.Generation.ThumbnailWidth,
	}, logger), nil
}
