package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/data-augmenter/internal/augmentation"
	"github.com/jonathan/data-augmenter/internal/config"
	"github.com/jonathan/data-augmenter/internal/db"
	"github.com/jonathan/data-augmenter/internal/dispatch"
	"github.com/jonathan/data-augmenter/internal/metrics"
	"github.com/jonathan/data-augmenter/internal/observability"
	"github.com/jonathan/data-augmenter/internal/pipeline"
	"github.com/jonathan/data-augmenter/internal/progress"
	"github.com/jonathan/data-augmenter/internal/storage"
	"github.com/jonathan/data-augmenter/internal/types"
)

// app holds the collaborators shared by the serve and run commands
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	store      *storage.LocalStorage
	database   *db.DB
	redis      *redis.Client
	dispatcher *dispatch.Dispatcher
	service    *pipeline.Service
}

// appOptions adjusts how newApp wires the service
type appOptions struct {
	// inMemory ignores DATABASE_URL and REDIS_URL.
	inMemory bool
	observer func(types.ProgressEvent)
}

// loadConfig resolves the effective configuration and applies --verbose
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// newLogger builds the process logger from the config
func newLogger(cfg config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if cfg.Verbose && level == "info" {
		level = "debug"
	}
	return observability.NewLogger(level, cfg.LogFormat)
}

// newApp connects storage, persistence and the progress store, then starts
// the dispatcher. Postgres backs pipeline records when DATABASE_URL is set;
// Redis, then Postgres, then memory back the progress log.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	a.metrics = m

	a.store, err = storage.NewLocalStorage(cfg.StorageRoot)
	if err != nil {
		return nil, err
	}

	var repo pipeline.Repository = pipeline.NewMemoryRepository()
	var events progress.Store = progress.NewMemoryStore()

	if !opts.inMemory && cfg.DatabaseURL != "" {
		a.database, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if _, err := a.database.Migrate(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		repo = a.database
		events = progress.NewPostgresStore(a.database)
	}

	if !opts.inMemory && cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(redisOpts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		events = progress.NewRedisStore(a.redis, cfg.RedisPrefix, cfg.ProgressExpiry())
	}

	// The dispatcher reports failures to the service and the service submits to
	// the dispatcher, so the failure hook resolves the service lazily.
	a.dispatcher = dispatch.New(dispatch.Options{
		Workers:    cfg.Workers,
		JobTimeout: cfg.JobTimeout.Std(),
		OnFailure: func(id uuid.UUID, err error) {
			a.service.HandleJobFailure(id, err)
		},
		Metrics: m,
		Logger:  logger,
	})

	svcOpts := []pipeline.Option{
		pipeline.WithMetrics(m),
		pipeline.WithEngineOptions(augmentation.Options{
			Workers:   cfg.EngineWorkers,
			BatchSize: cfg.BatchSize,
		}),
	}
	if opts.observer != nil {
		svcOpts = append(svcOpts, pipeline.WithObserver(opts.observer))
	}
	a.service = pipeline.NewService(repo, events, a.store, a.dispatcher, logger, svcOpts...)

	logger.Info("service ready",
		zap.String("storage_root", a.store.Root()),
		zap.Bool("postgres", a.database != nil),
		zap.Bool("redis", a.redis != nil),
		zap.Int("workers", cfg.Workers))
	return a, nil
}

// healthCheck pings the external stores in use
func (a *app) healthCheck(ctx context.Context) error {
	if a.database != nil {
		if err := a.database.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// shutdown drains the dispatcher, then releases connections
func (a *app) shutdown(timeout time.Duration) {
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.dispatcher.Shutdown(ctx); err != nil {
			a.logger.Warn("dispatcher did not drain", zap.Error(err))
		}
	}
	a.close()
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}
