package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/arbiterhq/arbiter/internal/app"
	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/grants"
	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/permcache"
	rediscache "github.com/arbiterhq/arbiter/internal/platform/cache"
	"github.com/arbiterhq/arbiter/internal/platform/db"
	"github.com/arbiterhq/arbiter/internal/users"
	"github.com/arbiterhq/arbiter/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.Connect(ctx, db.Config{
		DSN:            cfg.PGDSN,
		MaxConns:       cfg.PGMaxConns,
		ConnectTimeout: cfg.PGConnectTimeout,
	})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := rediscache.Connect(ctx, cfg.RedisAddr, cfg.RedisDialTimeout)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	cache := permcache.New(redisClient, permcache.Config{
		DefaultTTL:    cfg.CacheDefaultTTL,
		HierarchyTTL:  cfg.CacheHierarchyTTL,
		DependencyTTL: cfg.CacheDependencyTTL,
		OpTimeout:     cfg.CacheOpTimeout,
	}, logger)

	auditService := audit.NewService(audit.NewRepository(pool), logger)
	catalogService := catalog.NewService(catalog.NewRepository(pool), cache, logger)
	hierarchyService := hierarchy.NewService(hierarchy.NewRepository(pool), cache, auditService, logger)
	usersRepo := users.NewRepository(pool)
	engineService := engine.NewService(
		grants.NewRepository(pool),
		usersRepo,
		catalogService,
		hierarchyService,
		cache,
		auditService,
		logger,
	)

	cleanupJob := jobs.NewCleanupExpiredJob(engineService, logger)
	warmupJob := jobs.NewCacheWarmupJob(engineService, usersRepo, logger)

	warmupTask, err := jobs.NewCacheWarmupTask(jobs.CacheWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCleanupExpired, Handler: cleanupJob.Handle},
			{Type: jobs.TaskCacheWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CleanupSchedule, Task: jobs.NewCleanupExpiredTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.WarmupSchedule, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
