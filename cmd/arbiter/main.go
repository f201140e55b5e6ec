package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/arbiterhq/arbiter/internal/app"
	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/grants"
	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/observability"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// the cache is advisory: an unreachable Redis degrades to uncached reads
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = rediscache.Connect(ctx, cfg.RedisAddr, cfg.RedisDialTimeout)
		if err != nil {
			logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	cache := permcache.New(redisClient, permcache.Config{
		DefaultTTL:    cfg.CacheDefaultTTL,
		HierarchyTTL:  cfg.CacheHierarchyTTL,
		DependencyTTL: cfg.CacheDependencyTTL,
		OpTimeout:     cfg.CacheOpTimeout,
	}, logger)

	metrics := observability.NewMetrics()
	metrics.RegisterCache(cache)

	auditService := audit.NewService(audit.NewRepository(pool), logger)
	catalogService := catalog.NewService(catalog.NewRepository(pool), cache, logger)
	hierarchyService := hierarchy.NewService(hierarchy.NewRepository(pool), cache, auditService, logger)
	engineService := engine.NewService(
		grants.NewRepository(pool),
		users.NewRepository(pool),
		catalogService,
		hierarchyService,
		cache,
		auditService,
		logger,
	)

	// the catalog and its dependency graph must be loadable and acyclic
	// before the gate serves a single request
	if err := catalogService.Seed(ctx); err != nil {
		logger.Error("seed permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	var inspector *asynq.Inspector
	if cfg.RedisAddr != "" {
		inspector = asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalog.NewHandler(logger, catalogService),
		HierarchyHandler: hierarchy.NewHandler(hierarchyService),
		EngineHandler:    engine.NewHandler(engineService),
		AuditHandler:     audit.NewHandler(auditService),
		CacheHandler:     permcache.NewHandler(logger, cache),
		JobsHandler:      jobs.NewHandler(inspector, logger),
		Engine:           engineService,
		Pool:             pool,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
