package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/users"
)

const (
	defaultWarmupLimit = 100
	warmupConcurrency  = 8
)

// UserLister enumerates users whose permission sets are worth warming.
type UserLister interface {
	ListUsers(ctx context.Context) ([]users.User, error)
}

// CacheWarmupJob resolves permission sets ahead of demand so the first
// request after an invalidation does not pay the resolution cost.
type CacheWarmupJob struct {
	Engine *engine.Service
	Users  UserLister
	Logger *slog.Logger
}

func NewCacheWarmupJob(engineSvc *engine.Service, userLister UserLister, logger *slog.Logger) *CacheWarmupJob {
	return &CacheWarmupJob{Engine: engineSvc, Users: userLister, Logger: logger}
}

// Handle processes TaskCacheWarmup tasks. Resolutions run concurrently; a
// single failed user is logged and skipped, not retried.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil || j.Users == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultWarmupLimit
	}

	list, err := j.Users.ListUsers(ctx)
	if err != nil {
		j.Logger.Error("cache warmup: list users", slog.Any("error", err))
		return err
	}

	var warmed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)

	scheduled := 0
	for _, u := range list {
		if scheduled >= payload.Limit {
			break
		}
		if !u.IsActive {
			continue
		}
		scheduled++
		g.Go(func() error {
			if _, err := j.Engine.EffectivePermissions(gctx, u.ID); err != nil {
				j.Logger.Warn("cache warmup: resolve failed",
					slog.String("user_id", u.ID.String()), slog.Any("error", err))
				return nil
			}
			warmed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	j.Logger.Info("cache warmup finished", slog.Int64("warmed", warmed.Load()))
	return nil
}
