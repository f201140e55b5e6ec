package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/arbiterhq/arbiter/internal/engine"
)

// CleanupExpiredJob sweeps expired temporary grants on a schedule.
type CleanupExpiredJob struct {
	Engine *engine.Service
	Logger *slog.Logger
}

func NewCleanupExpiredJob(engineSvc *engine.Service, logger *slog.Logger) *CleanupExpiredJob {
	return &CleanupExpiredJob{Engine: engineSvc, Logger: logger}
}

// Handle processes TaskCleanupExpired tasks.
func (j *CleanupExpiredJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("cleanup expired: handler not configured")
	}
	cleaned, err := j.Engine.CleanupExpired(ctx)
	if err != nil {
		j.Logger.Error("expired grant sweep failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("expired grant sweep finished", slog.Int("cleaned", cleaned))
	return nil
}
