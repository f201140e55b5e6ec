// Package jobs runs the background maintenance tasks over Asynq: the
// expired-grant sweep and the permission cache warmup.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCleanupExpired sweeps expired temporary grants.
	TaskCleanupExpired = "rbac:cleanup_expired"
	// TaskCacheWarmup pre-populates user permission caches.
	TaskCacheWarmup = "rbac:cache_warmup"
)

// CacheWarmupPayload bounds the number of users warmed per run.
type CacheWarmupPayload struct {
	Limit int `json:"limit"`
}

// NewCleanupExpiredTask constructs the sweep task.
func NewCleanupExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskCleanupExpired, nil)
}

// NewCacheWarmupTask constructs a warmup task.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data), nil
}
