// Package permcache caches resolved RBAC state in Redis. The cache is an
// advisory projection of the grant store: every read tolerates a missing or
// unreachable backend by reporting a miss, and every mutation path in the
// engine deletes the affected keys before returning.
package permcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rbac:"

// Key builders partition the key space by concern.

// UserPermissionsKey caches a user's resolved effective permission set.
func UserPermissionsKey(userID uuid.UUID) string {
	return keyPrefix + "user_permissions:" + userID.String()
}

// UserPermissionsPrefix addresses every cached user permission set.
func UserPermissionsPrefix() string {
	return keyPrefix + "user_permissions:"
}

// RolePermissionsKey caches a role's inherited permission set.
func RolePermissionsKey(roleID uuid.UUID) string {
	return keyPrefix + "role_permissions:" + roleID.String()
}

// RoleHierarchyKey caches a role's parent and child relations.
func RoleHierarchyKey(roleID uuid.UUID) string {
	return keyPrefix + "role_hierarchy:" + roleID.String()
}

// PermissionDepsKey caches the direct dependencies of a permission.
func PermissionDepsKey(code string) string {
	return keyPrefix + "permission_deps:" + code
}

// PermissionByCodeKey caches a permission definition lookup.
func PermissionByCodeKey(code string) string {
	return keyPrefix + "permission_by_code:" + code
}

// Config tunes TTLs per concern. Permission sets use a shorter TTL so a
// missed invalidation self-heals quickly; hierarchy and dependency data
// change rarely and keep longer ones.
type Config struct {
	DefaultTTL    time.Duration
	HierarchyTTL  time.Duration
	DependencyTTL time.Duration
	OpTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = time.Hour
	}
	if c.HierarchyTTL <= 0 {
		c.HierarchyTTL = 2 * time.Hour
	}
	if c.DependencyTTL <= 0 {
		c.DependencyTTL = 4 * time.Hour
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 250 * time.Millisecond
	}
	return c
}

// Store wraps the Redis client with JSON serialisation and bounded timeouts.
// A nil Store or a Store built over a nil client behaves as a permanent miss.
type Store struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger

	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
	errs    atomic.Uint64
}

// New constructs a Store. client may be nil when caching is disabled.
func New(client *redis.Client, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, cfg: cfg.withDefaults(), logger: logger}
}

// Enabled reports whether a cache backend is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// DefaultTTL is the TTL for user and role permission sets.
func (s *Store) DefaultTTL() time.Duration {
	if s == nil {
		return Config{}.withDefaults().DefaultTTL
	}
	return s.cfg.DefaultTTL
}

// HierarchyTTL is the TTL for role hierarchy relations.
func (s *Store) HierarchyTTL() time.Duration {
	if s == nil {
		return Config{}.withDefaults().HierarchyTTL
	}
	return s.cfg.HierarchyTTL
}

// DependencyTTL is the TTL for dependency and definition lookups.
func (s *Store) DependencyTTL() time.Duration {
	if s == nil {
		return Config{}.withDefaults().DependencyTTL
	}
	return s.cfg.DependencyTTL
}

// Get loads a cached value into dest. It returns false on a miss, on any
// backend failure, and when caching is disabled.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	if !s.Enabled() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		s.misses.Add(1)
		return false
	}
	if err != nil {
		s.errs.Add(1)
		s.logger.Debug("cache get degraded to miss", slog.String("key", key), slog.Any("error", err))
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		s.errs.Add(1)
		s.logger.Warn("cache entry corrupt, dropping", slog.String("key", key), slog.Any("error", err))
		s.Delete(ctx, key)
		return false
	}
	s.hits.Add(1)
	return true
}

// Set stores a value best-effort. Failures are logged, never surfaced.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		s.errs.Add(1)
		s.logger.Warn("cache set marshal", slog.String("key", key), slog.Any("error", err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		s.errs.Add(1)
		s.logger.Debug("cache set skipped", slog.String("key", key), slog.Any("error", err))
		return
	}
	s.sets.Add(1)
}

// Delete removes keys best-effort.
func (s *Store) Delete(ctx context.Context, keys ...string) {
	if !s.Enabled() || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.errs.Add(1)
		s.logger.Debug("cache delete skipped", slog.Any("error", err))
		return
	}
	s.deletes.Add(uint64(len(keys)))
}

// DeletePattern removes every key with the given prefix and returns the
// number of keys deleted. It scans instead of using KEYS to stay safe on
// shared Redis deployments.
func (s *Store) DeletePattern(ctx context.Context, prefix string) int {
	if !s.Enabled() {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, 4*s.cfg.OpTimeout)
	defer cancel()
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			s.errs.Add(1)
			s.logger.Debug("cache scan aborted", slog.String("prefix", prefix), slog.Any("error", err))
			return deleted
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				s.errs.Add(1)
				return deleted
			}
			deleted += len(keys)
			s.deletes.Add(uint64(len(keys)))
		}
		cursor = next
		if cursor == 0 {
			return deleted
		}
	}
}

// Clear removes every RBAC cache entry.
func (s *Store) Clear(ctx context.Context) int {
	return s.DeletePattern(ctx, keyPrefix)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	Sets     uint64  `json:"sets"`
	Deletes  uint64  `json:"deletes"`
	Errors   uint64  `json:"errors"`
	HitRatio float64 `json:"hit_ratio"`
	Enabled  bool    `json:"enabled"`
}

// Snapshot returns the current counters.
func (s *Store) Snapshot() Stats {
	st := Stats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Sets:    s.sets.Load(),
		Deletes: s.deletes.Load(),
		Errors:  s.errs.Load(),
		Enabled: s.Enabled(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRatio = float64(st.Hits) / float64(total)
	}
	return st
}

// Health describes the result of a cache round-trip probe.
type Health struct {
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthCheck performs a set/get/delete round trip against the backend.
func (s *Store) HealthCheck(ctx context.Context) Health {
	now := time.Now().UTC()
	if !s.Enabled() {
		return Health{Status: "disabled", CheckedAt: now}
	}
	key := keyPrefix + "health_check"
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, key, "ok", time.Minute).Err(); err != nil {
		return Health{Status: "unhealthy", Detail: err.Error(), CheckedAt: now}
	}
	val, err := s.client.Get(ctx, key).Result()
	if err != nil || val != "ok" {
		detail := "read mismatch"
		if err != nil {
			detail = err.Error()
		}
		return Health{Status: "unhealthy", Detail: detail, CheckedAt: now}
	}
	_ = s.client.Del(ctx, key).Err()
	return Health{Status: "healthy", CheckedAt: now}
}
