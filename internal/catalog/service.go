package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/arbiterhq/arbiter/internal/permcache"
)

// RepositoryPort defines the persistence the catalog service needs.
type RepositoryPort interface {
	PermissionByCode(ctx context.Context, code string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListByCategory(ctx context.Context, category Category) ([]Permission, error)
	DependenciesOf(ctx context.Context, code string) ([]string, error)
	Seed(ctx context.Context, defs []Permission, deps Dependencies) error
}

// Service answers catalog lookups with cache-first reads.
type Service struct {
	repo   RepositoryPort
	cache  *permcache.Store
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, cache *permcache.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Seed validates the static dependency relation for cycles and writes the
// catalog to the store. It is safe to run repeatedly.
func (s *Service) Seed(ctx context.Context) error {
	deps := SeedDependencies()
	if err := deps.Validate(); err != nil {
		return fmt.Errorf("catalog: refusing to seed: %w", err)
	}
	if err := s.repo.Seed(ctx, Definitions(), deps); err != nil {
		return err
	}
	s.cache.DeletePattern(ctx, permcache.UserPermissionsPrefix())
	return nil
}

// PermissionByCode looks up one permission definition, cache first.
func (s *Service) PermissionByCode(ctx context.Context, code string) (Permission, error) {
	key := permcache.PermissionByCodeKey(code)
	var cached Permission
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	perm, err := s.repo.PermissionByCode(ctx, code)
	if err != nil {
		return Permission{}, err
	}
	s.cache.Set(ctx, key, perm, s.cache.DependencyTTL())
	return perm, nil
}

// DependenciesOf returns the direct dependencies of a code, cache first.
func (s *Service) DependenciesOf(ctx context.Context, code string) ([]string, error) {
	key := permcache.PermissionDepsKey(code)
	var cached []string
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	deps, err := s.repo.DependenciesOf(ctx, code)
	if err != nil {
		return nil, err
	}
	if deps == nil {
		deps = []string{}
	}
	s.cache.Set(ctx, key, deps, s.cache.DependencyTTL())
	return deps, nil
}

// Missing reports which direct dependencies of the requested codes are
// absent from the held set. The result is sorted and deduplicated.
func (s *Service) Missing(ctx context.Context, held map[string]struct{}, codes ...string) ([]string, error) {
	seen := make(map[string]struct{})
	var missing []string
	for _, code := range codes {
		deps, err := s.DependenciesOf(ctx, code)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			if _, ok := held[dep]; ok {
				continue
			}
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			missing = append(missing, dep)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// ListPermissions returns the full catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// ListByCategory returns permissions within one category.
func (s *Service) ListByCategory(ctx context.Context, category Category) ([]Permission, error) {
	return s.repo.ListByCategory(ctx, category)
}
