package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/grants"
	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/permcache"
	"github.com/arbiterhq/arbiter/internal/users"
)

// GrantStore is the grant persistence the engine needs.
type GrantStore interface {
	DirectGrants(ctx context.Context, userID uuid.UUID) ([]grants.Grant, error)
	InsertGrant(ctx context.Context, userID, permissionID uuid.UUID, grantedBy *uuid.UUID, expiresAt *time.Time, reason string) error
	DeleteGrant(ctx context.Context, userID, permissionID uuid.UUID) error
	UpdateGrantExpiry(ctx context.Context, userID, permissionID uuid.UUID, expiresAt time.Time) (time.Time, error)
	DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	UserRoles(ctx context.Context, userID uuid.UUID) ([]grants.RoleAssignment, error)
	AssignRole(ctx context.Context, userID, roleID uuid.UUID, assignedBy *uuid.UUID) error
	RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error
}

// UserStore is the user persistence the engine needs.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (users.User, error)
	UpdateUserType(ctx context.Context, id uuid.UUID, newType users.Type) (users.Type, error)
}

// CatalogPort answers permission definition and dependency lookups.
type CatalogPort interface {
	PermissionByCode(ctx context.Context, code string) (catalog.Permission, error)
	Missing(ctx context.Context, held map[string]struct{}, codes ...string) ([]string, error)
}

// HierarchyPort resolves role permission sets.
type HierarchyPort interface {
	RoleByID(ctx context.Context, roleID uuid.UUID) (hierarchy.Role, error)
	InheritedPermissions(ctx context.Context, roleID uuid.UUID) ([]hierarchy.RolePermission, error)
	AssignPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
}

// Auditor records gated mutations.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Service is the resolution engine and authorization gate.
type Service struct {
	grantsRepo GrantStore
	usersRepo  UserStore
	catalog    CatalogPort
	hierarchy  HierarchyPort
	cache      *permcache.Store
	audit      Auditor
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(
	grantsRepo GrantStore,
	usersRepo UserStore,
	catalogPort CatalogPort,
	hierarchyPort HierarchyPort,
	cache *permcache.Store,
	auditor Auditor,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		grantsRepo: grantsRepo,
		usersRepo:  usersRepo,
		catalog:    catalogPort,
		hierarchy:  hierarchyPort,
		cache:      cache,
		audit:      auditor,
		logger:     logger,
		now:        time.Now,
	}
}

// EffectivePermissions resolves everything a user can do right now: active
// direct grants plus permissions inherited through assigned roles. Expired
// grants are filtered at read time even before the sweep removes them.
func (s *Service) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]EffectivePermission, error) {
	key := permcache.UserPermissionsKey(userID)
	var cached []EffectivePermission
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	if _, err := s.usersRepo.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	direct, err := s.grantsRepo.DirectGrants(ctx, userID)
	if err != nil {
		return nil, err
	}

	byCode := make(map[string]EffectivePermission)
	for _, g := range direct {
		if !g.Active(now) {
			continue
		}
		byCode[g.Code] = EffectivePermission{
			Permission: g.Permission,
			Source:     SourceDirect,
			ExpiresAt:  g.ExpiresAt,
		}
	}

	assignments, err := s.grantsRepo.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		rolePerms, err := s.hierarchy.InheritedPermissions(ctx, a.RoleID)
		if err != nil {
			if errors.Is(err, hierarchy.ErrRoleNotFound) {
				s.logger.Warn("skipping assignment to missing role",
					"user_id", userID, "role_id", a.RoleID)
				continue
			}
			return nil, err
		}
		for _, rp := range rolePerms {
			if _, held := byCode[rp.Code]; held {
				continue
			}
			sourceID := rp.SourceRoleID
			byCode[rp.Code] = EffectivePermission{
				Permission:     rp.Permission,
				Source:         SourceRole,
				SourceRoleID:   &sourceID,
				SourceRoleName: rp.SourceRoleName,
			}
		}
	}

	result := make([]EffectivePermission, 0, len(byCode))
	for _, p := range byCode {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })

	s.cache.Set(ctx, key, result, s.cache.DefaultTTL())
	return result, nil
}

// HasPermission reports whether the user's effective set contains the code.
func (s *Service) HasPermission(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	held, err := s.heldCodes(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := held[code]
	return ok, nil
}

// CheckPermissionWithRisk reports whether the user can exercise the
// permission. When requireDeps is set, holding the code is not enough: if any
// of its direct dependencies is absent from the effective set the check fails
// and the missing codes are reported. With requireDeps false the dependency
// walk is skipped and possession alone decides.
func (s *Service) CheckPermissionWithRisk(ctx context.Context, userID uuid.UUID, code string, requireDeps bool) (CheckResult, error) {
	perm, err := s.catalog.PermissionByCode(ctx, code)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return CheckResult{PermissionCode: code, RiskLevel: catalog.RiskLow}, nil
		}
		return CheckResult{}, err
	}

	result := CheckResult{
		PermissionCode:   code,
		RiskLevel:        perm.RiskLevel,
		RequiresApproval: perm.RequiresApproval,
	}

	held, err := s.heldCodes(ctx, userID)
	if err != nil {
		return CheckResult{}, err
	}
	if _, ok := held[code]; !ok {
		return result, nil
	}

	if requireDeps {
		missing, err := s.catalog.Missing(ctx, held, code)
		if err != nil {
			return CheckResult{}, err
		}
		if len(missing) > 0 {
			result.MissingDependencies = missing
			return result, nil
		}
	}

	result.HasPermission = true
	return result, nil
}

// TemporaryPermissions lists the user's unexpired temporary grants, soonest
// expiry first, together with active/expired tallies over all temporary grants
// the user has ever held that are still on record.
func (s *Service) TemporaryPermissions(ctx context.Context, userID uuid.UUID) (TemporaryReport, error) {
	if _, err := s.usersRepo.GetUser(ctx, userID); err != nil {
		return TemporaryReport{}, err
	}
	now := s.now().UTC()
	all, err := s.grantsRepo.DirectGrants(ctx, userID)
	if err != nil {
		return TemporaryReport{}, err
	}
	report := TemporaryReport{Grants: []grants.Grant{}}
	for _, g := range all {
		if !g.Temporary() {
			continue
		}
		if g.Active(now) {
			report.ActiveCount++
			report.Grants = append(report.Grants, g)
		} else {
			report.ExpiredCount++
		}
	}
	sort.Slice(report.Grants, func(i, j int) bool {
		return report.Grants[i].ExpiresAt.Before(*report.Grants[j].ExpiresAt)
	})
	return report, nil
}

func (s *Service) heldCodes(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		held[p.Code] = struct{}{}
	}
	return held, nil
}

func (s *Service) invalidateUser(ctx context.Context, userID uuid.UUID) {
	s.cache.Delete(ctx, permcache.UserPermissionsKey(userID))
}
