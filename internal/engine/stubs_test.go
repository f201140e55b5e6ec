package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/grants"
	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/users"
)

// fakeWorld is an in-memory stand-in for every port the engine uses.
type fakeWorld struct {
	users     map[uuid.UUID]users.User
	perms     map[string]catalog.Permission
	deps      map[string][]string
	direct    map[uuid.UUID][]grants.Grant
	roles     map[uuid.UUID]hierarchy.Role
	rolePerms map[uuid.UUID][]hierarchy.RolePermission
	userRoles map[uuid.UUID][]grants.RoleAssignment
	audits    []audit.Entry
	now       time.Time
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		users:     make(map[uuid.UUID]users.User),
		perms:     make(map[string]catalog.Permission),
		deps:      make(map[string][]string),
		direct:    make(map[uuid.UUID][]grants.Grant),
		roles:     make(map[uuid.UUID]hierarchy.Role),
		rolePerms: make(map[uuid.UUID][]hierarchy.RolePermission),
		userRoles: make(map[uuid.UUID][]grants.RoleAssignment),
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeWorld) addUser(t users.Type, active bool) uuid.UUID {
	id := uuid.New()
	f.users[id] = users.User{ID: id, Type: t, IsActive: active}
	return id
}

func (f *fakeWorld) addPermission(code string, risk catalog.RiskLevel, deps ...string) catalog.Permission {
	p := catalog.Permission{ID: uuid.New(), Code: code, RiskLevel: risk, RequiresApproval: risk.Elevated()}
	f.perms[code] = p
	f.deps[code] = deps
	return p
}

func (f *fakeWorld) grantDirect(userID uuid.UUID, code string, expiresAt *time.Time) {
	f.direct[userID] = append(f.direct[userID], grants.Grant{
		Permission: f.perms[code],
		UserID:     userID,
		GrantedAt:  f.now,
		ExpiresAt:  expiresAt,
	})
}

func (f *fakeWorld) addRole(name string, codes ...string) uuid.UUID {
	id := uuid.New()
	f.roles[id] = hierarchy.Role{ID: id, Name: name}
	for _, code := range codes {
		f.rolePerms[id] = append(f.rolePerms[id], hierarchy.RolePermission{
			Permission:     f.perms[code],
			SourceRoleID:   id,
			SourceRoleName: name,
		})
	}
	return id
}

func (f *fakeWorld) assignRole(userID, roleID uuid.UUID) {
	f.userRoles[userID] = append(f.userRoles[userID], grants.RoleAssignment{
		UserID:   userID,
		RoleID:   roleID,
		RoleName: f.roles[roleID].Name,
	})
}

// UserStore

func (f *fakeWorld) GetUser(_ context.Context, id uuid.UUID) (users.User, error) {
	u, ok := f.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (f *fakeWorld) UpdateUserType(_ context.Context, id uuid.UUID, newType users.Type) (users.Type, error) {
	u, ok := f.users[id]
	if !ok {
		return "", users.ErrNotFound
	}
	prev := u.Type
	u.Type = newType
	f.users[id] = u
	return prev, nil
}

// CatalogPort

func (f *fakeWorld) PermissionByCode(_ context.Context, code string) (catalog.Permission, error) {
	p, ok := f.perms[code]
	if !ok {
		return catalog.Permission{}, catalog.ErrNotFound
	}
	return p, nil
}

func (f *fakeWorld) Missing(_ context.Context, held map[string]struct{}, codes ...string) ([]string, error) {
	var missing []string
	for _, code := range codes {
		for _, dep := range f.deps[code] {
			if _, ok := held[dep]; !ok {
				missing = append(missing, dep)
			}
		}
	}
	return missing, nil
}

// GrantStore

func (f *fakeWorld) DirectGrants(_ context.Context, userID uuid.UUID) ([]grants.Grant, error) {
	return f.direct[userID], nil
}

func (f *fakeWorld) InsertGrant(_ context.Context, userID, permissionID uuid.UUID, grantedBy *uuid.UUID, expiresAt *time.Time, reason string) error {
	for _, g := range f.direct[userID] {
		if g.Permission.ID == permissionID {
			return grants.ErrDuplicateGrant
		}
	}
	var perm catalog.Permission
	for _, p := range f.perms {
		if p.ID == permissionID {
			perm = p
		}
	}
	f.direct[userID] = append(f.direct[userID], grants.Grant{
		Permission: perm,
		UserID:     userID,
		GrantedBy:  grantedBy,
		GrantedAt:  f.now,
		ExpiresAt:  expiresAt,
		Reason:     reason,
	})
	return nil
}

func (f *fakeWorld) DeleteGrant(_ context.Context, userID, permissionID uuid.UUID) error {
	list := f.direct[userID]
	for i, g := range list {
		if g.Permission.ID == permissionID {
			f.direct[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return grants.ErrGrantNotFound
}

func (f *fakeWorld) UpdateGrantExpiry(_ context.Context, userID, permissionID uuid.UUID, expiresAt time.Time) (time.Time, error) {
	list := f.direct[userID]
	for i, g := range list {
		if g.Permission.ID == permissionID && g.ExpiresAt != nil {
			old := *g.ExpiresAt
			list[i].ExpiresAt = &expiresAt
			return old, nil
		}
	}
	return time.Time{}, grants.ErrGrantNotFound
}

func (f *fakeWorld) DeleteExpired(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	var affected []uuid.UUID
	for userID, list := range f.direct {
		var kept []grants.Grant
		for _, g := range list {
			if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
				affected = append(affected, userID)
				continue
			}
			kept = append(kept, g)
		}
		f.direct[userID] = kept
	}
	return affected, nil
}

func (f *fakeWorld) UserRoles(_ context.Context, userID uuid.UUID) ([]grants.RoleAssignment, error) {
	return f.userRoles[userID], nil
}

func (f *fakeWorld) AssignRole(_ context.Context, userID, roleID uuid.UUID, assignedBy *uuid.UUID) error {
	for _, a := range f.userRoles[userID] {
		if a.RoleID == roleID {
			return grants.ErrDuplicateAssignment
		}
	}
	f.userRoles[userID] = append(f.userRoles[userID], grants.RoleAssignment{
		UserID: userID, RoleID: roleID, AssignedBy: assignedBy,
	})
	return nil
}

func (f *fakeWorld) RemoveRole(_ context.Context, userID, roleID uuid.UUID) error {
	list := f.userRoles[userID]
	for i, a := range list {
		if a.RoleID == roleID {
			f.userRoles[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return grants.ErrAssignmentNotFound
}

// HierarchyPort

func (f *fakeWorld) RoleByID(_ context.Context, roleID uuid.UUID) (hierarchy.Role, error) {
	role, ok := f.roles[roleID]
	if !ok {
		return hierarchy.Role{}, hierarchy.ErrRoleNotFound
	}
	return role, nil
}

func (f *fakeWorld) InheritedPermissions(_ context.Context, roleID uuid.UUID) ([]hierarchy.RolePermission, error) {
	if _, ok := f.roles[roleID]; !ok {
		return nil, hierarchy.ErrRoleNotFound
	}
	return f.rolePerms[roleID], nil
}

func (f *fakeWorld) AssignPermission(_ context.Context, roleID, permissionID uuid.UUID) error {
	for _, rp := range f.rolePerms[roleID] {
		if rp.Permission.ID == permissionID {
			return hierarchy.ErrDuplicateRolePermission
		}
	}
	var perm catalog.Permission
	for _, p := range f.perms {
		if p.ID == permissionID {
			perm = p
		}
	}
	role := f.roles[roleID]
	f.rolePerms[roleID] = append(f.rolePerms[roleID], hierarchy.RolePermission{
		Permission: perm, SourceRoleID: roleID, SourceRoleName: role.Name,
	})
	return nil
}

// Auditor

func (f *fakeWorld) Record(_ context.Context, e audit.Entry) {
	f.audits = append(f.audits, e)
}

func (f *fakeWorld) lastAudit(t *testing.T) audit.Entry {
	t.Helper()
	if len(f.audits) == 0 {
		t.Fatalf("expected at least one audit entry")
	}
	return f.audits[len(f.audits)-1]
}

func newTestService(f *fakeWorld) *Service {
	svc := NewService(f, f, f, f, nil, f, slog.New(slog.DiscardHandler))
	svc.now = func() time.Time { return f.now }
	return svc
}
