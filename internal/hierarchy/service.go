package hierarchy

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/permcache"
)

// RepositoryPort defines the persistence surface the service needs.
type RepositoryPort interface {
	RoleByID(ctx context.Context, id uuid.UUID) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	Parents(ctx context.Context, roleID uuid.UUID) ([]Role, []bool, error)
	Children(ctx context.Context, roleID uuid.UUID) ([]Role, error)
	InsertEdge(ctx context.Context, parentID, childID uuid.UUID, inherit bool) error
	DeleteEdge(ctx context.Context, parentID, childID uuid.UUID) error
	DirectPermissions(ctx context.Context, roleID uuid.UUID) ([]catalog.Permission, error)
	AssignPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
}

// Auditor records hierarchy mutations.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Service maintains the role graph. Every traversal is iterative with an
// explicit worklist and a visited set, so a corrupted graph degrades to a
// bounded walk instead of unbounded recursion.
type Service struct {
	repo   RepositoryPort
	cache  *permcache.Store
	audit  Auditor
	logger *slog.Logger
}

func NewService(repo RepositoryPort, cache *permcache.Store, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: auditor, logger: logger}
}

// AddEdge makes parent a parent of child. The edge is rejected when it would
// close a loop: the check walks upward from parent and refuses if child is
// already one of its ancestors. Refusals are audited just like successes.
func (s *Service) AddEdge(ctx context.Context, parentID, childID uuid.UUID, inherit bool, actorID *uuid.UUID) (Edge, error) {
	refuse := func(err error) (Edge, error) {
		s.recordEdge(ctx, audit.ActionHierarchyAdd, parentID, childID, inherit, actorID, err)
		return Edge{}, err
	}

	if parentID == childID {
		return refuse(ErrSelfEdge)
	}
	parent, err := s.repo.RoleByID(ctx, parentID)
	if err != nil {
		return refuse(err)
	}
	child, err := s.repo.RoleByID(ctx, childID)
	if err != nil {
		return refuse(err)
	}

	reachable, err := s.reachesUpward(ctx, parentID, childID)
	if err != nil {
		return refuse(err)
	}
	if reachable {
		return refuse(ErrCycle)
	}

	if err := s.repo.InsertEdge(ctx, parentID, childID, inherit); err != nil {
		return refuse(err)
	}

	s.invalidateSubtree(ctx, childID)
	s.cache.Delete(ctx, permcache.RoleHierarchyKey(parentID), permcache.RoleHierarchyKey(childID))

	s.recordEdge(ctx, audit.ActionHierarchyAdd, parentID, childID, inherit, actorID, nil)
	s.logger.Info("role hierarchy edge added",
		"parent_role", parent.Name, "child_role", child.Name, "inherit", inherit)

	return Edge{ParentRoleID: parentID, ChildRoleID: childID, InheritPermissions: inherit}, nil
}

// RemoveEdge deletes the parent/child relation.
func (s *Service) RemoveEdge(ctx context.Context, parentID, childID uuid.UUID, actorID *uuid.UUID) error {
	if err := s.repo.DeleteEdge(ctx, parentID, childID); err != nil {
		s.recordEdge(ctx, audit.ActionHierarchyRemove, parentID, childID, false, actorID, err)
		return err
	}

	s.invalidateSubtree(ctx, childID)
	s.cache.Delete(ctx, permcache.RoleHierarchyKey(parentID), permcache.RoleHierarchyKey(childID))

	s.recordEdge(ctx, audit.ActionHierarchyRemove, parentID, childID, false, actorID, nil)
	return nil
}

// recordEdge writes the single audit entry for an edge mutation; a non-nil
// err marks it as a refusal.
func (s *Service) recordEdge(ctx context.Context, action audit.Action, parentID, childID uuid.UUID, inherit bool, actorID *uuid.UUID, err error) {
	change := audit.HierarchyChange{
		ParentRoleID:       parentID,
		ChildRoleID:        childID,
		InheritPermissions: inherit,
	}
	entry := audit.Entry{
		ActorID:    actorID,
		Action:     action,
		EntityType: audit.EntityRoleHierarchy,
		EntityID:   childID.String(),
		Success:    err == nil,
	}
	if err != nil {
		change.Refusal = err.Error()
		entry.ErrorMessage = err.Error()
	}
	entry.Changes = change
	s.audit.Record(ctx, entry)
}

// InheritedPermissions resolves the full permission set of a role: its own
// direct permissions plus everything inherited along inherit-flagged edges,
// each attributed to the role that contributed it. On a shared permission
// code the contribution closest to the role wins.
func (s *Service) InheritedPermissions(ctx context.Context, roleID uuid.UUID) ([]RolePermission, error) {
	key := permcache.RolePermissionsKey(roleID)
	var cached []RolePermission
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	root, err := s.repo.RoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}

	type item struct {
		role Role
	}
	visited := map[uuid.UUID]struct{}{roleID: {}}
	queue := []item{{role: root}}
	byCode := make(map[string]RolePermission)
	var order []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		perms, err := s.repo.DirectPermissions(ctx, cur.role.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			if _, dup := byCode[p.Code]; dup {
				continue
			}
			byCode[p.Code] = RolePermission{
				Permission:     p,
				SourceRoleID:   cur.role.ID,
				SourceRoleName: cur.role.Name,
			}
			order = append(order, p.Code)
		}

		parents, inherits, err := s.repo.Parents(ctx, cur.role.ID)
		if err != nil {
			return nil, err
		}
		for i, parent := range parents {
			if !inherits[i] {
				continue
			}
			if _, seen := visited[parent.ID]; seen {
				continue
			}
			visited[parent.ID] = struct{}{}
			queue = append(queue, item{role: parent})
		}
	}

	result := make([]RolePermission, 0, len(order))
	for _, code := range order {
		result = append(result, byCode[code])
	}
	s.cache.Set(ctx, key, result, s.cache.DefaultTTL())
	return result, nil
}

// Ancestors returns every role reachable upward from roleID, nearest first.
func (s *Service) Ancestors(ctx context.Context, roleID uuid.UUID) ([]Role, error) {
	if _, err := s.repo.RoleByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.walk(ctx, roleID, func(ctx context.Context, id uuid.UUID) ([]Role, error) {
		parents, _, err := s.repo.Parents(ctx, id)
		return parents, err
	})
}

// Descendants returns every role reachable downward from roleID, nearest first.
func (s *Service) Descendants(ctx context.Context, roleID uuid.UUID) ([]Role, error) {
	if _, err := s.repo.RoleByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.walk(ctx, roleID, s.repo.Children)
}

// RoleRelations returns the immediate parents and children of a role.
func (s *Service) RoleRelations(ctx context.Context, roleID uuid.UUID) (Relations, error) {
	key := permcache.RoleHierarchyKey(roleID)
	var cached Relations
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	if _, err := s.repo.RoleByID(ctx, roleID); err != nil {
		return Relations{}, err
	}
	parents, _, err := s.repo.Parents(ctx, roleID)
	if err != nil {
		return Relations{}, err
	}
	children, err := s.repo.Children(ctx, roleID)
	if err != nil {
		return Relations{}, err
	}
	if parents == nil {
		parents = []Role{}
	}
	if children == nil {
		children = []Role{}
	}
	rel := Relations{RoleID: roleID, Parents: parents, Children: children}
	s.cache.Set(ctx, key, rel, s.cache.HierarchyTTL())
	return rel, nil
}

// ListRoles returns every role.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// RoleByID returns one role.
func (s *Service) RoleByID(ctx context.Context, roleID uuid.UUID) (Role, error) {
	return s.repo.RoleByID(ctx, roleID)
}

// AssignPermission attaches a permission to a role and drops the cached
// permission sets that the change can affect.
func (s *Service) AssignPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	if err := s.repo.AssignPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.invalidateSubtree(ctx, roleID)
	return nil
}

// reachesUpward reports whether target is reachable from start by following
// parent links.
func (s *Service) reachesUpward(ctx context.Context, start, target uuid.UUID) (bool, error) {
	visited := map[uuid.UUID]struct{}{start: {}}
	stack := []uuid.UUID{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true, nil
		}
		parents, _, err := s.repo.Parents(ctx, cur)
		if err != nil {
			return false, err
		}
		for _, p := range parents {
			if _, seen := visited[p.ID]; seen {
				continue
			}
			visited[p.ID] = struct{}{}
			stack = append(stack, p.ID)
		}
	}
	return false, nil
}

func (s *Service) walk(ctx context.Context, start uuid.UUID, next func(context.Context, uuid.UUID) ([]Role, error)) ([]Role, error) {
	visited := map[uuid.UUID]struct{}{start: {}}
	queue := []uuid.UUID{start}
	var out []Role
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		neighbours, err := next(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbours {
			if _, seen := visited[n.ID]; seen {
				continue
			}
			visited[n.ID] = struct{}{}
			out = append(out, n)
			queue = append(queue, n.ID)
		}
	}
	return out, nil
}

// invalidateSubtree drops the cached permission set of the role and every
// descendant, then every cached user permission set. User sets cannot be
// mapped back to roles cheaply, so the whole partition goes.
func (s *Service) invalidateSubtree(ctx context.Context, roleID uuid.UUID) {
	keys := []string{permcache.RolePermissionsKey(roleID)}
	descendants, err := s.Descendants(ctx, roleID)
	if err != nil {
		s.logger.Warn("subtree walk for invalidation failed, clearing role partition only",
			"role_id", roleID, "error", err)
	}
	for _, d := range descendants {
		keys = append(keys, permcache.RolePermissionsKey(d.ID))
	}
	s.cache.Delete(ctx, keys...)
	s.cache.DeletePattern(ctx, permcache.UserPermissionsPrefix())
}
