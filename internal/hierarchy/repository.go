package hierarchy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/platform/db"
)

// Repository persists roles, hierarchy edges, and role permission sets.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) RoleByID(ctx context.Context, id uuid.UUID) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), is_system, created_at
		FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("hierarchy: get role: %w", err)
	}
	return role, nil
}

func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), is_system, created_at
		FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: list roles: %w", err)
	}
	defer rows.Close()
	return collectRoles(rows)
}

// Parents returns the immediate parents of a role together with the inherit
// flag of the connecting edge.
func (r *Repository) Parents(ctx context.Context, roleID uuid.UUID) ([]Role, []bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.id, ro.name, COALESCE(ro.description, ''), ro.is_system, ro.created_at, rh.inherit_permissions
		FROM role_hierarchy rh
		JOIN roles ro ON ro.id = rh.parent_role_id
		WHERE rh.child_role_id = $1
		ORDER BY ro.name`, roleID)
	if err != nil {
		return nil, nil, fmt.Errorf("hierarchy: list parents: %w", err)
	}
	defer rows.Close()

	var (
		roles    []Role
		inherits []bool
	)
	for rows.Next() {
		var (
			role    Role
			inherit bool
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &inherit); err != nil {
			return nil, nil, fmt.Errorf("hierarchy: scan parent: %w", err)
		}
		roles = append(roles, role)
		inherits = append(inherits, inherit)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("hierarchy: iterate parents: %w", err)
	}
	return roles, inherits, nil
}

// Children returns the immediate children of a role.
func (r *Repository) Children(ctx context.Context, roleID uuid.UUID) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.id, ro.name, COALESCE(ro.description, ''), ro.is_system, ro.created_at
		FROM role_hierarchy rh
		JOIN roles ro ON ro.id = rh.child_role_id
		WHERE rh.parent_role_id = $1
		ORDER BY ro.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: list children: %w", err)
	}
	defer rows.Close()
	return collectRoles(rows)
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("hierarchy: scan role: %w", err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hierarchy: iterate roles: %w", err)
	}
	return out, nil
}

func (r *Repository) InsertEdge(ctx context.Context, parentID, childID uuid.UUID, inherit bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_hierarchy (parent_role_id, child_role_id, inherit_permissions, created_at)
		VALUES ($1, $2, $3, now())`,
		parentID, childID, inherit)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateEdge
		}
		return fmt.Errorf("hierarchy: insert edge: %w", err)
	}
	return nil
}

func (r *Repository) DeleteEdge(ctx context.Context, parentID, childID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM role_hierarchy WHERE parent_role_id = $1 AND child_role_id = $2`,
		parentID, childID)
	if err != nil {
		return fmt.Errorf("hierarchy: delete edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEdgeNotFound
	}
	return nil
}

// DirectPermissions returns the permissions assigned to the role itself,
// without inheritance.
func (r *Repository) DirectPermissions(ctx context.Context, roleID uuid.UUID) ([]catalog.Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.code, p.name, p.resource, p.action, p.category, p.risk_level, p.requires_approval, p.is_system
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code`, roleID)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: list role permissions: %w", err)
	}
	defer rows.Close()

	var out []catalog.Permission
	for rows.Next() {
		var (
			p        catalog.Permission
			category string
			risk     string
		)
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Resource, &p.Action, &category, &risk, &p.RequiresApproval, &p.IsSystem); err != nil {
			return nil, fmt.Errorf("hierarchy: scan role permission: %w", err)
		}
		p.Category = catalog.Category(category)
		p.RiskLevel = catalog.RiskLevel(risk)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hierarchy: iterate role permissions: %w", err)
	}
	return out, nil
}

func (r *Repository) AssignPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, created_at)
		VALUES ($1, $2, now())`,
		roleID, permissionID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateRolePermission
		}
		return fmt.Errorf("hierarchy: assign role permission: %w", err)
	}
	return nil
}
