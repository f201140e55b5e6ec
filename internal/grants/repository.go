package grants

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/platform/db"
)

// Repository persists grants and role assignments in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const grantColumns = `
	p.id, p.code, p.name, p.resource, p.action, p.category, p.risk_level, p.requires_approval, p.is_system,
	up.user_id, up.granted_by, up.granted_at, up.expires_at, COALESCE(up.reason, '')`

func scanGrant(rows pgx.Rows) (Grant, error) {
	var (
		g        Grant
		category string
		risk     string
	)
	err := rows.Scan(
		&g.ID, &g.Code, &g.Name, &g.Resource, &g.Action, &category, &risk, &g.RequiresApproval, &g.IsSystem,
		&g.UserID, &g.GrantedBy, &g.GrantedAt, &g.ExpiresAt, &g.Reason,
	)
	if err != nil {
		return Grant{}, fmt.Errorf("grants: scan grant: %w", err)
	}
	g.Category = catalog.Category(category)
	g.RiskLevel = catalog.RiskLevel(risk)
	return g, nil
}

// DirectGrants returns every grant the user holds, expired ones included.
// Callers filter by Active when resolving.
func (r *Repository) DirectGrants(ctx context.Context, userID uuid.UUID) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+grantColumns+`
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1
		ORDER BY p.code`, userID)
	if err != nil {
		return nil, fmt.Errorf("grants: list direct grants: %w", err)
	}
	defer rows.Close()
	return collectGrants(rows)
}

func collectGrants(rows pgx.Rows) ([]Grant, error) {
	var out []Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grants: iterate grants: %w", err)
	}
	return out, nil
}

// InsertGrant records a new direct grant. A second grant of the same
// permission to the same user is ErrDuplicateGrant.
func (r *Repository) InsertGrant(ctx context.Context, userID, permissionID uuid.UUID, grantedBy *uuid.UUID, expiresAt *time.Time, reason string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, granted_by, granted_at, expires_at, reason)
		VALUES ($1, $2, $3, now(), $4, NULLIF($5, ''))`,
		userID, permissionID, grantedBy, expiresAt, reason)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateGrant
		}
		return fmt.Errorf("grants: insert grant: %w", err)
	}
	return nil
}

// DeleteGrant removes a direct grant.
func (r *Repository) DeleteGrant(ctx context.Context, userID, permissionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`,
		userID, permissionID)
	if err != nil {
		return fmt.Errorf("grants: delete grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// UpdateGrantExpiry moves the expiry of an existing temporary grant and
// returns the previous expiry. Permanent grants are not eligible.
func (r *Repository) UpdateGrantExpiry(ctx context.Context, userID, permissionID uuid.UUID, expiresAt time.Time) (time.Time, error) {
	var prev *time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE user_permissions up SET expires_at = $3
		FROM (SELECT expires_at FROM user_permissions WHERE user_id = $1 AND permission_id = $2 FOR UPDATE) old
		WHERE up.user_id = $1 AND up.permission_id = $2 AND old.expires_at IS NOT NULL
		RETURNING old.expires_at`,
		userID, permissionID, expiresAt).Scan(&prev)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, ErrGrantNotFound
		}
		return time.Time{}, fmt.Errorf("grants: update grant expiry: %w", err)
	}
	return *prev, nil
}

// DeleteExpired removes every grant whose expiry is at or before now and
// returns the affected user IDs so their cache entries can be dropped.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM user_permissions
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		RETURNING user_id`, now)
	if err != nil {
		return nil, fmt.Errorf("grants: delete expired: %w", err)
	}
	defer rows.Close()

	var users []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("grants: scan expired user: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grants: iterate expired: %w", err)
	}
	return users, nil
}

// UserRoles returns the roles assigned to a user.
func (r *Repository) UserRoles(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ur.user_id, ur.role_id, ro.name, ur.assigned_by, ur.assigned_at
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ro.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("grants: list user roles: %w", err)
	}
	defer rows.Close()

	var out []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.RoleName, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("grants: scan role assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grants: iterate role assignments: %w", err)
	}
	return out, nil
}

// AssignRole ties a user to a role.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID uuid.UUID, assignedBy *uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, now())`,
		userID, roleID, assignedBy)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateAssignment
		}
		return fmt.Errorf("grants: assign role: %w", err)
	}
	return nil
}

// RemoveRole detaches a role from a user.
func (r *Repository) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID)
	if err != nil {
		return fmt.Errorf("grants: remove role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}
