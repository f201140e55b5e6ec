package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbiterhq/arbiter/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `id, code, name, resource, action, category, risk_level, requires_approval, is_system`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Resource, &p.Action, &p.Category, &p.RiskLevel, &p.RequiresApproval, &p.IsSystem)
	return p, err
}

// PermissionByCode fetches a single permission definition.
func (r *Repository) PermissionByCode(ctx context.Context, code string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE code = $1`, code)
	p, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// ListPermissions returns the full catalog ordered by code.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// ListByCategory returns permissions in one category ordered by code.
func (r *Repository) ListByCategory(ctx context.Context, category Category) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE category = $1 ORDER BY code`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// DependenciesOf returns the direct dependency codes of a permission.
func (r *Repository) DependenciesOf(ctx context.Context, code string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT depends_on_code FROM permission_dependencies WHERE permission_code = $1 ORDER BY depends_on_code`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// Seed upserts the permission definitions and replaces the dependency
// edges in a single transaction.
func (r *Repository) Seed(ctx context.Context, defs []Permission, deps Dependencies) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, def := range defs {
			id := def.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO permissions (id, code, name, resource, action, category, risk_level, requires_approval, is_system)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (code) DO UPDATE SET
					name = EXCLUDED.name,
					resource = EXCLUDED.resource,
					action = EXCLUDED.action,
					category = EXCLUDED.category,
					risk_level = EXCLUDED.risk_level,
					requires_approval = EXCLUDED.requires_approval,
					is_system = EXCLUDED.is_system`,
				id, def.Code, def.Name, def.Resource, def.Action, def.Category, def.RiskLevel, def.RequiresApproval, def.IsSystem)
			if err != nil {
				return fmt.Errorf("catalog: seed permission %s: %w", def.Code, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM permission_dependencies`); err != nil {
			return fmt.Errorf("catalog: reset dependencies: %w", err)
		}
		for code, required := range deps {
			for _, dep := range required {
				if _, err := tx.Exec(ctx, `
					INSERT INTO permission_dependencies (permission_code, depends_on_code)
					VALUES ($1, $2)`, code, dep); err != nil {
					return fmt.Errorf("catalog: seed dependency %s -> %s: %w", code, dep, err)
				}
			}
		}
		return nil
	})
}
