// Package hierarchy maintains the role graph and resolves the permissions a
// role inherits from its ancestors.
package hierarchy

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/catalog"
)

var (
	// ErrRoleNotFound indicates that the referenced role does not exist.
	ErrRoleNotFound = errors.New("hierarchy: role not found")
	// ErrSelfEdge indicates an attempt to make a role its own parent.
	ErrSelfEdge = errors.New("hierarchy: role cannot be its own parent")
	// ErrCycle indicates the edge would close a loop in the role graph.
	ErrCycle = errors.New("hierarchy: edge would create a cycle")
	// ErrDuplicateEdge indicates the parent/child relation already exists.
	ErrDuplicateEdge = errors.New("hierarchy: edge already exists")
	// ErrEdgeNotFound indicates no such parent/child relation exists.
	ErrEdgeNotFound = errors.New("hierarchy: edge not found")
	// ErrDuplicateRolePermission indicates the role already has the permission.
	ErrDuplicateRolePermission = errors.New("hierarchy: role already has permission")
)

// Role is a named collection of permissions that users can be assigned to.
type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
}

// Edge is one parent/child relation. Permissions flow parent to child when
// InheritPermissions is set.
type Edge struct {
	ParentRoleID       uuid.UUID `json:"parent_role_id"`
	ChildRoleID        uuid.UUID `json:"child_role_id"`
	InheritPermissions bool      `json:"inherit_permissions"`
	CreatedAt          time.Time `json:"created_at"`
}

// RolePermission is a permission attributed to the role it came from, which
// may be an ancestor of the role being resolved.
type RolePermission struct {
	catalog.Permission
	SourceRoleID   uuid.UUID `json:"source_role_id"`
	SourceRoleName string    `json:"source_role_name"`
}

// Relations groups a role's immediate neighbours in the graph.
type Relations struct {
	RoleID   uuid.UUID `json:"role_id"`
	Parents  []Role    `json:"parents"`
	Children []Role    `json:"children"`
}
