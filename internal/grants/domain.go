// Package grants stores direct permission grants and role assignments.
package grants

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/catalog"
)

var (
	// ErrDuplicateGrant is returned when a user already holds the permission.
	ErrDuplicateGrant = errors.New("grants: permission already granted")
	// ErrGrantNotFound is returned when no matching grant exists.
	ErrGrantNotFound = errors.New("grants: grant not found")
	// ErrDuplicateAssignment is returned when the user already has the role.
	ErrDuplicateAssignment = errors.New("grants: role already assigned")
	// ErrAssignmentNotFound is returned when no matching assignment exists.
	ErrAssignmentNotFound = errors.New("grants: role assignment not found")
)

// Grant is one direct permission held by a user. ExpiresAt is nil for
// permanent grants; temporary grants carry the moment they stop counting.
type Grant struct {
	catalog.Permission
	UserID    uuid.UUID  `json:"user_id"`
	GrantedBy *uuid.UUID `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Active reports whether the grant still counts at the given instant.
// A grant expiring exactly at now is already expired.
func (g Grant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// Temporary reports whether the grant carries an expiry.
func (g Grant) Temporary() bool {
	return g.ExpiresAt != nil
}

// RoleAssignment ties a user to a role in the hierarchy.
type RoleAssignment struct {
	UserID     uuid.UUID  `json:"user_id"`
	RoleID     uuid.UUID  `json:"role_id"`
	RoleName   string     `json:"role_name"`
	AssignedBy *uuid.UUID `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
}
