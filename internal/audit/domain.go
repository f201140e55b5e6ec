// Package audit records every mutating RBAC action in an append-only log.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of mutation an entry records.
type Action string

const (
	ActionGrant            Action = "GRANT_PERMISSION"
	ActionGrantFailed      Action = "GRANT_PERMISSION_FAILED"
	ActionGrantTemporary   Action = "GRANT_TEMPORARY_PERMISSION"
	ActionRevoke           Action = "REVOKE_PERMISSION"
	ActionRevokeFailed     Action = "REVOKE_PERMISSION_FAILED"
	ActionExtendTemporary  Action = "EXTEND_TEMPORARY_PERMISSION"
	ActionElevate          Action = "ELEVATE_USER_TYPE"
	ActionElevateFailed    Action = "ELEVATE_USER_TYPE_FAILED"
	ActionCleanupExpired   Action = "CLEANUP_EXPIRED_PERMISSIONS"
	ActionHierarchyAdd     Action = "ADD_ROLE_HIERARCHY"
	ActionHierarchyRemove  Action = "REMOVE_ROLE_HIERARCHY"
	ActionBulkGrant        Action = "BULK_GRANT_PERMISSIONS"
	ActionBulkRevoke       Action = "BULK_REVOKE_PERMISSIONS"
	ActionBulkAssignRoles  Action = "BULK_ASSIGN_ROLES"
	ActionBulkRemoveRoles  Action = "BULK_REMOVE_ROLES"
	ActionBulkRolePerms    Action = "BULK_ASSIGN_PERMISSIONS_TO_ROLE"
)

// EntityType names the entity an entry is about.
type EntityType string

const (
	EntityUserPermission EntityType = "USER_PERMISSION"
	EntityUserRole       EntityType = "USER_ROLE"
	EntityRolePermission EntityType = "ROLE_PERMISSION"
	EntityRoleHierarchy  EntityType = "ROLE_HIERARCHY"
	EntityUser           EntityType = "USER"
	EntitySystem         EntityType = "SYSTEM"
)

// Change payloads per action kind. Keeping these typed lets callers build
// admin views without probing an untyped blob.

// GrantChange records a grant or grant refusal.
type GrantChange struct {
	PermissionCode string     `json:"permission_code"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Refusal        string     `json:"refusal,omitempty"`
	MissingDeps    []string   `json:"missing_dependencies,omitempty"`
}

// RevokeChange records a revoke or revoke refusal.
type RevokeChange struct {
	PermissionCode string `json:"permission_code"`
	Refusal        string `json:"refusal,omitempty"`
}

// ExtendChange records an expiry extension on a temporary grant.
type ExtendChange struct {
	PermissionCode string    `json:"permission_code"`
	OldExpiresAt   time.Time `json:"old_expires_at"`
	NewExpiresAt   time.Time `json:"new_expires_at"`
}

// ElevateChange records a user type transition.
type ElevateChange struct {
	PreviousType string `json:"previous_type"`
	NewType      string `json:"new_type"`
	Refusal      string `json:"refusal,omitempty"`
}

// HierarchyChange records a role hierarchy edge mutation.
type HierarchyChange struct {
	ParentRoleID       uuid.UUID `json:"parent_role_id"`
	ChildRoleID        uuid.UUID `json:"child_role_id"`
	InheritPermissions bool      `json:"inherit_permissions"`
	Refusal            string    `json:"refusal,omitempty"`
}

// CleanupChange summarises one expired-grant sweep.
type CleanupChange struct {
	CleanedCount int       `json:"cleaned_count"`
	SweptAt      time.Time `json:"swept_at"`
}

// BulkChange summarises a whole batch in a single entry.
type BulkChange struct {
	Items        []string   `json:"items"`
	SuccessCount int        `json:"success_count"`
	FailedCount  int        `json:"failed_count"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Entry is one immutable audit record. ActorID is nil for system actions
// such as the cleanup sweep.
type Entry struct {
	ID           uuid.UUID  `json:"id"`
	ActorID      *uuid.UUID `json:"actor_id,omitempty"`
	Action       Action     `json:"action"`
	EntityType   EntityType `json:"entity_type"`
	EntityID     string     `json:"entity_id"`
	Changes      any        `json:"changes,omitempty"`
	Success      bool       `json:"success"`
	ErrorMessage string     `json:"error_message,omitempty"`
	At           time.Time  `json:"at"`
}

// DecodeChanges converts the stored JSON payload of e into the typed change
// struct matching its action.
func DecodeChanges(e Entry) (any, error) {
	raw, err := rawChanges(e.Changes)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var target any
	switch e.Action {
	case ActionGrant, ActionGrantFailed, ActionGrantTemporary:
		target = &GrantChange{}
	case ActionRevoke, ActionRevokeFailed:
		target = &RevokeChange{}
	case ActionExtendTemporary:
		target = &ExtendChange{}
	case ActionElevate, ActionElevateFailed:
		target = &ElevateChange{}
	case ActionHierarchyAdd, ActionHierarchyRemove:
		target = &HierarchyChange{}
	case ActionCleanupExpired:
		target = &CleanupChange{}
	case ActionBulkGrant, ActionBulkRevoke, ActionBulkAssignRoles, ActionBulkRemoveRoles, ActionBulkRolePerms:
		target = &BulkChange{}
	default:
		return nil, fmt.Errorf("audit: unknown action %q", e.Action)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("audit: decode %s changes: %w", e.Action, err)
	}
	return target, nil
}

func rawChanges(changes any) (json.RawMessage, error) {
	switch v := changes.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
