// Package engine resolves effective permissions and arbitrates every grant,
// revoke, and elevation through a single authorization gate. Refusals are
// ordinary values, not errors: an error from this package always means the
// operation itself could not run.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/grants"
)

// Permission sources. A permission held both directly and through a role
// reports the direct grant.
const (
	SourceDirect = "direct"
	SourceRole   = "role"
)

// EffectivePermission is one resolved permission with its provenance.
type EffectivePermission struct {
	catalog.Permission
	Source         string     `json:"source"`
	SourceRoleID   *uuid.UUID `json:"source_role_id,omitempty"`
	SourceRoleName string     `json:"source_role_name,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// Temporary reports whether the underlying grant carries an expiry.
func (p EffectivePermission) Temporary() bool {
	return p.ExpiresAt != nil
}

// CheckResult answers a risk-aware permission check. A user who holds a
// permission but is missing one of its dependencies does not pass the check;
// the absent codes are listed so the caller can see what to grant.
type CheckResult struct {
	PermissionCode      string            `json:"permission_code"`
	HasPermission       bool              `json:"has_permission"`
	RiskLevel           catalog.RiskLevel `json:"risk_level"`
	RequiresApproval    bool              `json:"requires_approval"`
	MissingDependencies []string          `json:"missing_dependencies,omitempty"`
}

// TemporaryReport lists a user's active temporary grants, soonest expiry
// first, with tallies of active and already-expired temporary grants.
type TemporaryReport struct {
	Grants       []grants.Grant `json:"grants"`
	ActiveCount  int            `json:"active_count"`
	ExpiredCount int            `json:"expired_count"`
}

// Refusal reasons for the authorization gate, in the order the gate applies
// its rules.
const (
	ReasonGranterNotFound   = "granter not found"
	ReasonGranterInactive   = "granter is inactive"
	ReasonGranteeNotFound   = "grantee not found"
	ReasonGranteeInactive   = "grantee is inactive"
	ReasonUnknownPermission = "unknown permission"
	ReasonCannotManage      = "granter rank cannot manage grantee"
	ReasonElevatedRisk      = "elevated risk permission requires an admin granter"
	ReasonGranterLacksCode  = "granter does not hold this permission"
	ReasonMissingDeps       = "grantee is missing required dependencies"
)

// Operation-level refusal reasons.
const (
	ReasonAlreadyGranted    = "permission already granted"
	ReasonNotDirectlyHeld   = "permission is not directly granted"
	ReasonNotTemporary      = "grant is not temporary"
	ReasonReasonRequired    = "temporary grants require a reason"
	ReasonExpiryInPast      = "expiry must be in the future"
	ReasonInvalidUserType   = "unknown user type"
	ReasonCannotAssignType  = "actor rank cannot assign this user type"
	ReasonRoleNotFound      = "role not found"
	ReasonAlreadyAssigned   = "role already assigned"
	ReasonNotAssigned       = "role not assigned"
)

// Decision is the outcome of the authorization gate.
type Decision struct {
	Allowed             bool     `json:"can_grant"`
	Reason              string   `json:"reason,omitempty"`
	MissingDependencies []string `json:"missing_dependencies,omitempty"`
}

func refuse(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// OpResult reports one gated mutation. OK false carries the refusal reason.
type OpResult struct {
	OK                  bool     `json:"ok"`
	Reason              string   `json:"reason,omitempty"`
	MissingDependencies []string `json:"missing_dependencies,omitempty"`
}

func opRefused(reason string) OpResult {
	return OpResult{OK: false, Reason: reason}
}

var opOK = OpResult{OK: true}

// BulkItem is the per-entry outcome of a bulk operation.
type BulkItem struct {
	Item   string `json:"item"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// BulkResult aggregates a bulk operation. The whole batch succeeds or fails
// per item; one refused entry never aborts the rest.
type BulkResult struct {
	Items        []BulkItem `json:"items"`
	Total        int        `json:"total"`
	SuccessCount int        `json:"success_count"`
	FailedCount  int        `json:"failed_count"`
}

func (b *BulkResult) add(item string, res OpResult) {
	b.Items = append(b.Items, BulkItem{Item: item, OK: res.OK, Reason: res.Reason})
	b.Total++
	if res.OK {
		b.SuccessCount++
	} else {
		b.FailedCount++
	}
}

func (b BulkResult) itemNames() []string {
	names := make([]string, len(b.Items))
	for i, it := range b.Items {
		names[i] = it.Item
	}
	return names
}
