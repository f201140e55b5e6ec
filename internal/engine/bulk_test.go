package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/users"
)

func TestBulkGrantPartialSuccess(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	alice := f.addUser(users.TypeUser, true)
	codes := []string{"REPORT_VIEW", "REPORT_EXPORT", "INVENTORY_READ", "INVENTORY_UPDATE", "NO_SUCH_PERM"}
	for _, code := range codes[:4] {
		f.addPermission(code, catalog.RiskLow)
		f.grantDirect(admin, code, nil)
	}

	result, err := svc.BulkGrant(ctx, admin, alice, codes, nil)
	require.NoError(t, err)
	require.Equal(t, 5, result.Total)
	require.Equal(t, 4, result.SuccessCount)
	require.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Items, 5)
	require.Equal(t, ReasonUnknownPermission, result.Items[4].Reason)

	// the four valid grants are persisted despite the failure
	require.Len(t, f.direct[alice], 4)

	// the whole batch is one audit entry
	require.Len(t, f.audits, 1)
	entry := f.audits[0]
	require.Equal(t, audit.ActionBulkGrant, entry.Action)
	require.Equal(t, alice.String(), entry.EntityID)
	change := entry.Changes.(audit.BulkChange)
	require.Equal(t, 4, change.SuccessCount)
	require.Equal(t, 1, change.FailedCount)
}

func TestBulkRevokePartialSuccess(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	alice := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)
	f.grantDirect(alice, "REPORT_VIEW", nil)

	result, err := svc.BulkRevoke(ctx, admin, alice, []string{"REPORT_VIEW", "INVENTORY_READ"})
	require.NoError(t, err)
	require.Equal(t, 1, result.SuccessCount)
	require.Equal(t, 1, result.FailedCount)
	require.Equal(t, ReasonNotDirectlyHeld, result.Items[1].Reason)
	require.Len(t, f.audits, 1)
	require.Equal(t, audit.ActionBulkRevoke, f.audits[0].Action)
}

func TestBulkAssignRoles(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	alice := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)
	analyst := f.addRole("analyst", "REPORT_VIEW")
	stockist := f.addRole("stockist", "INVENTORY_READ")
	f.assignRole(alice, stockist)

	result, err := svc.BulkAssignRoles(ctx, admin, alice, []uuid.UUID{analyst, stockist, uuid.New()})
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 1, result.SuccessCount)
	require.Equal(t, 2, result.FailedCount)
	require.Equal(t, ReasonAlreadyAssigned, result.Items[1].Reason)
	require.Equal(t, ReasonRoleNotFound, result.Items[2].Reason)

	held, err := svc.HasPermission(ctx, alice, "REPORT_VIEW")
	require.NoError(t, err)
	require.True(t, held)
}

func TestBulkRemoveRoles(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	alice := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	analyst := f.addRole("analyst", "REPORT_VIEW")
	f.assignRole(alice, analyst)

	result, err := svc.BulkRemoveRoles(ctx, admin, alice, []uuid.UUID{analyst, uuid.New()})
	require.NoError(t, err)
	require.Equal(t, 1, result.SuccessCount)
	require.Equal(t, ReasonNotAssigned, result.Items[1].Reason)
	require.Empty(t, f.userRoles[alice])
	require.Len(t, f.audits, 1)
	require.Equal(t, audit.ActionBulkRemoveRoles, f.audits[0].Action)
}

func TestBulkAssignPermissionsToRole(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)
	roleID := f.addRole("analyst", "REPORT_VIEW")

	result, err := svc.BulkAssignPermissionsToRole(ctx, admin, roleID, []string{"INVENTORY_READ", "REPORT_VIEW", "NO_SUCH_PERM"})
	require.NoError(t, err)
	require.Equal(t, 1, result.SuccessCount)
	require.Equal(t, 2, result.FailedCount)
	require.Equal(t, ReasonAlreadyGranted, result.Items[1].Reason)
	require.Equal(t, ReasonUnknownPermission, result.Items[2].Reason)

	require.Len(t, f.audits, 1)
	require.Equal(t, audit.ActionBulkRolePerms, f.audits[0].Action)
}
