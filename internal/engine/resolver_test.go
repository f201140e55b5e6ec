package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/users"
)

func TestEffectivePermissionsDirectWinsOverRole(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	user := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)

	expiry := f.now.Add(time.Hour)
	f.grantDirect(user, "REPORT_VIEW", &expiry)
	roleID := f.addRole("analyst", "REPORT_VIEW", "INVENTORY_READ")
	f.assignRole(user, roleID)

	perms, err := svc.EffectivePermissions(ctx, user)
	require.NoError(t, err)
	require.Len(t, perms, 2)

	byCode := make(map[string]EffectivePermission)
	for _, p := range perms {
		byCode[p.Code] = p
	}
	require.Equal(t, SourceDirect, byCode["REPORT_VIEW"].Source)
	require.NotNil(t, byCode["REPORT_VIEW"].ExpiresAt)
	require.Equal(t, SourceRole, byCode["INVENTORY_READ"].Source)
	require.Equal(t, "analyst", byCode["INVENTORY_READ"].SourceRoleName)
}

func TestEffectivePermissionsFiltersExpired(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	user := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	past := f.now.Add(-time.Minute)
	f.grantDirect(user, "REPORT_VIEW", &past)

	perms, err := svc.EffectivePermissions(ctx, user)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestEffectivePermissionsUnknownUser(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)

	_, err := svc.EffectivePermissions(context.Background(), f.addUser(users.TypeUser, true))
	require.NoError(t, err)

	_, err = svc.EffectivePermissions(context.Background(), uuid.New())
	require.ErrorIs(t, err, users.ErrNotFound)
}

func TestCheckPermissionWithRisk(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	user := f.addUser(users.TypeUser, true)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)
	f.addPermission("INVENTORY_UPDATE", catalog.RiskMedium)
	f.addPermission("INVENTORY_ADJUST", catalog.RiskHigh, "INVENTORY_READ", "INVENTORY_UPDATE")

	f.grantDirect(user, "INVENTORY_ADJUST", nil)
	f.grantDirect(user, "INVENTORY_READ", nil)

	// holding the permission is not enough while a dependency is missing
	res, err := svc.CheckPermissionWithRisk(ctx, user, "INVENTORY_ADJUST", true)
	require.NoError(t, err)
	require.False(t, res.HasPermission)
	require.Equal(t, catalog.RiskHigh, res.RiskLevel)
	require.True(t, res.RequiresApproval)
	require.Equal(t, []string{"INVENTORY_UPDATE"}, res.MissingDependencies)

	f.grantDirect(user, "INVENTORY_UPDATE", nil)
	res, err = svc.CheckPermissionWithRisk(ctx, user, "INVENTORY_ADJUST", true)
	require.NoError(t, err)
	require.True(t, res.HasPermission)
	require.Empty(t, res.MissingDependencies)
}

func TestCheckPermissionSkipsDependencies(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	user := f.addUser(users.TypeUser, true)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)
	f.addPermission("INVENTORY_ADJUST", catalog.RiskHigh, "INVENTORY_READ")
	f.grantDirect(user, "INVENTORY_ADJUST", nil)

	// possession alone decides when the dependency walk is disabled
	res, err := svc.CheckPermissionWithRisk(ctx, user, "INVENTORY_ADJUST", false)
	require.NoError(t, err)
	require.True(t, res.HasPermission)
	require.Empty(t, res.MissingDependencies)

	res, err = svc.CheckPermissionWithRisk(ctx, user, "INVENTORY_ADJUST", true)
	require.NoError(t, err)
	require.False(t, res.HasPermission)
	require.Equal(t, []string{"INVENTORY_READ"}, res.MissingDependencies)
}

func TestCheckPermissionNotHeld(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)

	user := f.addUser(users.TypeUser, true)
	f.addPermission("USER_DELETE", catalog.RiskCritical, "USER_READ")

	res, err := svc.CheckPermissionWithRisk(context.Background(), user, "USER_DELETE", true)
	require.NoError(t, err)
	require.False(t, res.HasPermission)
	require.Equal(t, catalog.RiskCritical, res.RiskLevel)
	require.Empty(t, res.MissingDependencies)
}

func TestCheckPermissionUnknownCode(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)

	user := f.addUser(users.TypeUser, true)
	res, err := svc.CheckPermissionWithRisk(context.Background(), user, "NO_SUCH_PERM", true)
	require.NoError(t, err)
	require.False(t, res.HasPermission)
	require.Equal(t, catalog.RiskLow, res.RiskLevel)
}
