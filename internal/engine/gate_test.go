package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/users"
)

func TestCanGrantRuleOrder(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	bare := f.addUser(users.TypeAdmin, true)
	inactive := f.addUser(users.TypeAdmin, false)
	regular := f.addUser(users.TypeUser, true)
	peer := f.addUser(users.TypeUser, true)
	customer := f.addUser(users.TypeCustomer, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.addPermission("USER_DELETE", catalog.RiskCritical)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)
	f.addPermission("INVENTORY_ADJUST", catalog.RiskMedium, "INVENTORY_READ")
	f.grantDirect(admin, "REPORT_VIEW", nil)
	f.grantDirect(admin, "USER_DELETE", nil)
	f.grantDirect(admin, "INVENTORY_ADJUST", nil)
	f.grantDirect(regular, "INVENTORY_READ", nil)

	cases := []struct {
		name    string
		granter uuid.UUID
		grantee uuid.UUID
		code    string
		allowed bool
		reason  string
		missing []string
	}{
		{"missing granter", uuid.New(), regular, "REPORT_VIEW", false, ReasonGranterNotFound, nil},
		{"inactive granter", inactive, regular, "REPORT_VIEW", false, ReasonGranterInactive, nil},
		{"missing grantee", admin, uuid.New(), "REPORT_VIEW", false, ReasonGranteeNotFound, nil},
		{"unknown permission", admin, regular, "NO_SUCH_PERM", false, ReasonUnknownPermission, nil},
		{"peer rank refused", regular, peer, "REPORT_VIEW", false, ReasonCannotManage, nil},
		{"critical needs admin", regular, customer, "USER_DELETE", false, ReasonElevatedRisk, nil},
		{"granter lacks permission", bare, regular, "REPORT_VIEW", false, ReasonGranterLacksCode, nil},
		{"grantee missing dependency", admin, customer, "INVENTORY_ADJUST", false, ReasonMissingDeps, []string{"INVENTORY_READ"}},
		{"admin grants low risk", admin, regular, "REPORT_VIEW", true, "", nil},
		{"admin grants critical", admin, regular, "USER_DELETE", true, "", nil},
		{"dependencies satisfied", admin, regular, "INVENTORY_ADJUST", true, "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := svc.CanGrant(ctx, tc.granter, tc.grantee, tc.code)
			require.NoError(t, err)
			require.Equal(t, tc.allowed, d.Allowed)
			require.Equal(t, tc.reason, d.Reason)
			require.Equal(t, tc.missing, d.MissingDependencies)
		})
	}
}

func TestCanGrantSuperadminManagesSuperadmin(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)

	root := f.addUser(users.TypeSuperadmin, true)
	other := f.addUser(users.TypeSuperadmin, true)
	f.addPermission("SYSTEM_SHUTDOWN", catalog.RiskCritical)
	f.grantDirect(root, "SYSTEM_SHUTDOWN", nil)

	d, err := svc.CanGrant(context.Background(), root, other, "SYSTEM_SHUTDOWN")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestGrantDuplicateRefused(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	user := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.grantDirect(admin, "REPORT_VIEW", nil)

	res, err := svc.Grant(ctx, admin, user, "REPORT_VIEW")
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, audit.ActionGrant, f.lastAudit(t).Action)

	res, err = svc.Grant(ctx, admin, user, "REPORT_VIEW")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, ReasonAlreadyGranted, res.Reason)

	entry := f.lastAudit(t)
	require.Equal(t, audit.ActionGrantFailed, entry.Action)
	require.False(t, entry.Success)
}

func TestGrantTemporaryValidation(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	user := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.grantDirect(admin, "REPORT_VIEW", nil)
	future := f.now.Add(time.Hour)

	res, err := svc.GrantTemporary(ctx, admin, user, "REPORT_VIEW", future, "")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, ReasonReasonRequired, res.Reason)

	res, err = svc.GrantTemporary(ctx, admin, user, "REPORT_VIEW", f.now.Add(-time.Minute), "on-call cover")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, ReasonExpiryInPast, res.Reason)

	res, err = svc.GrantTemporary(ctx, admin, user, "REPORT_VIEW", future, "on-call cover")
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, audit.ActionGrantTemporary, f.lastAudit(t).Action)

	report, err := svc.TemporaryPermissions(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 1, report.ActiveCount)
	require.Equal(t, 0, report.ExpiredCount)
	require.Len(t, report.Grants, 1)
	require.Equal(t, "REPORT_VIEW", report.Grants[0].Code)
}

func TestGrantRefusedOnMissingDependencies(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	user := f.addUser(users.TypeUser, true)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)
	f.addPermission("INVENTORY_UPDATE", catalog.RiskLow)
	f.addPermission("INVENTORY_ADJUST", catalog.RiskMedium, "INVENTORY_READ", "INVENTORY_UPDATE")
	f.grantDirect(admin, "INVENTORY_ADJUST", nil)
	f.grantDirect(user, "INVENTORY_READ", nil)

	res, err := svc.Grant(ctx, admin, user, "INVENTORY_ADJUST")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, ReasonMissingDeps, res.Reason)
	require.Equal(t, []string{"INVENTORY_UPDATE"}, res.MissingDependencies)

	// nothing was persisted
	require.Len(t, f.direct[user], 1)

	require.Len(t, f.audits, 1)
	entry := f.audits[0]
	require.Equal(t, audit.ActionGrantFailed, entry.Action)
	require.False(t, entry.Success)
	require.Equal(t, []string{"INVENTORY_UPDATE"}, entry.Changes.(audit.GrantChange).MissingDeps)
}

func TestGrantRevokeRoundTrip(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	user := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)
	f.grantDirect(admin, "REPORT_VIEW", nil)
	f.grantDirect(user, "INVENTORY_READ", nil)

	before, err := svc.EffectivePermissions(ctx, user)
	require.NoError(t, err)

	res, err := svc.Grant(ctx, admin, user, "REPORT_VIEW")
	require.NoError(t, err)
	require.True(t, res.OK)

	res, err = svc.Revoke(ctx, admin, user, "REPORT_VIEW")
	require.NoError(t, err)
	require.True(t, res.OK)

	after, err := svc.EffectivePermissions(ctx, user)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRevokeOnlyDirectGrants(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	user := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	roleID := f.addRole("analyst", "REPORT_VIEW")
	f.assignRole(user, roleID)

	held, err := svc.HasPermission(ctx, user, "REPORT_VIEW")
	require.NoError(t, err)
	require.True(t, held)

	res, err := svc.Revoke(ctx, admin, user, "REPORT_VIEW")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, ReasonNotDirectlyHeld, res.Reason)
	require.Equal(t, audit.ActionRevokeFailed, f.lastAudit(t).Action)
}

func TestExtendTemporary(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	admin := f.addUser(users.TypeAdmin, true)
	user := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)

	first := f.now.Add(time.Hour)
	f.grantDirect(user, "REPORT_VIEW", &first)
	f.grantDirect(user, "INVENTORY_READ", nil)

	res, err := svc.ExtendTemporary(ctx, admin, user, "REPORT_VIEW", f.now.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, res.OK)

	entry := f.lastAudit(t)
	require.Equal(t, audit.ActionExtendTemporary, entry.Action)
	change := entry.Changes.(audit.ExtendChange)
	require.Equal(t, first, change.OldExpiresAt)

	// a permanent grant has no expiry to move
	res, err = svc.ExtendTemporary(ctx, admin, user, "INVENTORY_READ", f.now.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, ReasonNotTemporary, res.Reason)
}

func TestElevateUserType(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	root := f.addUser(users.TypeSuperadmin, true)
	admin := f.addUser(users.TypeAdmin, true)
	user := f.addUser(users.TypeUser, true)

	res, err := svc.ElevateUserType(ctx, admin, user, users.TypeAdmin)
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, ReasonCannotAssignType, res.Reason)

	res, err = svc.ElevateUserType(ctx, root, user, users.TypeAdmin)
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, users.TypeAdmin, f.users[user].Type)

	entry := f.lastAudit(t)
	require.Equal(t, audit.ActionElevate, entry.Action)
	change := entry.Changes.(audit.ElevateChange)
	require.Equal(t, string(users.TypeUser), change.PreviousType)
	require.Equal(t, string(users.TypeAdmin), change.NewType)

	res, err = svc.ElevateUserType(ctx, root, user, users.Type("WIZARD"))
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, ReasonInvalidUserType, res.Reason)
}

func TestCleanupExpiredSingleAuditEntry(t *testing.T) {
	f := newFakeWorld()
	svc := newTestService(f)
	ctx := context.Background()

	user1 := f.addUser(users.TypeUser, true)
	user2 := f.addUser(users.TypeUser, true)
	f.addPermission("REPORT_VIEW", catalog.RiskLow)
	f.addPermission("INVENTORY_READ", catalog.RiskLow)

	past := f.now.Add(-time.Hour)
	future := f.now.Add(time.Hour)
	f.grantDirect(user1, "REPORT_VIEW", &past)
	f.grantDirect(user2, "INVENTORY_READ", &past)
	f.grantDirect(user2, "REPORT_VIEW", &future)

	cleaned, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, cleaned)

	require.Len(t, f.audits, 1)
	entry := f.audits[0]
	require.Equal(t, audit.ActionCleanupExpired, entry.Action)
	require.Nil(t, entry.ActorID)
	require.Equal(t, 2, entry.Changes.(audit.CleanupChange).CleanedCount)

	// the unexpired grant survives the sweep
	report, err := svc.TemporaryPermissions(ctx, user2)
	require.NoError(t, err)
	require.Len(t, report.Grants, 1)
	require.Equal(t, "REPORT_VIEW", report.Grants[0].Code)

	// a second sweep with nothing newly expired removes nothing
	cleaned, err = svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, cleaned)
	require.Equal(t, 0, f.lastAudit(t).Changes.(audit.CleanupChange).CleanedCount)
}
