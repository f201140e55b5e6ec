package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeedDependenciesAcyclic(t *testing.T) {
	require.NoError(t, SeedDependencies().Validate())
}

func TestSeedDependenciesReferToKnownCodes(t *testing.T) {
	known := make(map[string]struct{})
	for _, code := range AllCodes() {
		known[code] = struct{}{}
	}
	for code, deps := range SeedDependencies() {
		if _, ok := known[code]; !ok {
			t.Fatalf("dependency source %s is not in the catalog", code)
		}
		for _, dep := range deps {
			if _, ok := known[dep]; !ok {
				t.Fatalf("dependency target %s of %s is not in the catalog", dep, code)
			}
		}
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	deps := Dependencies{
		"A": {"B"},
		"B": {"C"},
		"C": {"A"},
	}
	require.Error(t, deps.Validate())

	deps = Dependencies{"A": {"A"}}
	require.Error(t, deps.Validate())

	deps = Dependencies{
		"A": {"B", "C"},
		"B": {"C"},
	}
	require.NoError(t, deps.Validate())
}

func TestMissing(t *testing.T) {
	deps := Dependencies{
		"INVENTORY_ADJUST": {"INVENTORY_READ", "INVENTORY_UPDATE"},
		"USER_DELETE":      {"USER_READ", "USER_UPDATE"},
	}

	held := map[string]struct{}{"INVENTORY_READ": {}}
	missing := deps.Missing(held, "INVENTORY_ADJUST")
	require.Equal(t, []string{"INVENTORY_UPDATE"}, missing)

	// deduplicated and sorted across codes
	missing = deps.Missing(map[string]struct{}{}, "INVENTORY_ADJUST", "USER_DELETE", "INVENTORY_ADJUST")
	require.Equal(t, []string{"INVENTORY_READ", "INVENTORY_UPDATE", "USER_READ", "USER_UPDATE"}, missing)

	require.Empty(t, deps.Missing(held, "USER_READ"))
}

func TestTemplatePermissions(t *testing.T) {
	all := TemplatePermissions(TemplateSuperadmin)
	require.ElementsMatch(t, AllCodes(), all)

	customer := TemplatePermissions(TemplateCustomer)
	require.NotEmpty(t, customer)
	require.Less(t, len(customer), len(all))
}

func TestDefinitionsCoverEveryCode(t *testing.T) {
	defs := Definitions()
	require.Len(t, defs, len(AllCodes()))
	for _, def := range defs {
		require.NotEmpty(t, def.Code)
		require.NotEmpty(t, def.Name)
		require.NotEmpty(t, def.Resource)
		require.NotEmpty(t, def.Action)
		require.True(t, def.RiskLevel.Valid(), "code %s has invalid risk", def.Code)
		require.Equal(t, def.RiskLevel.Elevated(), def.RequiresApproval)
	}
}
