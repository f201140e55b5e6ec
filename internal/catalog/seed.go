package catalog

import "strings"

// seedCategories lists every seeded permission code grouped by category.
// Resource and action are derived from the code itself; risk level and
// approval flags come from the maps below.
var seedCategories = map[Category][]string{
	CategorySystem: {
		"SYSTEM_CONFIG_READ", "SYSTEM_CONFIG_WRITE", "SYSTEM_HEALTH_CHECK",
		"SYSTEM_BACKUP", "SYSTEM_RESTORE", "SYSTEM_MAINTENANCE", "SYSTEM_SHUTDOWN",
	},
	CategoryUsers: {
		"USER_CREATE", "USER_READ", "USER_UPDATE", "USER_DELETE", "USER_LIST",
		"USER_ACTIVATE", "USER_DEACTIVATE", "USER_LOCK", "USER_UNLOCK",
		"USER_RESET_PASSWORD", "USER_IMPERSONATE",
	},
	CategoryRoles: {
		"ROLE_CREATE", "ROLE_READ", "ROLE_UPDATE", "ROLE_DELETE", "ROLE_LIST",
		"ROLE_ASSIGN", "ROLE_REVOKE", "ROLE_MANAGE_PERMISSIONS",
	},
	CategoryPerms: {
		"PERMISSION_CREATE", "PERMISSION_READ", "PERMISSION_UPDATE",
		"PERMISSION_DELETE", "PERMISSION_LIST", "PERMISSION_ASSIGN", "PERMISSION_REVOKE",
	},
	CategoryProperties: {
		"PROPERTY_CREATE", "PROPERTY_READ", "PROPERTY_UPDATE", "PROPERTY_DELETE",
		"PROPERTY_LIST", "PROPERTY_SEARCH",
	},
	CategoryInventory: {
		"INVENTORY_CREATE", "INVENTORY_READ", "INVENTORY_UPDATE", "INVENTORY_DELETE",
		"INVENTORY_LIST", "INVENTORY_ADJUST", "INVENTORY_TRANSFER", "INVENTORY_COUNT",
	},
	CategorySales: {
		"SALE_CREATE", "SALE_READ", "SALE_UPDATE", "SALE_DELETE", "SALE_LIST",
		"SALE_APPROVE", "SALE_REFUND",
	},
	CategoryPurchases: {
		"PURCHASE_CREATE", "PURCHASE_READ", "PURCHASE_UPDATE", "PURCHASE_DELETE",
		"PURCHASE_LIST", "PURCHASE_APPROVE", "PURCHASE_RECEIVE",
	},
	CategoryFinancial: {
		"FINANCIAL_VIEW", "FINANCIAL_CREATE", "FINANCIAL_UPDATE", "FINANCIAL_DELETE",
		"FINANCIAL_APPROVE", "FINANCIAL_RECONCILE", "FINANCIAL_REPORT",
	},
	CategoryReporting: {
		"REPORT_VIEW", "REPORT_CREATE", "REPORT_EDIT", "REPORT_DELETE", "REPORT_EXPORT",
	},
	CategoryAudit: {
		"AUDIT_VIEW", "AUDIT_EXPORT", "AUDIT_REPORT", "AUDIT_TRAIL",
	},
}

// seedRiskLevels overrides the default LOW classification.
var seedRiskLevels = map[string]RiskLevel{
	"SYSTEM_SHUTDOWN":   RiskCritical,
	"SYSTEM_BACKUP":     RiskCritical,
	"SYSTEM_RESTORE":    RiskCritical,
	"USER_DELETE":       RiskCritical,
	"USER_IMPERSONATE":  RiskCritical,
	"ROLE_DELETE":       RiskCritical,
	"PERMISSION_DELETE": RiskCritical,

	"SYSTEM_CONFIG_WRITE":     RiskHigh,
	"SYSTEM_MAINTENANCE":      RiskHigh,
	"USER_CREATE":             RiskHigh,
	"USER_RESET_PASSWORD":     RiskHigh,
	"ROLE_CREATE":             RiskHigh,
	"ROLE_MANAGE_PERMISSIONS": RiskHigh,
	"PERMISSION_CREATE":       RiskHigh,
	"FINANCIAL_DELETE":        RiskHigh,
	"FINANCIAL_APPROVE":       RiskHigh,

	"USER_UPDATE":       RiskMedium,
	"USER_LOCK":         RiskMedium,
	"USER_UNLOCK":       RiskMedium,
	"ROLE_UPDATE":       RiskMedium,
	"PERMISSION_UPDATE": RiskMedium,
	"PROPERTY_DELETE":   RiskMedium,
	"INVENTORY_DELETE":  RiskMedium,
	"SALE_DELETE":       RiskMedium,
	"PURCHASE_DELETE":   RiskMedium,
	"FINANCIAL_UPDATE":  RiskMedium,
}

// seedDependencies maps a permission to the direct permissions it requires.
// Transitive requirements are expressed through the chain, never flattened.
var seedDependencies = map[string][]string{
	"USER_DELETE":             {"USER_READ", "USER_UPDATE"},
	"USER_UPDATE":             {"USER_READ"},
	"USER_LOCK":               {"USER_READ"},
	"USER_UNLOCK":             {"USER_READ"},
	"USER_RESET_PASSWORD":     {"USER_READ"},
	"ROLE_DELETE":             {"ROLE_READ", "ROLE_UPDATE"},
	"ROLE_UPDATE":             {"ROLE_READ"},
	"ROLE_MANAGE_PERMISSIONS": {"ROLE_READ", "PERMISSION_READ"},
	"PERMISSION_DELETE":       {"PERMISSION_READ", "PERMISSION_UPDATE"},
	"PERMISSION_UPDATE":       {"PERMISSION_READ"},
	"SALE_CREATE":             {"SALE_READ", "INVENTORY_READ"},
	"SALE_DELETE":             {"SALE_READ", "SALE_UPDATE"},
	"SALE_UPDATE":             {"SALE_READ"},
	"PURCHASE_CREATE":         {"PURCHASE_READ", "INVENTORY_READ"},
	"PURCHASE_DELETE":         {"PURCHASE_READ", "PURCHASE_UPDATE"},
	"PURCHASE_UPDATE":         {"PURCHASE_READ"},
	"INVENTORY_ADJUST":        {"INVENTORY_READ", "INVENTORY_UPDATE"},
	"INVENTORY_TRANSFER":      {"INVENTORY_READ", "INVENTORY_UPDATE"},
	"INVENTORY_DELETE":        {"INVENTORY_READ", "INVENTORY_UPDATE"},
	"PROPERTY_DELETE":         {"PROPERTY_READ", "PROPERTY_UPDATE"},
	"PROPERTY_UPDATE":         {"PROPERTY_READ"},
	"FINANCIAL_DELETE":        {"FINANCIAL_VIEW", "FINANCIAL_UPDATE"},
	"FINANCIAL_UPDATE":        {"FINANCIAL_VIEW"},
	"FINANCIAL_APPROVE":       {"FINANCIAL_VIEW"},
}

// seedTemplates maps role archetypes to their default permission codes.
var seedTemplates = map[Template][]string{
	TemplateAdmin: {
		"SYSTEM_CONFIG_READ", "SYSTEM_HEALTH_CHECK", "SYSTEM_BACKUP",
		"USER_CREATE", "USER_READ", "USER_UPDATE", "USER_DELETE", "USER_LIST",
		"USER_ACTIVATE", "USER_DEACTIVATE", "USER_LOCK", "USER_UNLOCK", "USER_RESET_PASSWORD",
		"ROLE_CREATE", "ROLE_READ", "ROLE_UPDATE", "ROLE_DELETE", "ROLE_LIST",
		"ROLE_ASSIGN", "ROLE_REVOKE", "ROLE_MANAGE_PERMISSIONS",
		"PERMISSION_CREATE", "PERMISSION_READ", "PERMISSION_UPDATE", "PERMISSION_DELETE",
		"PERMISSION_LIST", "PERMISSION_ASSIGN", "PERMISSION_REVOKE",
		"PROPERTY_CREATE", "PROPERTY_READ", "PROPERTY_UPDATE", "PROPERTY_DELETE", "PROPERTY_LIST",
		"INVENTORY_CREATE", "INVENTORY_READ", "INVENTORY_UPDATE", "INVENTORY_DELETE", "INVENTORY_LIST",
		"SALE_CREATE", "SALE_READ", "SALE_UPDATE", "SALE_DELETE", "SALE_LIST",
		"PURCHASE_CREATE", "PURCHASE_READ", "PURCHASE_UPDATE", "PURCHASE_DELETE", "PURCHASE_LIST",
		"FINANCIAL_VIEW", "FINANCIAL_CREATE", "FINANCIAL_UPDATE", "FINANCIAL_DELETE",
		"FINANCIAL_APPROVE", "FINANCIAL_RECONCILE", "FINANCIAL_REPORT",
		"REPORT_VIEW", "REPORT_CREATE", "REPORT_EDIT", "REPORT_DELETE", "REPORT_EXPORT",
		"AUDIT_VIEW", "AUDIT_EXPORT", "AUDIT_REPORT", "AUDIT_TRAIL",
	},
	TemplateManager: {
		"USER_READ", "USER_UPDATE", "USER_LIST", "USER_ACTIVATE", "USER_DEACTIVATE",
		"USER_LOCK", "USER_UNLOCK",
		"ROLE_READ", "ROLE_LIST", "ROLE_ASSIGN", "ROLE_REVOKE",
		"PROPERTY_CREATE", "PROPERTY_READ", "PROPERTY_UPDATE", "PROPERTY_LIST",
		"INVENTORY_CREATE", "INVENTORY_READ", "INVENTORY_UPDATE", "INVENTORY_LIST",
		"INVENTORY_ADJUST", "INVENTORY_TRANSFER",
		"SALE_CREATE", "SALE_READ", "SALE_UPDATE", "SALE_LIST", "SALE_APPROVE",
		"PURCHASE_CREATE", "PURCHASE_READ", "PURCHASE_UPDATE", "PURCHASE_LIST", "PURCHASE_APPROVE",
		"FINANCIAL_VIEW", "FINANCIAL_CREATE", "FINANCIAL_UPDATE", "FINANCIAL_APPROVE", "FINANCIAL_REPORT",
		"REPORT_VIEW", "REPORT_CREATE", "REPORT_EDIT", "REPORT_EXPORT",
	},
	TemplateStaff: {
		"PROPERTY_READ", "PROPERTY_LIST", "PROPERTY_SEARCH",
		"INVENTORY_READ", "INVENTORY_LIST", "INVENTORY_COUNT",
		"SALE_CREATE", "SALE_READ", "SALE_UPDATE", "SALE_LIST",
		"PURCHASE_CREATE", "PURCHASE_READ", "PURCHASE_UPDATE", "PURCHASE_LIST", "PURCHASE_RECEIVE",
		"REPORT_VIEW", "REPORT_EXPORT",
	},
	TemplateCustomer: {
		"PROPERTY_READ", "PROPERTY_SEARCH", "REPORT_VIEW",
	},
	TemplateAuditor: {
		"USER_READ", "USER_LIST", "ROLE_READ", "ROLE_LIST",
		"PERMISSION_READ", "PERMISSION_LIST",
		"PROPERTY_READ", "PROPERTY_LIST", "INVENTORY_READ", "INVENTORY_LIST",
		"SALE_READ", "SALE_LIST", "PURCHASE_READ", "PURCHASE_LIST",
		"FINANCIAL_VIEW", "FINANCIAL_REPORT",
		"AUDIT_VIEW", "AUDIT_EXPORT", "AUDIT_REPORT", "AUDIT_TRAIL",
		"REPORT_VIEW", "REPORT_CREATE", "REPORT_EDIT", "REPORT_EXPORT",
	},
	TemplateAccountant: {
		"PROPERTY_READ", "PROPERTY_LIST", "INVENTORY_READ", "INVENTORY_LIST",
		"SALE_READ", "SALE_LIST", "PURCHASE_READ", "PURCHASE_LIST",
		"FINANCIAL_VIEW", "FINANCIAL_CREATE", "FINANCIAL_UPDATE", "FINANCIAL_DELETE",
		"FINANCIAL_APPROVE", "FINANCIAL_RECONCILE", "FINANCIAL_REPORT",
		"REPORT_VIEW", "REPORT_CREATE", "REPORT_EDIT", "REPORT_EXPORT",
	},
}

// AllCodes returns every seeded permission code.
func AllCodes() []string {
	var codes []string
	for _, group := range seedCategories {
		codes = append(codes, group...)
	}
	return codes
}

// TemplatePermissions returns the default permission codes for a role template.
// The SUPERADMIN template expands to the full catalog.
func TemplatePermissions(t Template) []string {
	if t == TemplateSuperadmin {
		return AllCodes()
	}
	return seedTemplates[t]
}

// RiskOf returns the risk level for a code, defaulting to LOW.
func RiskOf(code string) RiskLevel {
	if lvl, ok := seedRiskLevels[code]; ok {
		return lvl
	}
	return RiskLow
}

// Definitions materialises the seeded catalog as Permission values.
// IDs are assigned by the repository at seed time and left zero here.
func Definitions() []Permission {
	var defs []Permission
	for category, codes := range seedCategories {
		for _, code := range codes {
			defs = append(defs, Permission{
				Code:             code,
				Name:             humanize(code),
				Resource:         resourceOf(code),
				Action:           actionOf(code),
				Category:         category,
				RiskLevel:        RiskOf(code),
				RequiresApproval: RiskOf(code).Elevated(),
				IsSystem:         category == CategorySystem,
			})
		}
	}
	return defs
}

func resourceOf(code string) string {
	if i := strings.IndexByte(code, '_'); i > 0 {
		return strings.ToLower(code[:i])
	}
	return strings.ToLower(code)
}

func actionOf(code string) string {
	if i := strings.IndexByte(code, '_'); i > 0 {
		return strings.ToLower(code[i+1:])
	}
	return ""
}

func humanize(code string) string {
	words := strings.Split(strings.ToLower(code), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
