// Package catalog holds the seeded permission definitions, their risk
// classification, and the static dependency graph between permissions.
package catalog

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound indicates that the requested permission does not exist.
var ErrNotFound = errors.New("catalog: permission not found")

// RiskLevel classifies how dangerous a permission is to hold.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Elevated reports whether granting this level requires an admin granter.
func (r RiskLevel) Elevated() bool {
	return r == RiskHigh || r == RiskCritical
}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Category groups permissions for display and seeding.
type Category string

const (
	CategorySystem     Category = "SYSTEM"
	CategoryUsers      Category = "USER_MANAGEMENT"
	CategoryRoles      Category = "ROLE_MANAGEMENT"
	CategoryPerms      Category = "PERMISSION_MANAGEMENT"
	CategoryProperties Category = "PROPERTY_MANAGEMENT"
	CategoryInventory  Category = "INVENTORY"
	CategorySales      Category = "SALES"
	CategoryPurchases  Category = "PURCHASES"
	CategoryFinancial  Category = "FINANCIAL"
	CategoryReporting  Category = "REPORTING"
	CategoryAudit      Category = "AUDIT"
)

// Permission is an immutable permission definition. Instances are fully
// specified by their fields so cached copies round-trip without loss.
type Permission struct {
	ID               uuid.UUID `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Resource         string    `json:"resource"`
	Action           string    `json:"action"`
	Category         Category  `json:"category"`
	RiskLevel        RiskLevel `json:"risk_level"`
	RequiresApproval bool      `json:"requires_approval"`
	IsSystem         bool      `json:"is_system"`
}

// Template names a canonical role archetype with a default permission set.
type Template string

const (
	TemplateSuperadmin Template = "SUPERADMIN"
	TemplateAdmin      Template = "ADMIN"
	TemplateManager    Template = "MANAGER"
	TemplateStaff      Template = "STAFF"
	TemplateCustomer   Template = "CUSTOMER"
	TemplateAuditor    Template = "AUDITOR"
	TemplateAccountant Template = "ACCOUNTANT"
)
