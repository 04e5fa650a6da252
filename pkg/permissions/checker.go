// Package permissions maps restaurant roles to permissions and checks them
// with wildcard support.
//
// Permission Format:
//   - "*" - Full access
//   - "sales.*" - All actions on a resource
//   - "sales.categorize" - Specific action
package permissions

import (
	"strings"
)

// Roles a user can hold in a restaurant.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleChef    = "chef"
	RoleStaff   = "staff"
	RoleViewer  = "viewer"
)

// Permissions checked by the ledger entry points.
const (
	SalesRead       = "sales.read"
	SalesCategorize = "sales.categorize"
	SalesSplit      = "sales.split"
	SalesWrite      = "sales.write"
	SalesDelete     = "sales.delete"
	SalesSync       = "sales.sync"
	ReportsRead     = "reports.read"
	ReportsExport   = "reports.export"
)

// RolePermissions lists what each role grants. Every member can read reports;
// only managers and owners can modify ledger rows.
var RolePermissions = map[string][]string{
	RoleOwner:   {"*"},
	RoleManager: {"sales.*", "reports.*"},
	RoleChef:    {SalesRead, ReportsRead},
	RoleStaff:   {SalesRead, ReportsRead},
	RoleViewer:  {SalesRead, ReportsRead},
}

// RoleAllows reports whether role grants the required permission.
func RoleAllows(role, required string) bool {
	return HasPermission(RolePermissions[role], required)
}

// HasPermission checks if perms include the required permission.
//   - "*" matches everything
//   - "sales.*" matches "sales.split", "sales.categorize", etc.
func HasPermission(perms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range perms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}
