package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		perms    []string
		required string
		want     bool
	}{
		{"empty requirement", nil, "", true},
		{"full access", []string{"*"}, SalesSplit, true},
		{"exact match", []string{ReportsRead}, ReportsRead, true},
		{"resource wildcard", []string{"sales.*"}, SalesCategorize, true},
		{"wildcard does not cross resources", []string{"sales.*"}, ReportsExport, false},
		{"wildcard needs dot boundary", []string{"sales.*"}, "salesforce.read", false},
		{"no match", []string{SalesRead}, SalesSplit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.perms, tt.required))
		})
	}
}

func TestRoleAllows(t *testing.T) {
	assert.True(t, RoleAllows(RoleOwner, SalesSplit))
	assert.True(t, RoleAllows(RoleManager, SalesSplit))
	assert.True(t, RoleAllows(RoleManager, ReportsExport))
	assert.False(t, RoleAllows(RoleStaff, SalesCategorize))
	assert.True(t, RoleAllows(RoleStaff, ReportsRead))
	assert.True(t, RoleAllows(RoleViewer, ReportsRead))
	assert.False(t, RoleAllows("", ReportsRead))
	assert.False(t, RoleAllows("contractor", ReportsRead))
}
