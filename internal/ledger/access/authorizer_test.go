package access_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablestack/tablestack-backend/internal/ledger/access"
	"github.com/tablestack/tablestack-backend/pkg/actor"
	"github.com/tablestack/tablestack-backend/pkg/errors"
	"github.com/tablestack/tablestack-backend/pkg/permissions"
)

type stubMemberships map[string]string

func (s stubMemberships) RoleFor(_ context.Context, userID, restaurantID string) (string, error) {
	return s[userID+"/"+restaurantID], nil
}

func TestAuthorizer_Require(t *testing.T) {
	restaurantID := uuid.New().String()
	manager := &actor.Actor{ID: uuid.New().String()}
	chef := &actor.Actor{ID: uuid.New().String()}
	stranger := &actor.Actor{ID: uuid.New().String()}

	authz := access.NewAuthorizer(stubMemberships{
		manager.ID + "/" + restaurantID: permissions.RoleManager,
		chef.ID + "/" + restaurantID:    permissions.RoleChef,
	})

	tests := []struct {
		name       string
		caller     *actor.Actor
		restaurant string
		permission string
		wantRole   string
		wantCode   string
	}{
		{"manager may split", manager, restaurantID, permissions.SalesSplit, permissions.RoleManager, ""},
		{"chef may read reports", chef, restaurantID, permissions.ReportsRead, permissions.RoleChef, ""},
		{"chef may not categorize", chef, restaurantID, permissions.SalesCategorize, "", "FORBIDDEN"},
		{"non-member is forbidden", stranger, restaurantID, permissions.ReportsRead, "", "FORBIDDEN"},
		{"missing caller", nil, restaurantID, permissions.ReportsRead, "", "UNAUTHORIZED"},
		{"malformed restaurant id", manager, "not-a-uuid", permissions.ReportsRead, "", "VALIDATION_ERROR"},
		{"system actor", actor.SystemActor(), restaurantID, permissions.SalesSync, access.RoleSystem, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := authz.Require(context.Background(), tt.caller, tt.restaurant, tt.permission)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}
