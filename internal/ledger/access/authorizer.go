// Package access decides whether a caller may act on a restaurant's ledger.
package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tablestack/tablestack-backend/pkg/actor"
	"github.com/tablestack/tablestack-backend/pkg/errors"
	"github.com/tablestack/tablestack-backend/pkg/permissions"
)

// RoleSystem is reported for the internal system actor.
const RoleSystem = "system"

// MembershipLookup resolves a user's role in a restaurant. An empty role with a
// nil error means the user is not a member.
type MembershipLookup interface {
	RoleFor(ctx context.Context, userID, restaurantID string) (string, error)
}

// Authorizer checks membership and role permissions.
type Authorizer struct {
	memberships MembershipLookup
}

// NewAuthorizer creates a new authorizer
func NewAuthorizer(memberships MembershipLookup) *Authorizer {
	return &Authorizer{memberships: memberships}
}

// Require returns the caller's role in the restaurant when that role grants
// permission. Non-members and insufficient roles are Forbidden. The system actor
// used by the scheduler and queue is always allowed.
func (a *Authorizer) Require(ctx context.Context, caller *actor.Actor, restaurantID, permission string) (string, error) {
	if caller == nil || caller.ID == "" {
		return "", errors.Unauthorized("caller identity is required")
	}
	if _, err := uuid.Parse(restaurantID); err != nil {
		return "", errors.InvalidField("restaurant_id", "must be a valid UUID")
	}
	if caller.IsSystem() {
		return RoleSystem, nil
	}

	role, err := a.memberships.RoleFor(ctx, caller.ID, restaurantID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve membership: %w", err)
	}
	if role == "" {
		return "", errors.Forbidden("you are not a member of this restaurant")
	}
	if !permissions.RoleAllows(role, permission) {
		return "", errors.Forbidden(fmt.Sprintf("role %s is not allowed to perform %s", role, permission))
	}
	return role, nil
}
