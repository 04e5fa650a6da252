package repository

import (
	"context"
	"database/sql"

	"github.com/tablestack/tablestack-backend/pkg/database"
	"github.com/tablestack/tablestack-backend/pkg/errors"
)

// MembershipRepository reads and writes user_restaurants.
type MembershipRepository struct {
	db *database.DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *database.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// RoleFor returns the user's role in the restaurant, or "" when the user is not
// a member.
func (r *MembershipRepository) RoleFor(ctx context.Context, userID, restaurantID string) (string, error) {
	var role string
	err := r.db.Conn(ctx).GetContext(ctx, &role,
		`SELECT role FROM user_restaurants WHERE user_id = $1 AND restaurant_id = $2`,
		userID, restaurantID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// Add grants a role. Adding an existing member is a conflict.
func (r *MembershipRepository) Add(ctx context.Context, userID, restaurantID, role string) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx,
		`INSERT INTO user_restaurants (user_id, restaurant_id, role) VALUES ($1, $2, $3)`,
		userID, restaurantID, role,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}
