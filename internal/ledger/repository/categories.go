package repository

import (
	"context"

	"github.com/lib/pq"
	"github.com/tablestack/tablestack-backend/pkg/database"
)

// CategoryRepository reads the restaurant's chart of accounts. The ledger never
// writes to it.
type CategoryRepository struct {
	db *database.DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *database.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// BelongsTo reports whether every id is a chart-of-accounts entry of the restaurant.
// Ids must be well formed UUIDs.
func (r *CategoryRepository) BelongsTo(ctx context.Context, restaurantID string, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	var count int
	err := r.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		return r.db.Conn(ctx).GetContext(ctx, &count, `
			SELECT COUNT(DISTINCT id) FROM chart_of_accounts
			WHERE restaurant_id = $1 AND id = ANY($2::uuid[])`,
			restaurantID, pq.Array(ids),
		)
	})
	if err != nil {
		return false, err
	}
	return count == len(ids), nil
}
