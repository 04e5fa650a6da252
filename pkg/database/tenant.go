package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type (
	txKey         struct{}
	restaurantKey struct{}
)

// WithRestaurant runs fn in a transaction scoped to one restaurant.
//
// The restaurant id is published as app.current_restaurant, which the row level
// security policies on the ledger tables compare against restaurant_id. Queries
// inside fn must go through db.Conn(ctx) to run on the scoped transaction.
// Nested calls for the same restaurant reuse the outer transaction as is.
//
//	err := r.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
//	    return r.db.Conn(ctx).GetContext(ctx, &sale, "SELECT ... WHERE id = $1", id)
//	})
func (db *DB) WithRestaurant(ctx context.Context, restaurantID string, fn func(context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		if current, _ := ctx.Value(restaurantKey{}).(string); current == restaurantID {
			return fn(ctx)
		}
		if err := setRestaurant(ctx, tx, restaurantID); err != nil {
			return err
		}
		return fn(context.WithValue(ctx, restaurantKey{}, restaurantID))
	}

	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := setRestaurant(ctx, tx, restaurantID); err != nil {
			return err
		}
		scoped := context.WithValue(ctx, txKey{}, tx)
		return fn(context.WithValue(scoped, restaurantKey{}, restaurantID))
	})
}

func setRestaurant(ctx context.Context, tx *sqlx.Tx, restaurantID string) error {
	// set_config with is_local=true behaves like SET LOCAL but accepts a bind parameter.
	if _, err := tx.ExecContext(ctx, "SELECT set_config('app.current_restaurant', $1, true)", restaurantID); err != nil {
		return fmt.Errorf("failed to set app.current_restaurant to %s: %w", restaurantID, err)
	}
	return nil
}
