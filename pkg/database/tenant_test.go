package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablestack/tablestack-backend/pkg/testutil"
)

func TestWithRestaurant_ScopesAndCommits(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectRestaurantScope("r-1")
	mockDB.ExpectExec("DELETE FROM unified_sales WHERE id = $1").
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	db := mockDB.DB()
	err := db.WithRestaurant(context.Background(), "r-1", func(ctx context.Context) error {
		_, err := db.Conn(ctx).ExecContext(ctx, "DELETE FROM unified_sales WHERE id = $1", "s-1")
		return err
	})

	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestWithRestaurant_NestedSameRestaurantReusesTransaction(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectRestaurantScope("r-1")
	mockDB.ExpectCommit()

	db := mockDB.DB()
	calls := 0
	err := db.WithRestaurant(context.Background(), "r-1", func(ctx context.Context) error {
		return db.WithRestaurant(ctx, "r-1", func(context.Context) error {
			calls++
			return nil
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	mockDB.ExpectationsWereMet(t)
}

func TestWithRestaurant_NestedOtherRestaurantRescopes(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectRestaurantScope("r-1")
	mockDB.ExpectExec("SELECT set_config('app.current_restaurant', $1, true)").
		WithArgs("r-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	db := mockDB.DB()
	err := db.WithRestaurant(context.Background(), "r-1", func(ctx context.Context) error {
		return db.WithRestaurant(ctx, "r-2", func(context.Context) error { return nil })
	})

	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestWithRestaurant_RollsBackOnError(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectRestaurantScope("r-1")
	mockDB.ExpectRollback()

	boom := errors.New("boom")
	err := mockDB.DB().WithRestaurant(context.Background(), "r-1", func(context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	mockDB.ExpectationsWereMet(t)
}
