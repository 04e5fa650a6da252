package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// FixtureFactory inserts ledger fixtures through the owner connection, which
// bypasses row level security. Every restaurant it creates is removed when the
// test finishes.
type FixtureFactory struct {
	db *sqlx.DB
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

var stagingTables = []string{
	"square_order_line_items", "square_orders",
	"clover_order_line_items", "clover_orders",
	"toast_order_items", "toast_orders",
	"shift4_charges",
}

// Restaurant creates a restaurant in America/Chicago and returns its id.
func (f *FixtureFactory) Restaurant(t *testing.T, ctx context.Context) string {
	tz := "America/Chicago"
	return f.RestaurantWithTimezone(t, ctx, &tz)
}

// RestaurantWithTimezone creates a restaurant with the given timezone, which
// may be nil or invalid.
func (f *FixtureFactory) RestaurantWithTimezone(t *testing.T, ctx context.Context, timezone *string) string {
	t.Helper()

	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO restaurants (id, name, timezone, created_by) VALUES ($1, $2, $3, $4)`,
		id, "Test Restaurant "+id[:8], timezone, uuid.New().String(),
	)
	if err != nil {
		t.Fatalf("failed to create restaurant fixture: %v", err)
	}

	t.Cleanup(func() {
		for _, table := range stagingTables {
			f.db.ExecContext(context.Background(), fmt.Sprintf("DELETE FROM %s WHERE restaurant_id = $1", table), id)
		}
		if _, err := f.db.ExecContext(context.Background(), "DELETE FROM restaurants WHERE id = $1", id); err != nil {
			t.Logf("warning: failed to drop restaurant %s: %v", id, err)
		}
	})

	return id
}

// Member grants a new user the role in the restaurant and returns the user id.
func (f *FixtureFactory) Member(t *testing.T, ctx context.Context, restaurantID, role string) string {
	t.Helper()

	userID := uuid.New().String()
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO user_restaurants (user_id, restaurant_id, role) VALUES ($1, $2, $3)`,
		userID, restaurantID, role,
	)
	if err != nil {
		t.Fatalf("failed to create membership fixture: %v", err)
	}
	return userID
}

// Category adds a chart-of-accounts entry and returns its id.
func (f *FixtureFactory) Category(t *testing.T, ctx context.Context, restaurantID, code, name string) string {
	t.Helper()

	var id string
	err := f.db.GetContext(ctx, &id, `
		INSERT INTO chart_of_accounts (restaurant_id, account_code, account_name, account_type)
		VALUES ($1, $2, $3, 'revenue')
		RETURNING id`,
		restaurantID, code, name,
	)
	if err != nil {
		t.Fatalf("failed to create category fixture: %v", err)
	}
	return id
}

// Connection marks the vendor as actively connected for the restaurant.
func (f *FixtureFactory) Connection(t *testing.T, ctx context.Context, restaurantID, posSystem string) {
	t.Helper()

	_, err := f.db.ExecContext(ctx,
		`INSERT INTO pos_connections (restaurant_id, pos_system) VALUES ($1, $2)`,
		restaurantID, posSystem,
	)
	if err != nil {
		t.Fatalf("failed to create connection fixture: %v", err)
	}
}

// SaleFixture describes a ledger row. Zero values get defaults.
type SaleFixture struct {
	RestaurantID    string
	POSSystem       string
	ExternalOrderID string
	ExternalItemID  string
	ItemName        string
	Total           string
	SaleDate        string
	ItemType        string
	AdjustmentType  *string
	CategoryID      *string
	SuggestedID     *string
}

// Sale inserts a ledger row and returns its id.
func (f *FixtureFactory) Sale(t *testing.T, ctx context.Context, s SaleFixture) string {
	t.Helper()

	if s.POSSystem == "" {
		s.POSSystem = "square"
	}
	if s.ExternalOrderID == "" {
		s.ExternalOrderID = "order-" + uuid.New().String()[:8]
	}
	if s.ExternalItemID == "" {
		s.ExternalItemID = "item-" + uuid.New().String()[:8]
	}
	if s.ItemName == "" {
		s.ItemName = "Burger"
	}
	if s.Total == "" {
		s.Total = "10.00"
	}
	if s.SaleDate == "" {
		s.SaleDate = "2024-06-01"
	}
	if s.ItemType == "" {
		s.ItemType = "sale"
	}

	var id string
	err := f.db.GetContext(ctx, `
		INSERT INTO unified_sales (
			restaurant_id, pos_system, external_order_id, external_item_id, item_name,
			quantity, unit_price, total_price, sale_date, item_type, adjustment_type,
			category_id, is_categorized, suggested_category_id
		) VALUES ($1, $2, $3, $4, $5, 1, $6, $6, $7, $8, $9, $10, $10 IS NOT NULL, $11)
		RETURNING id`,
		s.RestaurantID, s.POSSystem, s.ExternalOrderID, s.ExternalItemID, s.ItemName,
		s.Total, s.SaleDate, s.ItemType, s.AdjustmentType, s.CategoryID, s.SuggestedID,
	)
	if err != nil {
		t.Fatalf("failed to create sale fixture: %v", err)
	}
	return id
}
