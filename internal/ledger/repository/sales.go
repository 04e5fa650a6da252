package repository

import (
	"context"
	"database/sql"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/database"
	"github.com/tablestack/tablestack-backend/pkg/errors"
)

// saleColumns selects a full ledger row. Dates and times come back as text so
// they are not shifted by the session time zone.
const saleColumns = `
	id, restaurant_id, pos_system, external_order_id, external_item_id, item_name,
	quantity, unit_price, total_price,
	to_char(sale_date, 'YYYY-MM-DD') AS sale_date, to_char(sale_time, 'HH24:MI:SS') AS sale_time,
	pos_category, item_type, adjustment_type, category_id, is_categorized,
	suggested_category_id, ai_confidence, ai_reasoning, is_split, parent_sale_id,
	raw_data, created_at, updated_at`

const insertSale = `
	INSERT INTO unified_sales (
		restaurant_id, pos_system, external_order_id, external_item_id, item_name,
		quantity, unit_price, total_price, sale_date, sale_time, pos_category,
		item_type, adjustment_type, raw_data
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// UpsertOutcome reports what a single ledger write did.
type UpsertOutcome int

const (
	OutcomeSkipped UpsertOutcome = iota
	OutcomeInserted
	OutcomeUpdated
)

// SalesRepository handles unified_sales and unified_sales_splits persistence.
// Every method runs inside a restaurant-scoped transaction and filters on
// restaurant_id as well, so owner connections that bypass row level security
// still cannot cross tenants.
type SalesRepository struct {
	db *database.DB
}

// NewSalesRepository creates a new sales repository
func NewSalesRepository(db *database.DB) *SalesRepository {
	return &SalesRepository{db: db}
}

// GetByID returns a ledger row of the restaurant.
func (r *SalesRepository) GetByID(ctx context.Context, restaurantID, id string) (*domain.UnifiedSale, error) {
	return r.get(ctx, restaurantID, id, "")
}

// GetForUpdate returns a ledger row and locks it until the surrounding
// transaction ends. Call it inside WithRestaurant.
func (r *SalesRepository) GetForUpdate(ctx context.Context, restaurantID, id string) (*domain.UnifiedSale, error) {
	return r.get(ctx, restaurantID, id, " FOR UPDATE")
}

func (r *SalesRepository) get(ctx context.Context, restaurantID, id, suffix string) (*domain.UnifiedSale, error) {
	var sale domain.UnifiedSale

	err := r.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		query := `SELECT ` + saleColumns + ` FROM unified_sales WHERE id = $1 AND restaurant_id = $2` + suffix
		return r.db.Conn(ctx).GetContext(ctx, &sale, query, id, restaurantID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("sale")
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func saleArgs(s *domain.UnifiedSale) []interface{} {
	if len(s.RawData) == 0 {
		s.RawData = []byte("{}")
	}
	return []interface{}{
		s.RestaurantID, s.POSSystem, s.ExternalOrderID, s.ExternalItemID, s.ItemName,
		s.Quantity, s.UnitPrice, s.TotalPrice, s.SaleDate, s.SaleTime, s.POSCategory,
		s.ItemType, s.AdjustmentType, s.RawData,
	}
}

// InsertIfAbsent writes a ledger row unless its identity already exists.
// Existing rows, including their categorization and split state, are left alone.
func (r *SalesRepository) InsertIfAbsent(ctx context.Context, s *domain.UnifiedSale) (bool, error) {
	var id string

	err := r.db.WithRestaurant(ctx, s.RestaurantID, func(ctx context.Context) error {
		query := insertSale + `
			ON CONFLICT (restaurant_id, pos_system, external_order_id, external_item_id)
				WHERE parent_sale_id IS NULL
			DO NOTHING
			RETURNING id`
		return r.db.Conn(ctx).GetContext(ctx, &id, query, saleArgs(s)...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return false, appErr
		}
		return false, err
	}

	s.ID = id
	return true, nil
}

// Upsert writes a ledger row, refreshing the vendor-owned metrics of an existing
// one. Categorization fields are never touched and split parents are skipped.
func (r *SalesRepository) Upsert(ctx context.Context, s *domain.UnifiedSale) (UpsertOutcome, error) {
	var row struct {
		ID       string `db:"id"`
		Inserted bool   `db:"inserted"`
	}

	err := r.db.WithRestaurant(ctx, s.RestaurantID, func(ctx context.Context) error {
		query := insertSale + `
			ON CONFLICT (restaurant_id, pos_system, external_order_id, external_item_id)
				WHERE parent_sale_id IS NULL
			DO UPDATE SET
				item_name = EXCLUDED.item_name,
				quantity = EXCLUDED.quantity,
				unit_price = EXCLUDED.unit_price,
				total_price = EXCLUDED.total_price,
				sale_date = EXCLUDED.sale_date,
				sale_time = EXCLUDED.sale_time,
				pos_category = EXCLUDED.pos_category,
				raw_data = EXCLUDED.raw_data,
				updated_at = NOW()
			WHERE unified_sales.is_split = false
			RETURNING id, (xmax = 0) AS inserted`
		return r.db.Conn(ctx).GetContext(ctx, &row, query, saleArgs(s)...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return OutcomeSkipped, appErr
		}
		return OutcomeSkipped, err
	}

	s.ID = row.ID
	if row.Inserted {
		return OutcomeInserted, nil
	}
	return OutcomeUpdated, nil
}

// CreateManual inserts a hand-entered row. A duplicate identity is a conflict.
func (r *SalesRepository) CreateManual(ctx context.Context, s *domain.UnifiedSale) error {
	err := r.db.WithRestaurant(ctx, s.RestaurantID, func(ctx context.Context) error {
		query := insertSale + ` RETURNING id, is_categorized, is_split, created_at, updated_at`
		return r.db.Conn(ctx).QueryRowxContext(ctx, query, saleArgs(s)...).
			Scan(&s.ID, &s.IsCategorized, &s.IsSplit, &s.CreatedAt, &s.UpdatedAt)
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Delete removes a ledger row. Allocations and legacy split children cascade.
func (r *SalesRepository) Delete(ctx context.Context, restaurantID, id string) error {
	return r.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		result, err := r.db.Conn(ctx).ExecContext(ctx,
			`DELETE FROM unified_sales WHERE id = $1 AND restaurant_id = $2`, id, restaurantID)
		if err != nil {
			return err
		}
		return requireAffected(result, "sale")
	})
}

// Categorize assigns a category and clears any pending suggestion.
func (r *SalesRepository) Categorize(ctx context.Context, restaurantID, id, categoryID string) error {
	return r.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		result, err := r.db.Conn(ctx).ExecContext(ctx, `
			UPDATE unified_sales
			SET category_id = $3, is_categorized = true,
			    suggested_category_id = NULL, ai_confidence = NULL, ai_reasoning = NULL,
			    updated_at = NOW()
			WHERE id = $1 AND restaurant_id = $2`,
			id, restaurantID, categoryID,
		)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return requireAffected(result, "sale")
	})
}

// Uncategorize returns a row to the review queue.
func (r *SalesRepository) Uncategorize(ctx context.Context, restaurantID, id string) error {
	return r.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		result, err := r.db.Conn(ctx).ExecContext(ctx, `
			UPDATE unified_sales
			SET category_id = NULL, is_categorized = false, updated_at = NOW()
			WHERE id = $1 AND restaurant_id = $2`,
			id, restaurantID,
		)
		if err != nil {
			return err
		}
		return requireAffected(result, "sale")
	})
}

// ClearSuggestion drops the suggested category without categorizing.
func (r *SalesRepository) ClearSuggestion(ctx context.Context, restaurantID, id string) error {
	return r.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		result, err := r.db.Conn(ctx).ExecContext(ctx, `
			UPDATE unified_sales
			SET suggested_category_id = NULL, ai_confidence = NULL, ai_reasoning = NULL, updated_at = NOW()
			WHERE id = $1 AND restaurant_id = $2`,
			id, restaurantID,
		)
		if err != nil {
			return err
		}
		return requireAffected(result, "sale")
	})
}

// ReplaceSplits swaps whatever allocations a sale has for the given ones and
// marks it as a split parent. The sale must already be locked by GetForUpdate in
// the same transaction. Allocations without a description take the item name.
func (r *SalesRepository) ReplaceSplits(ctx context.Context, sale *domain.UnifiedSale, allocations []domain.Allocation) ([]domain.SplitAllocation, error) {
	stored := make([]domain.SplitAllocation, 0, len(allocations))

	err := r.db.WithRestaurant(ctx, sale.RestaurantID, func(ctx context.Context) error {
		if err := r.clearSplits(ctx, sale); err != nil {
			return err
		}

		conn := r.db.Conn(ctx)
		for i, a := range allocations {
			split := domain.SplitAllocation{
				SaleID:      sale.ID,
				CategoryID:  a.CategoryID,
				Amount:      a.Amount,
				Description: sale.ItemName,
				Position:    i,
			}
			if a.Description != nil && *a.Description != "" {
				split.Description = *a.Description
			}

			err := conn.QueryRowxContext(ctx, `
				INSERT INTO unified_sales_splits (sale_id, category_id, amount, description, position)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id, created_at`,
				split.SaleID, split.CategoryID, split.Amount, split.Description, split.Position,
			).Scan(&split.ID, &split.CreatedAt)
			if err != nil {
				if appErr := database.MapPQError(err); appErr != nil {
					return appErr
				}
				return err
			}
			stored = append(stored, split)
		}

		_, err := conn.ExecContext(ctx, `
			UPDATE unified_sales
			SET is_split = true, is_categorized = true, category_id = NULL,
			    suggested_category_id = NULL, ai_confidence = NULL, ai_reasoning = NULL,
			    updated_at = NOW()
			WHERE id = $1 AND restaurant_id = $2`,
			sale.ID, sale.RestaurantID,
		)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Unsplit removes all allocations of a sale and reopens it for categorization.
func (r *SalesRepository) Unsplit(ctx context.Context, sale *domain.UnifiedSale) error {
	return r.db.WithRestaurant(ctx, sale.RestaurantID, func(ctx context.Context) error {
		if err := r.clearSplits(ctx, sale); err != nil {
			return err
		}
		_, err := r.db.Conn(ctx).ExecContext(ctx, `
			UPDATE unified_sales
			SET is_split = false, is_categorized = false, category_id = NULL, updated_at = NOW()
			WHERE id = $1 AND restaurant_id = $2`,
			sale.ID, sale.RestaurantID,
		)
		return err
	})
}

// clearSplits deletes allocation rows and legacy child ledger rows of a sale.
func (r *SalesRepository) clearSplits(ctx context.Context, sale *domain.UnifiedSale) error {
	conn := r.db.Conn(ctx)
	if _, err := conn.ExecContext(ctx, `DELETE FROM unified_sales_splits WHERE sale_id = $1`, sale.ID); err != nil {
		return err
	}
	_, err := conn.ExecContext(ctx,
		`DELETE FROM unified_sales WHERE parent_sale_id = $1 AND restaurant_id = $2`,
		sale.ID, sale.RestaurantID,
	)
	return err
}

// ListSplits returns the allocations of a sale in insertion order.
func (r *SalesRepository) ListSplits(ctx context.Context, restaurantID, saleID string) ([]domain.SplitAllocation, error) {
	var splits []domain.SplitAllocation

	err := r.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		return r.db.Conn(ctx).SelectContext(ctx, &splits, `
			SELECT a.id, a.sale_id, a.category_id, a.amount, a.description, a.position, a.created_at
			FROM unified_sales_splits a
			JOIN unified_sales s ON s.id = a.sale_id
			WHERE a.sale_id = $1 AND s.restaurant_id = $2
			ORDER BY a.position`,
			saleID, restaurantID,
		)
	})
	if err != nil {
		return nil, err
	}
	return splits, nil
}

func requireAffected(result sql.Result, resource string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound(resource)
	}
	return nil
}
