package repository

import (
	"context"
	"fmt"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/database"
)

// windowFilter restricts ledger rows to top-level rows of one restaurant in a
// date window, optionally matching an item name pattern.
const windowFilter = `
	s.restaurant_id = $1
	AND s.sale_date BETWEEN $2 AND $3
	AND s.parent_sale_id IS NULL
	AND ($4::text IS NULL OR s.item_name ILIKE $4)`

// totalsTemplate aggregates the "lines" CTE. base holds the window rows; lines
// holds the amounts a view attributes to them.
const totalsTemplate = `
	WITH base AS (
		SELECT s.id, s.item_name, s.item_type, s.adjustment_type, s.total_price, s.is_split
		FROM unified_sales s
		WHERE ` + windowFilter + `
	),
	lines AS (%s)
	SELECT
		(SELECT COUNT(*) FROM base) AS count,
		COALESCE(SUM(l.amount) FILTER (WHERE l.item_type = 'sale'), 0) AS revenue,
		COALESCE(SUM(l.amount) FILTER (
			WHERE l.item_type = 'discount' AND l.adjustment_type IS DISTINCT FROM 'void'), 0) AS discounts,
		COALESCE(SUM(l.amount) FILTER (
			WHERE l.item_type = 'discount' AND l.adjustment_type = 'void'), 0) AS voids,
		COALESCE(SUM(l.amount) FILTER (WHERE l.item_type NOT IN ('sale', 'discount')), 0) AS pass_through_amount,
		(SELECT COUNT(DISTINCT item_name) FROM base) AS unique_items,
		(SELECT COALESCE(SUM(total_price), 0) FROM base) AS collected_at_pos
	FROM lines l`

// Split parents give way to their allocations, which inherit the parent's type.
const categorizationLines = `
		SELECT b.item_type, b.adjustment_type, b.total_price AS amount
		FROM base b WHERE NOT b.is_split
		UNION ALL
		SELECT b.item_type, b.adjustment_type, a.amount
		FROM base b JOIN unified_sales_splits a ON a.sale_id = b.id
		WHERE b.is_split`

// Every row counts as the POS collected it.
const collectionLines = `
		SELECT b.item_type, b.adjustment_type, b.total_price AS amount FROM base b`

var totalsQueries = map[domain.TotalsView]string{
	domain.ViewCategorization: fmt.Sprintf(totalsTemplate, categorizationLines),
	domain.ViewCollection:     fmt.Sprintf(totalsTemplate, collectionLines),
}

const revenueByCategoryQuery = `
	WITH base AS (
		SELECT s.id, s.item_type, s.category_id, s.total_price, s.is_split
		FROM unified_sales s
		WHERE ` + windowFilter + `
	),
	lines AS (
		SELECT b.item_type, b.category_id, b.total_price AS amount
		FROM base b WHERE NOT b.is_split
		UNION ALL
		SELECT b.item_type, a.category_id, a.amount
		FROM base b JOIN unified_sales_splits a ON a.sale_id = b.id
		WHERE b.is_split
	)
	SELECT l.category_id, c.account_code, COALESCE(c.account_name, $5) AS account_name, c.account_type,
	       SUM(l.amount) AS total, COUNT(*) AS count
	FROM lines l
	LEFT JOIN chart_of_accounts c ON c.id = l.category_id
	WHERE l.category_id IS NOT NULL OR l.item_type = 'sale'
	GROUP BY l.category_id, c.account_code, c.account_name, c.account_type
	ORDER BY total DESC, account_name`

const passThroughQuery = `
	SELECT s.adjustment_type, SUM(s.total_price) AS total, COUNT(*) AS count
	FROM unified_sales s
	WHERE ` + windowFilter + `
	  AND s.adjustment_type IS NOT NULL
	GROUP BY s.adjustment_type
	ORDER BY s.adjustment_type`

const tipsByDateQuery = `
	SELECT to_char(s.sale_date, 'YYYY-MM-DD') AS sale_date, s.pos_system,
	       SUM(a.amount) AS total, COUNT(*) AS count
	FROM unified_sales_splits a
	JOIN unified_sales s ON s.id = a.sale_id
	JOIN chart_of_accounts c ON c.id = a.category_id
	WHERE ` + windowFilter + `
	  AND (c.account_name ILIKE '%tip%' OR c.account_subtype ILIKE '%tip%')
	GROUP BY s.sale_date, s.pos_system
	ORDER BY s.sale_date, s.pos_system`

// ReportRepository runs the ledger aggregates. Callers validate the query first.
type ReportRepository struct {
	db *database.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func windowArgs(q domain.ReportQuery) []interface{} {
	return []interface{}{q.RestaurantID, q.StartDate, q.EndDate, q.SearchPattern()}
}

// Totals returns the summary of the window in the requested view.
func (r *ReportRepository) Totals(ctx context.Context, q domain.ReportQuery) (*domain.Totals, error) {
	view := q.View
	if view == "" {
		view = domain.ViewCategorization
	}
	query, ok := totalsQueries[view]
	if !ok {
		return nil, fmt.Errorf("unknown totals view %q", view)
	}

	totals := domain.Totals{View: view}
	err := r.db.WithRestaurant(ctx, q.RestaurantID, func(ctx context.Context) error {
		return r.db.Conn(ctx).GetContext(ctx, &totals, query, windowArgs(q)...)
	})
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

// RevenueByCategory groups amounts by chart-of-accounts entry, with uncategorized
// sales collected under domain.UncategorizedName.
func (r *ReportRepository) RevenueByCategory(ctx context.Context, q domain.ReportQuery) ([]domain.CategoryRevenue, error) {
	rows := []domain.CategoryRevenue{}
	err := r.db.WithRestaurant(ctx, q.RestaurantID, func(ctx context.Context) error {
		args := append(windowArgs(q), domain.UncategorizedName)
		return r.db.Conn(ctx).SelectContext(ctx, &rows, revenueByCategoryQuery, args...)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PassThroughTotals sums rows by adjustment type.
func (r *ReportRepository) PassThroughTotals(ctx context.Context, q domain.ReportQuery) ([]domain.PassThroughTotal, error) {
	rows := []domain.PassThroughTotal{}
	err := r.db.WithRestaurant(ctx, q.RestaurantID, func(ctx context.Context) error {
		return r.db.Conn(ctx).SelectContext(ctx, &rows, passThroughQuery, windowArgs(q)...)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TipsByDate sums split allocations booked to tip accounts per day and vendor.
func (r *ReportRepository) TipsByDate(ctx context.Context, q domain.ReportQuery) ([]domain.TipTotal, error) {
	rows := []domain.TipTotal{}
	err := r.db.WithRestaurant(ctx, q.RestaurantID, func(ctx context.Context) error {
		return r.db.Conn(ctx).SelectContext(ctx, &rows, tipsByDateQuery, windowArgs(q)...)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
