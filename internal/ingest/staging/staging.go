// Package staging reads finalized vendor rows written by the POS connectors.
// Orders are returned in id order, one page at a time, each with its lines.
package staging

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// SquareOrder is a completed Square order. Money is in cents.
type SquareOrder struct {
	OrderID            string         `db:"order_id"`
	ClosedAt           time.Time      `db:"closed_at"`
	TaxCents           int64          `db:"total_tax_cents"`
	TipCents           int64          `db:"total_tip_cents"`
	DiscountCents      int64          `db:"total_discount_cents"`
	ServiceChargeCents int64          `db:"total_service_charge_cents"`
	RawJSON            types.JSONText `db:"raw_json"`
	Items              []SquareLineItem
}

// SquareLineItem is a line of a Square order. Quantity is a decimal string.
type SquareLineItem struct {
	OrderID         string         `db:"order_id"`
	UID             *string        `db:"uid"`
	Name            *string        `db:"name"`
	Quantity        *string        `db:"quantity"`
	BasePriceCents  *int64         `db:"base_price_cents"`
	TotalMoneyCents *int64         `db:"total_money_cents"`
	CategoryName    *string        `db:"category_name"`
	RawJSON         types.JSONText `db:"raw_json"`
}

// CloverOrder is a locked Clover order. Money is in cents.
type CloverOrder struct {
	OrderID  string         `db:"order_id"`
	ClosedAt time.Time      `db:"closed_at"`
	TaxCents int64          `db:"tax_cents"`
	TipCents int64          `db:"tip_cents"`
	RawJSON  types.JSONText `db:"raw_json"`
	Items    []CloverLineItem
}

// CloverLineItem is a line of a Clover order. UnitQty is in thousandths and
// PriceCents is the price of one unit.
type CloverLineItem struct {
	OrderID      string         `db:"order_id"`
	LineItemID   *string        `db:"line_item_id"`
	Name         *string        `db:"name"`
	UnitQty      *int64         `db:"unit_qty"`
	PriceCents   *int64         `db:"price_cents"`
	CategoryName *string        `db:"category_name"`
	RawJSON      types.JSONText `db:"raw_json"`
}

// ToastOrder is a closed and paid Toast order. Money is decimal currency.
type ToastOrder struct {
	OrderGUID           string          `db:"order_guid"`
	ClosedAt            time.Time       `db:"closed_date"`
	TaxAmount           decimal.Decimal `db:"tax_amount"`
	TipAmount           decimal.Decimal `db:"tip_amount"`
	ServiceChargeAmount decimal.Decimal `db:"service_charge_amount"`
	DiscountAmount      decimal.Decimal `db:"discount_amount"`
	RawJSON             types.JSONText  `db:"raw_json"`
	Items               []ToastItem
}

// ToastItem is a selection on a Toast check.
type ToastItem struct {
	OrderGUID  string              `db:"order_guid"`
	ItemGUID   *string             `db:"item_guid"`
	ItemName   *string             `db:"item_name"`
	Quantity   decimal.NullDecimal `db:"quantity"`
	UnitPrice  decimal.NullDecimal `db:"unit_price"`
	TotalPrice decimal.NullDecimal `db:"total_price"`
	MenuGroup  *string             `db:"menu_group"`
	Voided     bool                `db:"voided"`
	RawJSON    types.JSONText      `db:"raw_json"`
}

// Shift4Charge is a captured card charge. AmountCents excludes the tip.
type Shift4Charge struct {
	ChargeID    string         `db:"charge_id"`
	CapturedAt  time.Time      `db:"captured_at"`
	AmountCents *int64         `db:"amount_cents"`
	TipCents    int64          `db:"tip_cents"`
	Description *string        `db:"description"`
	RawJSON     types.JSONText `db:"raw_json"`
}

// Reader pages through the staging tables. The staging tables carry no row
// level security; every query filters on restaurant_id.
type Reader struct {
	db *sqlx.DB
}

// NewReader creates a new staging reader
func NewReader(db *sqlx.DB) *Reader {
	return &Reader{db: db}
}

// SquareOrders returns up to limit completed orders with order_id after the cursor.
func (r *Reader) SquareOrders(ctx context.Context, restaurantID, after string, limit int) ([]SquareOrder, error) {
	var orders []SquareOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT order_id, closed_at, total_tax_cents, total_tip_cents,
		       total_discount_cents, total_service_charge_cents, raw_json
		FROM square_orders
		WHERE restaurant_id = $1 AND order_id > $2
		  AND state = 'COMPLETED'
		  AND closed_at IS NOT NULL AND service_date IS NOT NULL
		ORDER BY order_id
		LIMIT $3`,
		restaurantID, after, limit,
	)
	if err != nil || len(orders) == 0 {
		return nil, err
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}

	var items []SquareLineItem
	err = r.db.SelectContext(ctx, &items, `
		SELECT order_id, uid, name, quantity, base_price_cents, total_money_cents, category_name, raw_json
		FROM square_order_line_items
		WHERE restaurant_id = $1 AND order_id = ANY($2)
		ORDER BY order_id, uid`,
		restaurantID, pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[string][]SquareLineItem, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].OrderID]
	}
	return orders, nil
}

// CloverOrders returns up to limit locked orders with order_id after the cursor.
// Refunded lines are left out.
func (r *Reader) CloverOrders(ctx context.Context, restaurantID, after string, limit int) ([]CloverOrder, error) {
	var orders []CloverOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT order_id, closed_at, tax_cents, tip_cents, raw_json
		FROM clover_orders
		WHERE restaurant_id = $1 AND order_id > $2
		  AND state = 'locked'
		  AND closed_at IS NOT NULL AND service_date IS NOT NULL
		ORDER BY order_id
		LIMIT $3`,
		restaurantID, after, limit,
	)
	if err != nil || len(orders) == 0 {
		return nil, err
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}

	var items []CloverLineItem
	err = r.db.SelectContext(ctx, &items, `
		SELECT order_id, line_item_id, name, unit_qty, price_cents, category_name, raw_json
		FROM clover_order_line_items
		WHERE restaurant_id = $1 AND order_id = ANY($2) AND refunded = false
		ORDER BY order_id, line_item_id`,
		restaurantID, pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[string][]CloverLineItem, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].OrderID]
	}
	return orders, nil
}

// ToastOrders returns up to limit closed, paid, non-voided orders after the cursor.
func (r *Reader) ToastOrders(ctx context.Context, restaurantID, after string, limit int) ([]ToastOrder, error) {
	var orders []ToastOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT order_guid, closed_date, tax_amount, tip_amount, service_charge_amount, discount_amount, raw_json
		FROM toast_orders
		WHERE restaurant_id = $1 AND order_guid > $2
		  AND voided = false
		  AND payment_status IN ('CLOSED', 'PAID')
		  AND closed_date IS NOT NULL AND business_date IS NOT NULL
		ORDER BY order_guid
		LIMIT $3`,
		restaurantID, after, limit,
	)
	if err != nil || len(orders) == 0 {
		return nil, err
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderGUID
	}

	var items []ToastItem
	err = r.db.SelectContext(ctx, &items, `
		SELECT order_guid, item_guid, item_name, quantity, unit_price, total_price, menu_group, voided, raw_json
		FROM toast_order_items
		WHERE restaurant_id = $1 AND order_guid = ANY($2)
		ORDER BY order_guid, item_guid`,
		restaurantID, pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[string][]ToastItem, len(orders))
	for _, item := range items {
		byOrder[item.OrderGUID] = append(byOrder[item.OrderGUID], item)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].OrderGUID]
	}
	return orders, nil
}

// Shift4Charges returns up to limit captured charges after the cursor.
func (r *Reader) Shift4Charges(ctx context.Context, restaurantID, after string, limit int) ([]Shift4Charge, error) {
	var charges []Shift4Charge
	err := r.db.SelectContext(ctx, &charges, `
		SELECT charge_id, captured_at, amount_cents, tip_cents, description, raw_json
		FROM shift4_charges
		WHERE restaurant_id = $1 AND charge_id > $2
		  AND status = 'captured'
		  AND captured_at IS NOT NULL AND service_date IS NOT NULL
		ORDER BY charge_id
		LIMIT $3`,
		restaurantID, after, limit,
	)
	if err != nil {
		return nil, err
	}
	return charges, nil
}
