package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"

	"github.com/tablestack/tablestack-backend/internal/ingest/staging"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
)

// Row error codes.
const (
	CodeMissingIdentifier = "missing_identifier"
	CodeInvalidUnits      = "invalid_units"
	CodeWriteFailed       = "write_failed"
)

const unknownItem = "Unknown Item"

// RowError is a staging row that was skipped. It never aborts the batch.
type RowError struct {
	ExternalOrderID string
	ExternalItemID  string
	Code            string
	Message         string
	Payload         types.JSONText
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.ExternalOrderID, e.ExternalItemID, e.Message)
}

// Mapped is the outcome of mapping one staging order.
type Mapped struct {
	Sales  []domain.UnifiedSale
	Errors []RowError
}

func (m *Mapped) fail(orderID, itemID, code, message string, payload types.JSONText) {
	m.Errors = append(m.Errors, RowError{
		ExternalOrderID: orderID,
		ExternalItemID:  itemID,
		Code:            code,
		Message:         message,
		Payload:         payload,
	})
}

// base fills the fields every row of an order shares.
func base(restaurantID string, vendor domain.POSSystem, orderID string, closedAt time.Time, loc *time.Location) domain.UnifiedSale {
	date, clock := LocalSaleTime(closedAt, loc)
	return domain.UnifiedSale{
		RestaurantID:    restaurantID,
		POSSystem:       vendor,
		ExternalOrderID: orderID,
		SaleDate:        date,
		SaleTime:        &clock,
		ItemType:        domain.ItemSale,
	}
}

// adjustment builds an order-level row such as tax or tip. Discounts are
// stored as negative amounts.
func adjustment(row domain.UnifiedSale, suffix, name string, itemType domain.ItemType, adj domain.AdjustmentType, amount decimal.Decimal, raw types.JSONText) domain.UnifiedSale {
	row.ExternalItemID = row.ExternalOrderID + ":" + suffix
	row.ItemName = name
	row.Quantity = decimal.NewFromInt(1)
	row.UnitPrice = amount
	row.TotalPrice = amount
	row.ItemType = itemType
	row.AdjustmentType = &adj
	row.RawData = raw
	return row
}

func itemName(name *string) string {
	if name == nil || strings.TrimSpace(*name) == "" {
		return unknownItem
	}
	return strings.TrimSpace(*name)
}

func present(id *string) bool {
	return id != nil && strings.TrimSpace(*id) != ""
}

// Square maps a completed Square order: one row per line plus tax, tip,
// service charge and discount rows for non-zero order totals.
func Square(restaurantID string, o staging.SquareOrder, loc *time.Location) Mapped {
	var out Mapped
	if strings.TrimSpace(o.OrderID) == "" {
		out.fail("", "", CodeMissingIdentifier, "order id is empty", o.RawJSON)
		return out
	}
	row := base(restaurantID, domain.POSSquare, o.OrderID, o.ClosedAt, loc)

	for _, item := range o.Items {
		if !present(item.UID) {
			out.fail(o.OrderID, "", CodeMissingIdentifier, "line item uid is empty", item.RawJSON)
			continue
		}
		units, err := SquareUnits(item.Quantity, item.BasePriceCents, item.TotalMoneyCents)
		if err != nil {
			out.fail(o.OrderID, *item.UID, CodeInvalidUnits, err.Error(), item.RawJSON)
			continue
		}

		sale := row
		sale.ExternalItemID = *item.UID
		sale.ItemName = itemName(item.Name)
		sale.Quantity = units.Quantity
		sale.UnitPrice = units.UnitPrice
		sale.TotalPrice = units.Total
		sale.POSCategory = item.CategoryName
		sale.RawData = item.RawJSON
		out.Sales = append(out.Sales, sale)
	}

	if o.TaxCents != 0 {
		out.Sales = append(out.Sales, adjustment(row, "tax", "Sales Tax", domain.ItemTax, domain.AdjustTax, Cents(o.TaxCents), o.RawJSON))
	}
	if o.TipCents != 0 {
		out.Sales = append(out.Sales, adjustment(row, "tip", "Tip", domain.ItemTip, domain.AdjustTip, Cents(o.TipCents), o.RawJSON))
	}
	if o.ServiceChargeCents != 0 {
		out.Sales = append(out.Sales, adjustment(row, "service_charge", "Service Charge", domain.ItemServiceCharge, domain.AdjustServiceCharge, Cents(o.ServiceChargeCents), o.RawJSON))
	}
	if o.DiscountCents != 0 {
		out.Sales = append(out.Sales, adjustment(row, "discount", "Discount", domain.ItemDiscount, domain.AdjustDiscount, Cents(o.DiscountCents).Abs().Neg(), o.RawJSON))
	}
	return out
}

// Clover maps a locked Clover order: one row per line plus tax and tip rows.
func Clover(restaurantID string, o staging.CloverOrder, loc *time.Location) Mapped {
	var out Mapped
	if strings.TrimSpace(o.OrderID) == "" {
		out.fail("", "", CodeMissingIdentifier, "order id is empty", o.RawJSON)
		return out
	}
	row := base(restaurantID, domain.POSClover, o.OrderID, o.ClosedAt, loc)

	for _, item := range o.Items {
		if !present(item.LineItemID) {
			out.fail(o.OrderID, "", CodeMissingIdentifier, "line item id is empty", item.RawJSON)
			continue
		}
		units, err := CloverUnits(item.UnitQty, item.PriceCents)
		if err != nil {
			out.fail(o.OrderID, *item.LineItemID, CodeInvalidUnits, err.Error(), item.RawJSON)
			continue
		}

		sale := row
		sale.ExternalItemID = *item.LineItemID
		sale.ItemName = itemName(item.Name)
		sale.Quantity = units.Quantity
		sale.UnitPrice = units.UnitPrice
		sale.TotalPrice = units.Total
		sale.POSCategory = item.CategoryName
		sale.RawData = item.RawJSON
		out.Sales = append(out.Sales, sale)
	}

	if o.TaxCents != 0 {
		out.Sales = append(out.Sales, adjustment(row, "tax", "Sales Tax", domain.ItemTax, domain.AdjustTax, Cents(o.TaxCents), o.RawJSON))
	}
	if o.TipCents != 0 {
		out.Sales = append(out.Sales, adjustment(row, "tip", "Tip", domain.ItemTip, domain.AdjustTip, Cents(o.TipCents), o.RawJSON))
	}
	return out
}

// Toast maps a paid Toast order. A voided selection keeps its sale row and gets
// an offsetting void row so voids are reported separately from discounts.
func Toast(restaurantID string, o staging.ToastOrder, loc *time.Location) Mapped {
	var out Mapped
	if strings.TrimSpace(o.OrderGUID) == "" {
		out.fail("", "", CodeMissingIdentifier, "order guid is empty", o.RawJSON)
		return out
	}
	row := base(restaurantID, domain.POSToast, o.OrderGUID, o.ClosedAt, loc)

	for _, item := range o.Items {
		if !present(item.ItemGUID) {
			out.fail(o.OrderGUID, "", CodeMissingIdentifier, "item guid is empty", item.RawJSON)
			continue
		}
		units, err := ToastUnits(item.Quantity, item.UnitPrice, item.TotalPrice)
		if err != nil {
			out.fail(o.OrderGUID, *item.ItemGUID, CodeInvalidUnits, err.Error(), item.RawJSON)
			continue
		}

		sale := row
		sale.ExternalItemID = *item.ItemGUID
		sale.ItemName = itemName(item.ItemName)
		sale.Quantity = units.Quantity
		sale.UnitPrice = units.UnitPrice
		sale.TotalPrice = units.Total
		sale.POSCategory = item.MenuGroup
		sale.RawData = item.RawJSON
		out.Sales = append(out.Sales, sale)

		if item.Voided && !units.Total.IsZero() {
			void := adjustment(row, "void", sale.ItemName+" (void)", domain.ItemDiscount, domain.AdjustVoid, units.Total.Neg(), item.RawJSON)
			void.ExternalItemID = *item.ItemGUID + ":void"
			void.POSCategory = item.MenuGroup
			out.Sales = append(out.Sales, void)
		}
	}

	if !o.TaxAmount.IsZero() {
		out.Sales = append(out.Sales, adjustment(row, "tax", "Sales Tax", domain.ItemTax, domain.AdjustTax, Money(o.TaxAmount), o.RawJSON))
	}
	if !o.TipAmount.IsZero() {
		out.Sales = append(out.Sales, adjustment(row, "tip", "Tip", domain.ItemTip, domain.AdjustTip, Money(o.TipAmount), o.RawJSON))
	}
	if !o.ServiceChargeAmount.IsZero() {
		out.Sales = append(out.Sales, adjustment(row, "service_charge", "Service Charge", domain.ItemServiceCharge, domain.AdjustServiceCharge, Money(o.ServiceChargeAmount), o.RawJSON))
	}
	if !o.DiscountAmount.IsZero() {
		out.Sales = append(out.Sales, adjustment(row, "discount", "Discount", domain.ItemDiscount, domain.AdjustDiscount, Money(o.DiscountAmount).Abs().Neg(), o.RawJSON))
	}
	return out
}

// Shift4 maps a captured charge to a sale row and, when tipped, a tip row.
func Shift4(restaurantID string, c staging.Shift4Charge, loc *time.Location) Mapped {
	var out Mapped
	if strings.TrimSpace(c.ChargeID) == "" {
		out.fail("", "", CodeMissingIdentifier, "charge id is empty", c.RawJSON)
		return out
	}
	if c.AmountCents == nil {
		out.fail(c.ChargeID, c.ChargeID, CodeInvalidUnits, "charge has no amount", c.RawJSON)
		return out
	}
	row := base(restaurantID, domain.POSShift4, c.ChargeID, c.CapturedAt, loc)

	units := Shift4Units(*c.AmountCents)
	sale := row
	sale.ExternalItemID = c.ChargeID
	sale.ItemName = itemName(c.Description)
	sale.Quantity = units.Quantity
	sale.UnitPrice = units.UnitPrice
	sale.TotalPrice = units.Total
	sale.RawData = c.RawJSON
	out.Sales = append(out.Sales, sale)

	if c.TipCents != 0 {
		out.Sales = append(out.Sales, adjustment(row, "tip", "Tip", domain.ItemTip, domain.AdjustTip, Cents(c.TipCents), c.RawJSON))
	}
	return out
}
