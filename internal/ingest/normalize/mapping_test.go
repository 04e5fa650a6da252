package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestack/tablestack-backend/internal/ingest/normalize"
	"github.com/tablestack/tablestack-backend/internal/ingest/staging"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
)

const restaurantID = "7b0c6a8e-1f2d-4c3b-9a8e-0d1c2b3a4f5e"

var closedAt = time.Date(2024, 6, 1, 18, 15, 0, 0, time.UTC)

func byItem(sales []domain.UnifiedSale) map[string]domain.UnifiedSale {
	out := make(map[string]domain.UnifiedSale, len(sales))
	for _, s := range sales {
		out[s.ExternalItemID] = s
	}
	return out
}

func TestSquare_LinesAndAdjustments(t *testing.T) {
	order := staging.SquareOrder{
		OrderID:       "O1",
		ClosedAt:      closedAt,
		TaxCents:      83,
		TipCents:      200,
		DiscountCents: 150,
		Items: []staging.SquareLineItem{
			{OrderID: "O1", UID: str("I1"), Name: str("Burger"), Quantity: str("1"), BasePriceCents: i64(1000), TotalMoneyCents: i64(1000), CategoryName: str("Mains")},
			{OrderID: "O1", UID: str(" "), Name: str("Ghost")},
			{OrderID: "O1", UID: str("I3"), Name: str("Fries"), Quantity: str("lots"), BasePriceCents: i64(300)},
		},
	}

	m := normalize.Square(restaurantID, order, time.UTC)
	require.Len(t, m.Errors, 2)
	assert.Equal(t, normalize.CodeMissingIdentifier, m.Errors[0].Code)
	assert.Equal(t, normalize.CodeInvalidUnits, m.Errors[1].Code)
	assert.Equal(t, "I3", m.Errors[1].ExternalItemID)

	rows := byItem(m.Sales)
	require.Len(t, rows, 4)

	burger := rows["I1"]
	assert.Equal(t, domain.POSSquare, burger.POSSystem)
	assert.Equal(t, "O1", burger.ExternalOrderID)
	assert.Equal(t, "10.00", burger.TotalPrice.StringFixed(2))
	assert.Equal(t, domain.ItemSale, burger.ItemType)
	assert.Nil(t, burger.AdjustmentType)
	assert.Equal(t, "2024-06-01", burger.SaleDate)
	assert.Equal(t, "18:15:00", *burger.SaleTime)

	tax := rows["O1:tax"]
	assert.Equal(t, domain.ItemTax, tax.ItemType)
	assert.Equal(t, domain.AdjustTax, *tax.AdjustmentType)
	assert.Equal(t, "0.83", tax.TotalPrice.StringFixed(2))

	assert.Equal(t, "2.00", rows["O1:tip"].TotalPrice.StringFixed(2))

	discount := rows["O1:discount"]
	assert.Equal(t, domain.ItemDiscount, discount.ItemType)
	assert.Equal(t, "-1.50", discount.TotalPrice.StringFixed(2))
}

func TestClover_ScaledLine(t *testing.T) {
	order := staging.CloverOrder{
		OrderID:  "C1",
		ClosedAt: closedAt,
		TaxCents: 80,
		Items: []staging.CloverLineItem{
			{OrderID: "C1", LineItemID: str("L1"), Name: str("Taco"), UnitQty: i64(2000), PriceCents: i64(500)},
		},
	}

	m := normalize.Clover(restaurantID, order, time.UTC)
	require.Empty(t, m.Errors)

	rows := byItem(m.Sales)
	taco := rows["L1"]
	assert.Equal(t, "2.000", taco.Quantity.StringFixed(3))
	assert.Equal(t, "5.00", taco.UnitPrice.StringFixed(2))
	assert.Equal(t, "10.00", taco.TotalPrice.StringFixed(2))
	assert.Equal(t, "0.80", rows["C1:tax"].TotalPrice.StringFixed(2))
	_, hasTip := rows["C1:tip"]
	assert.False(t, hasTip)
}

func TestToast_VoidedSelectionGetsOffsettingRow(t *testing.T) {
	order := staging.ToastOrder{
		OrderGUID: "T1",
		ClosedAt:  closedAt,
		TaxAmount: nd("0.55").Decimal,
		Items: []staging.ToastItem{
			{OrderGUID: "T1", ItemGUID: str("G1"), ItemName: str("Salad"), Quantity: nd("1"), UnitPrice: nd("8.00"), TotalPrice: nd("8.00")},
			{OrderGUID: "T1", ItemGUID: str("G2"), ItemName: str("Soup"), Quantity: nd("1"), UnitPrice: nd("4.00"), Voided: true},
		},
	}

	m := normalize.Toast(restaurantID, order, time.UTC)
	require.Empty(t, m.Errors)

	rows := byItem(m.Sales)
	require.Len(t, rows, 4)

	void := rows["G2:void"]
	assert.Equal(t, domain.ItemDiscount, void.ItemType)
	assert.Equal(t, domain.AdjustVoid, *void.AdjustmentType)
	assert.Equal(t, "-4.00", void.TotalPrice.StringFixed(2))
	assert.Equal(t, domain.BucketVoid, domain.Classify(void.ItemType, void.AdjustmentType))
	assert.Equal(t, "4.00", rows["G2"].TotalPrice.StringFixed(2))
	assert.Equal(t, "0.55", rows["T1:tax"].TotalPrice.StringFixed(2))
}

func TestShift4_ChargeAndTip(t *testing.T) {
	charge := staging.Shift4Charge{
		ChargeID:    "ch_1",
		CapturedAt:  closedAt,
		AmountCents: i64(4200),
		TipCents:    800,
	}

	m := normalize.Shift4(restaurantID, charge, time.UTC)
	require.Empty(t, m.Errors)
	rows := byItem(m.Sales)
	assert.Equal(t, "42.00", rows["ch_1"].TotalPrice.StringFixed(2))
	assert.Equal(t, "Unknown Item", rows["ch_1"].ItemName)
	assert.Equal(t, "8.00", rows["ch_1:tip"].TotalPrice.StringFixed(2))

	charge.AmountCents = nil
	m = normalize.Shift4(restaurantID, charge, time.UTC)
	assert.Empty(t, m.Sales)
	require.Len(t, m.Errors, 1)
	assert.Equal(t, normalize.CodeInvalidUnits, m.Errors[0].Code)
}
