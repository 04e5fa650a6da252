// Package normalize turns vendor staging rows into ledger rows. Vendors
// disagree on scale: Square, Clover and Shift4 report money in cents, Clover
// reports quantities in thousandths and Toast uses decimal currency. Every
// conversion below rounds half away from zero, money to 2 places and
// quantities to 3.
package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var thousand = decimal.NewFromInt(1000)

// Units is a line's quantity and money in canonical scale.
type Units struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// Money rounds an amount to cents.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Quantity rounds a quantity to thousandths.
func Quantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

// Cents converts an amount in cents to currency units.
func Cents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// SquareUnits converts a Square line. Quantity is a decimal string, base price
// and total money are in cents. A missing total is derived from the base price.
func SquareUnits(quantity *string, basePriceCents, totalMoneyCents *int64) (Units, error) {
	qty := decimal.NewFromInt(1)
	if quantity != nil && strings.TrimSpace(*quantity) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(*quantity))
		if err != nil {
			return Units{}, fmt.Errorf("quantity %q is not a number", *quantity)
		}
		qty = parsed
	}
	qty = Quantity(qty)

	switch {
	case basePriceCents != nil && totalMoneyCents != nil:
		return Units{Quantity: qty, UnitPrice: Cents(*basePriceCents), Total: Cents(*totalMoneyCents)}, nil
	case basePriceCents != nil:
		unit := Cents(*basePriceCents)
		return Units{Quantity: qty, UnitPrice: unit, Total: Money(unit.Mul(qty))}, nil
	case totalMoneyCents != nil:
		total := Cents(*totalMoneyCents)
		return Units{Quantity: qty, UnitPrice: unitFromTotal(total, qty), Total: total}, nil
	}
	return Units{}, fmt.Errorf("line has neither a base price nor a total")
}

// CloverUnits converts a Clover line. unitQty is in thousandths (nil means one
// unit) and priceCents is the price of a single unit.
func CloverUnits(unitQty, priceCents *int64) (Units, error) {
	if priceCents == nil {
		return Units{}, fmt.Errorf("line has no price")
	}
	qty := decimal.NewFromInt(1)
	if unitQty != nil {
		if *unitQty <= 0 {
			return Units{}, fmt.Errorf("unit quantity %d is not positive", *unitQty)
		}
		qty = Quantity(decimal.NewFromInt(*unitQty).Div(thousand))
	}
	unit := Cents(*priceCents)
	return Units{Quantity: qty, UnitPrice: unit, Total: Money(unit.Mul(qty))}, nil
}

// ToastUnits converts a Toast selection, already in decimal currency. A missing
// total is derived from the unit price and a missing unit price from the total.
func ToastUnits(quantity, unitPrice, totalPrice decimal.NullDecimal) (Units, error) {
	qty := decimal.NewFromInt(1)
	if quantity.Valid {
		qty = quantity.Decimal
	}
	qty = Quantity(qty)

	switch {
	case unitPrice.Valid && totalPrice.Valid:
		return Units{Quantity: qty, UnitPrice: Money(unitPrice.Decimal), Total: Money(totalPrice.Decimal)}, nil
	case unitPrice.Valid:
		unit := Money(unitPrice.Decimal)
		return Units{Quantity: qty, UnitPrice: unit, Total: Money(unit.Mul(qty))}, nil
	case totalPrice.Valid:
		total := Money(totalPrice.Decimal)
		return Units{Quantity: qty, UnitPrice: unitFromTotal(total, qty), Total: total}, nil
	}
	return Units{}, fmt.Errorf("selection has neither a unit price nor a total")
}

// Shift4Units converts a charge amount in cents. A charge is always one unit.
func Shift4Units(amountCents int64) Units {
	amount := Cents(amountCents)
	return Units{Quantity: decimal.NewFromInt(1), UnitPrice: amount, Total: amount}
}

func unitFromTotal(total, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return total
	}
	return Money(total.DivRound(qty, 4))
}
