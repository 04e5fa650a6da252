package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tablestack/tablestack-backend/pkg/errors"
)

var (
	minTolerance      = decimal.New(1, -2) // 0.01
	relativeTolerance = decimal.New(5, -3) // 0.5%
)

// Allocation is one requested portion of a split.
type Allocation struct {
	Amount      decimal.Decimal
	CategoryID  *string
	Description *string
}

// SplitAllocation is a stored portion of a split sale.
type SplitAllocation struct {
	ID          string          `db:"id" json:"id"`
	SaleID      string          `db:"sale_id" json:"sale_id"`
	CategoryID  *string         `db:"category_id" json:"category_id,omitempty"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description"`
	Position    int             `db:"position" json:"position"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// SplitTolerance is the largest allowed gap between a sale total and the sum of
// its allocations: the larger of one cent and half a percent of the total.
func SplitTolerance(total decimal.Decimal) decimal.Decimal {
	relative := total.Abs().Mul(relativeTolerance)
	if relative.GreaterThan(minTolerance) {
		return relative
	}
	return minTolerance
}

// SumAllocations adds up the requested amounts.
func SumAllocations(allocations []Allocation) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range allocations {
		sum = sum.Add(a.Amount)
	}
	return sum
}

// ValidateAllocations checks the shape of a split request: a non-empty list of
// non-zero whole-cent amounts with well formed category ids. Amounts are stored
// as given, so the sum checked by CheckSplitSum is the sum that gets written.
func ValidateAllocations(allocations []Allocation) error {
	if len(allocations) == 0 {
		return errors.InvalidField("allocations", "at least one allocation is required")
	}
	for i, a := range allocations {
		if !a.Amount.Equal(a.Amount.Round(2)) {
			return errors.InvalidField(fmt.Sprintf("allocations[%d].amount", i), "must have at most 2 decimal places")
		}
		if a.Amount.IsZero() {
			return errors.InvalidField(fmt.Sprintf("allocations[%d].amount", i), "must not be zero")
		}
		if a.CategoryID != nil && *a.CategoryID == "" {
			return errors.InvalidField(fmt.Sprintf("allocations[%d].category_id", i), "must not be empty when present")
		}
	}
	return nil
}

// CheckSplitSum rejects allocations whose sum is outside tolerance of total.
func CheckSplitSum(total decimal.Decimal, allocations []Allocation) error {
	sum := SumAllocations(allocations)
	if sum.Sub(total).Abs().GreaterThan(SplitTolerance(total)) {
		return errors.Mismatch(
			fmt.Sprintf("allocations sum to %s but the sale total is %s", sum.StringFixed(2), total.StringFixed(2)),
			total.StringFixed(2),
			sum.StringFixed(2),
		)
	}
	return nil
}

// CategoryIDs returns the distinct category ids referenced by allocations.
func CategoryIDs(allocations []Allocation) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range allocations {
		if a.CategoryID == nil || seen[*a.CategoryID] {
			continue
		}
		seen[*a.CategoryID] = true
		ids = append(ids, *a.CategoryID)
	}
	return ids
}
