package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tablestack/tablestack-backend/pkg/errors"
)

const dateLayout = "2006-01-02"

// TotalsView selects how split sales are counted in Totals.
type TotalsView string

const (
	// ViewCategorization replaces split parents with their allocations.
	ViewCategorization TotalsView = "categorization"
	// ViewCollection counts every original row as the POS collected it.
	ViewCollection TotalsView = "collection"
)

// ReportQuery is the common window of every aggregate.
type ReportQuery struct {
	RestaurantID string
	StartDate    string
	EndDate      string
	Search       *string
	View         TotalsView
}

// Validate checks the date window and normalizes the search term and view.
func (q *ReportQuery) Validate() error {
	start, err := time.Parse(dateLayout, q.StartDate)
	if err != nil {
		return errors.InvalidField("start_date", "must be a date in the format YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, q.EndDate)
	if err != nil {
		return errors.InvalidField("end_date", "must be a date in the format YYYY-MM-DD")
	}
	if end.Before(start) {
		return errors.InvalidField("end_date", "must not be before start_date")
	}

	if q.Search != nil {
		term := strings.TrimSpace(*q.Search)
		if term == "" {
			q.Search = nil
		} else {
			q.Search = &term
		}
	}

	switch q.View {
	case "":
		q.View = ViewCategorization
	case ViewCategorization, ViewCollection:
	default:
		return errors.InvalidField("view", "must be one of: categorization, collection")
	}
	return nil
}

// SearchPattern returns the ILIKE pattern for the search term, or nil.
func (q *ReportQuery) SearchPattern() *string {
	if q.Search == nil {
		return nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(*q.Search)
	pattern := "%" + escaped + "%"
	return &pattern
}

// Totals is the pre-aggregated summary of a window.
type Totals struct {
	View              TotalsView      `json:"view"`
	Count             int64           `db:"count" json:"count"`
	Revenue           decimal.Decimal `db:"revenue" json:"revenue"`
	Discounts         decimal.Decimal `db:"discounts" json:"discounts"`
	Voids             decimal.Decimal `db:"voids" json:"voids"`
	PassThroughAmount decimal.Decimal `db:"pass_through_amount" json:"pass_through_amount"`
	UniqueItems       int64           `db:"unique_items" json:"unique_items"`
	CollectedAtPOS    decimal.Decimal `db:"collected_at_pos" json:"collected_at_pos"`
}

// CategoryRevenue is one row of revenue grouped by chart-of-accounts entry.
// CategoryID is nil for the uncategorized bucket.
type CategoryRevenue struct {
	CategoryID  *string         `db:"category_id" json:"category_id"`
	AccountCode *string         `db:"account_code" json:"account_code,omitempty"`
	AccountName string          `db:"account_name" json:"account_name"`
	AccountType *string         `db:"account_type" json:"account_type,omitempty"`
	Total       decimal.Decimal `db:"total" json:"total"`
	Count       int64           `db:"count" json:"count"`
}

// UncategorizedName labels the bucket of sales without a category.
const UncategorizedName = "Uncategorized"

// PassThroughTotal sums rows sharing an adjustment type.
type PassThroughTotal struct {
	AdjustmentType AdjustmentType  `db:"adjustment_type" json:"adjustment_type"`
	Total          decimal.Decimal `db:"total" json:"total"`
	Count          int64           `db:"count" json:"count"`
}

// TipTotal sums tip allocations for one day and vendor.
type TipTotal struct {
	SaleDate  string          `db:"sale_date" json:"sale_date"`
	POSSystem POSSystem       `db:"pos_system" json:"pos_system"`
	Total     decimal.Decimal `db:"total" json:"total"`
	Count     int64           `db:"count" json:"count"`
}
