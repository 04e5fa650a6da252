// Package domain holds the ledger's types and the rules that do not need a
// database: identity, reporting buckets, split tolerance and allocation checks.
package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// POSSystem identifies where a ledger row came from.
type POSSystem string

const (
	POSSquare       POSSystem = "square"
	POSClover       POSSystem = "clover"
	POSToast        POSSystem = "toast"
	POSShift4       POSSystem = "shift4"
	POSManual       POSSystem = "manual"
	POSManualUpload POSSystem = "manual_upload"
)

// Vendors lists the POS systems that are synced from staging tables.
var Vendors = []POSSystem{POSSquare, POSClover, POSToast, POSShift4}

// Valid reports whether p is a known source.
func (p POSSystem) Valid() bool {
	switch p {
	case POSSquare, POSClover, POSToast, POSShift4, POSManual, POSManualUpload:
		return true
	}
	return false
}

// IsVendor reports whether p is synced from a POS vendor.
func (p POSSystem) IsVendor() bool {
	switch p {
	case POSSquare, POSClover, POSToast, POSShift4:
		return true
	}
	return false
}

// ItemType classifies what a ledger row represents.
type ItemType string

const (
	ItemSale          ItemType = "sale"
	ItemDiscount      ItemType = "discount"
	ItemTax           ItemType = "tax"
	ItemTip           ItemType = "tip"
	ItemServiceCharge ItemType = "service_charge"
	ItemFee           ItemType = "fee"
	ItemRefund        ItemType = "refund"
	ItemOther         ItemType = "other"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemSale, ItemDiscount, ItemTax, ItemTip, ItemServiceCharge, ItemFee, ItemRefund, ItemOther:
		return true
	}
	return false
}

// AdjustmentType marks pass-through and reducing rows. Ordinary revenue has none.
type AdjustmentType string

const (
	AdjustTax           AdjustmentType = "tax"
	AdjustTip           AdjustmentType = "tip"
	AdjustServiceCharge AdjustmentType = "service_charge"
	AdjustDiscount      AdjustmentType = "discount"
	AdjustFee           AdjustmentType = "fee"
	AdjustVoid          AdjustmentType = "void"
)

// Valid reports whether a is a known adjustment type.
func (a AdjustmentType) Valid() bool {
	switch a {
	case AdjustTax, AdjustTip, AdjustServiceCharge, AdjustDiscount, AdjustFee, AdjustVoid:
		return true
	}
	return false
}

// UnifiedSale is one row of the canonical sales ledger.
type UnifiedSale struct {
	ID                  string              `db:"id" json:"id"`
	RestaurantID        string              `db:"restaurant_id" json:"restaurant_id"`
	POSSystem           POSSystem           `db:"pos_system" json:"pos_system"`
	ExternalOrderID     string              `db:"external_order_id" json:"external_order_id"`
	ExternalItemID      string              `db:"external_item_id" json:"external_item_id"`
	ItemName            string              `db:"item_name" json:"item_name"`
	Quantity            decimal.Decimal     `db:"quantity" json:"quantity"`
	UnitPrice           decimal.Decimal     `db:"unit_price" json:"unit_price"`
	TotalPrice          decimal.Decimal     `db:"total_price" json:"total_price"`
	SaleDate            string              `db:"sale_date" json:"sale_date"`
	SaleTime            *string             `db:"sale_time" json:"sale_time,omitempty"`
	POSCategory         *string             `db:"pos_category" json:"pos_category,omitempty"`
	ItemType            ItemType            `db:"item_type" json:"item_type"`
	AdjustmentType      *AdjustmentType     `db:"adjustment_type" json:"adjustment_type,omitempty"`
	CategoryID          *string             `db:"category_id" json:"category_id,omitempty"`
	IsCategorized       bool                `db:"is_categorized" json:"is_categorized"`
	SuggestedCategoryID *string             `db:"suggested_category_id" json:"suggested_category_id,omitempty"`
	AIConfidence        decimal.NullDecimal `db:"ai_confidence" json:"ai_confidence,omitempty"`
	AIReasoning         *string             `db:"ai_reasoning" json:"ai_reasoning,omitempty"`
	IsSplit             bool                `db:"is_split" json:"is_split"`
	ParentSaleID        *string             `db:"parent_sale_id" json:"parent_sale_id,omitempty"`
	RawData             types.JSONText      `db:"raw_data" json:"raw_data,omitempty"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`
}

// IsSplitChild reports whether the row is a legacy split fragment of another sale.
func (s *UnifiedSale) IsSplitChild() bool {
	return s.ParentSaleID != nil
}

// Bucket is the reporting partition a ledger row falls into.
type Bucket string

const (
	BucketRevenue     Bucket = "revenue"
	BucketDiscount    Bucket = "discount"
	BucketVoid        Bucket = "void"
	BucketPassThrough Bucket = "pass_through"
)

// Classify places a row in exactly one bucket. Discount-typed rows are voids when
// their adjustment says so; anything that is neither a sale nor a discount is
// collected on behalf of someone else.
func Classify(itemType ItemType, adjustment *AdjustmentType) Bucket {
	switch itemType {
	case ItemSale:
		return BucketRevenue
	case ItemDiscount:
		if adjustment != nil && *adjustment == AdjustVoid {
			return BucketVoid
		}
		return BucketDiscount
	default:
		return BucketPassThrough
	}
}
