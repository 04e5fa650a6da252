package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/errors"
)

func buildManualSale(restaurantID string, in ManualSaleInput) (*domain.UnifiedSale, error) {
	details := map[string]string{}

	if in.POSSystem != domain.POSManual && in.POSSystem != domain.POSManualUpload {
		details["pos_system"] = "must be one of: manual, manual_upload"
	}
	if strings.TrimSpace(in.ExternalOrderID) == "" {
		details["external_order_id"] = "is required"
	}
	if strings.TrimSpace(in.ItemName) == "" {
		details["item_name"] = "is required"
	}
	if in.ItemType == "" {
		in.ItemType = domain.ItemSale
	}
	if !in.ItemType.Valid() {
		details["item_type"] = "is not a known item type"
	}
	if in.AdjustmentType != nil && !in.AdjustmentType.Valid() {
		details["adjustment_type"] = "is not a known adjustment type"
	}
	if _, err := time.Parse("2006-01-02", in.SaleDate); err != nil {
		details["sale_date"] = "must be a date in the format YYYY-MM-DD"
	}
	if in.SaleTime != nil {
		if _, err := time.Parse("15:04:05", *in.SaleTime); err != nil {
			details["sale_time"] = "must be a time in the format HH:MM:SS"
		}
	}

	total, err := decimal.NewFromString(in.TotalPrice)
	if err != nil {
		details["total_price"] = "must be a number"
	}
	quantity := decimal.NewFromInt(1)
	if in.Quantity != "" {
		if quantity, err = decimal.NewFromString(in.Quantity); err != nil {
			details["quantity"] = "must be a number"
		}
	}
	unitPrice := total
	if in.UnitPrice != "" {
		if unitPrice, err = decimal.NewFromString(in.UnitPrice); err != nil {
			details["unit_price"] = "must be a number"
		}
	}

	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	externalItemID := strings.TrimSpace(in.ExternalItemID)
	if externalItemID == "" {
		externalItemID = strings.TrimSpace(in.ExternalOrderID)
	}

	return &domain.UnifiedSale{
		RestaurantID:    restaurantID,
		POSSystem:       in.POSSystem,
		ExternalOrderID: strings.TrimSpace(in.ExternalOrderID),
		ExternalItemID:  externalItemID,
		ItemName:        strings.TrimSpace(in.ItemName),
		Quantity:        quantity.Round(3),
		UnitPrice:       unitPrice.Round(2),
		TotalPrice:      total.Round(2),
		SaleDate:        in.SaleDate,
		SaleTime:        in.SaleTime,
		POSCategory:     in.POSCategory,
		ItemType:        in.ItemType,
		AdjustmentType:  in.AdjustmentType,
	}, nil
}
