package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/internal/ledger/service"
	"github.com/tablestack/tablestack-backend/pkg/httputil"
	"github.com/tablestack/tablestack-backend/pkg/logger"
)

// SalesHandler handles ledger row endpoints
type SalesHandler struct {
	ledger Ledger
	logger *logger.Logger
}

// NewSalesHandler creates a new sales handler
func NewSalesHandler(ledger Ledger, log *logger.Logger) *SalesHandler {
	return &SalesHandler{ledger: ledger, logger: log}
}

// CreateSaleRequest is a manually entered ledger row
type CreateSaleRequest struct {
	POSSystem       string  `json:"pos_system" validate:"required,oneof=manual manual_upload"`
	ExternalOrderID string  `json:"external_order_id" validate:"required,max=255"`
	ExternalItemID  string  `json:"external_item_id" validate:"max=255"`
	ItemName        string  `json:"item_name" validate:"required,max=500"`
	Quantity        string  `json:"quantity"`
	UnitPrice       string  `json:"unit_price"`
	TotalPrice      string  `json:"total_price" validate:"required"`
	SaleDate        string  `json:"sale_date" validate:"required,datetime=2006-01-02"`
	SaleTime        *string `json:"sale_time" validate:"omitempty,datetime=15:04:05"`
	POSCategory     *string `json:"pos_category" validate:"omitempty,max=255"`
	ItemType        string  `json:"item_type" validate:"omitempty,oneof=sale discount tax tip service_charge fee refund other"`
	AdjustmentType  *string `json:"adjustment_type" validate:"omitempty,oneof=tax tip service_charge discount fee void"`
}

// CategorizeRequest assigns a chart-of-accounts entry
type CategorizeRequest struct {
	CategoryID string `json:"category_id" validate:"required,uuid"`
}

// AllocationRequest is one portion of a split. Amount accepts a JSON number or
// a decimal string.
type AllocationRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	CategoryID  *string         `json:"category_id" validate:"omitempty,uuid"`
	Description *string         `json:"description" validate:"omitempty,max=500"`
}

// SplitRequest replaces a sale's allocations
type SplitRequest struct {
	Allocations []AllocationRequest `json:"allocations" validate:"required,min=1,dive"`
}

// Create inserts a manual sale
func (h *SalesHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req CreateSaleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.ManualSaleInput{
		POSSystem:       domain.POSSystem(req.POSSystem),
		ExternalOrderID: req.ExternalOrderID,
		ExternalItemID:  req.ExternalItemID,
		ItemName:        req.ItemName,
		Quantity:        req.Quantity,
		UnitPrice:       req.UnitPrice,
		TotalPrice:      req.TotalPrice,
		SaleDate:        req.SaleDate,
		SaleTime:        req.SaleTime,
		POSCategory:     req.POSCategory,
		ItemType:        domain.ItemType(req.ItemType),
	}
	if req.AdjustmentType != nil {
		adj := domain.AdjustmentType(*req.AdjustmentType)
		in.AdjustmentType = &adj
	}

	sale, err := h.ledger.CreateManualSale(r.Context(), caller, chi.URLParam(r, "restaurantID"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, sale)
}

// Delete removes a manual sale
func (h *SalesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.ledger.DeleteSale(r.Context(), caller, chi.URLParam(r, "restaurantID"), chi.URLParam(r, "saleID")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Categorize assigns a category and clears any suggestion
func (h *SalesHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req CategorizeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	err = h.ledger.Categorize(r.Context(), caller, chi.URLParam(r, "restaurantID"), chi.URLParam(r, "saleID"), req.CategoryID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Uncategorize clears the assigned category
func (h *SalesHandler) Uncategorize(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.ledger.Uncategorize(r.Context(), caller, chi.URLParam(r, "restaurantID"), chi.URLParam(r, "saleID")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// ClearSuggestion dismisses a category suggestion
func (h *SalesHandler) ClearSuggestion(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.ledger.ClearSuggestion(r.Context(), caller, chi.URLParam(r, "restaurantID"), chi.URLParam(r, "saleID")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Split replaces the sale's allocations
func (h *SalesHandler) Split(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req SplitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	allocations := make([]domain.Allocation, len(req.Allocations))
	for i, a := range req.Allocations {
		allocations[i] = domain.Allocation{Amount: a.Amount, CategoryID: a.CategoryID, Description: a.Description}
	}

	splits, err := h.ledger.Split(r.Context(), caller, chi.URLParam(r, "restaurantID"), chi.URLParam(r, "saleID"), allocations)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, splits)
}

// Unsplit restores the original sale
func (h *SalesHandler) Unsplit(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.ledger.Unsplit(r.Context(), caller, chi.URLParam(r, "restaurantID"), chi.URLParam(r, "saleID")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// ListSplits returns the sale's allocations
func (h *SalesHandler) ListSplits(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	splits, err := h.ledger.ListSplits(r.Context(), caller, chi.URLParam(r, "restaurantID"), chi.URLParam(r, "saleID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, splits)
}
