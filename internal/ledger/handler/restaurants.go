package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tablestack/tablestack-backend/internal/jobs"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/errors"
	"github.com/tablestack/tablestack-backend/pkg/httputil"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/permissions"
)

// RestaurantHandler handles tenant creation and sync requests
type RestaurantHandler struct {
	ledger     Ledger
	authorizer Authorizer
	queue      SyncQueue
	runs       SyncRuns
	logger     *logger.Logger
}

// NewRestaurantHandler creates a new restaurant handler
func NewRestaurantHandler(ledger Ledger, authorizer Authorizer, queue SyncQueue, runs SyncRuns, log *logger.Logger) *RestaurantHandler {
	return &RestaurantHandler{
		ledger:     ledger,
		authorizer: authorizer,
		queue:      queue,
		runs:       runs,
		logger:     log,
	}
}

// CreateRestaurantRequest creates a tenant owned by the caller
type CreateRestaurantRequest struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Timezone *string `json:"timezone" validate:"omitempty,timezone"`
}

// SyncAccepted is returned when a sync job is queued
type SyncAccepted struct {
	JobID     int64  `json:"job_id"`
	POSSystem string `json:"pos_system"`
}

// Create creates a restaurant. Repeating the same request returns the
// restaurant created the first time with 200 instead of 201.
func (h *RestaurantHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req CreateRestaurantRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	restaurant, created, err := h.ledger.CreateRestaurant(r.Context(), caller, req.Name, req.Timezone)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if !created {
		httputil.JSON(w, http.StatusOK, restaurant)
		return
	}
	httputil.Created(w, restaurant)
}

// vendorParam reads {vendor} and rejects anything that is not a synced POS.
func vendorParam(r *http.Request) (domain.POSSystem, error) {
	vendor := domain.POSSystem(chi.URLParam(r, "vendor"))
	if !vendor.IsVendor() {
		return "", errors.InvalidField("vendor", "must be one of: square, clover, toast, shift4")
	}
	return vendor, nil
}

// RequestSync queues an on-demand sync of one vendor for the restaurant
func (h *RestaurantHandler) RequestSync(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	if _, err := h.authorizer.Require(r.Context(), caller, restaurantID, permissions.SalesSync); err != nil {
		httputil.Error(w, err)
		return
	}
	vendor, err := vendorParam(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	jobID, err := h.queue.Enqueue(r.Context(), jobs.SyncPayload{
		POSSystem:    string(vendor),
		RestaurantID: restaurantID,
		RequestedBy:  caller.ID,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().
		Int64("job_id", jobID).
		Str("restaurant_id", restaurantID).
		Str("pos_system", string(vendor)).
		Str("requested_by", caller.ID).
		Msg("sync requested")

	httputil.JSON(w, http.StatusAccepted, SyncAccepted{JobID: jobID, POSSystem: string(vendor)})
}

// LatestSync returns the most recent sync run of the vendor
func (h *RestaurantHandler) LatestSync(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	if _, err := h.authorizer.Require(r.Context(), caller, restaurantID, permissions.SalesRead); err != nil {
		httputil.Error(w, err)
		return
	}
	vendor, err := vendorParam(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	run, err := h.runs.Latest(r.Context(), restaurantID, vendor)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if run == nil {
		httputil.Error(w, errors.NotFound("sync run"))
		return
	}

	httputil.JSON(w, http.StatusOK, run)
}
