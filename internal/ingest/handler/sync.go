// Package handler exposes the sync worker's internal endpoint, called by the
// queue drainer with a system token.
package handler

import (
	"net/http"

	"github.com/tablestack/tablestack-backend/internal/ingest"
	"github.com/tablestack/tablestack-backend/internal/ingest/consumers"
	"github.com/tablestack/tablestack-backend/internal/jobs"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/errors"
	"github.com/tablestack/tablestack-backend/pkg/httputil"
	"github.com/tablestack/tablestack-backend/pkg/logger"
)

// SyncHandler runs sync jobs dispatched from the queue
type SyncHandler struct {
	runner consumers.SyncRunner
	logger *logger.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(runner consumers.SyncRunner, log *logger.Logger) *SyncHandler {
	return &SyncHandler{runner: runner, logger: log}
}

// Run syncs the payload's vendor. A tenant that failed answers 502 so the
// drainer retries; a tenant skipped for a held lock answers 200.
func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if !caller.IsSystem() {
		httputil.Error(w, errors.Forbidden("internal endpoint"))
		return
	}

	var req jobs.SyncPayload
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}
	vendor := domain.POSSystem(req.POSSystem)

	if req.RestaurantID == "" {
		summary, err := h.runner.RunVendor(r.Context(), vendor)
		if err != nil {
			h.logger.Error().Err(err).Str("pos_system", req.POSSystem).Msg("vendor sync failed")
			httputil.Error(w, errors.New("SYNC_FAILED", err.Error(), http.StatusBadGateway))
			return
		}
		httputil.JSON(w, http.StatusOK, summary)
		return
	}

	result := h.runner.RunTenant(r.Context(), vendor, req.RestaurantID)
	if result.Outcome == ingest.TenantErrored {
		httputil.Error(w, errors.New("SYNC_FAILED", result.Error, http.StatusBadGateway))
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}
