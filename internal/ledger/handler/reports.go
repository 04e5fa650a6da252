package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/internal/ledger/service"
	"github.com/tablestack/tablestack-backend/pkg/httputil"
	"github.com/tablestack/tablestack-backend/pkg/logger"
)

// ReportHandler handles aggregate report endpoints
type ReportHandler struct {
	reports Reports
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports Reports, log *logger.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: log}
}

// reportQuery reads start_date, end_date, search and view. The service
// validates them.
func reportQuery(r *http.Request) domain.ReportQuery {
	values := r.URL.Query()
	q := domain.ReportQuery{
		RestaurantID: chi.URLParam(r, "restaurantID"),
		StartDate:    values.Get("start_date"),
		EndDate:      values.Get("end_date"),
		View:         domain.TotalsView(values.Get("view")),
	}
	if search := values.Get("search"); search != "" {
		q.Search = &search
	}
	return q
}

func meta(q domain.ReportQuery) *httputil.Meta {
	return &httputil.Meta{StartDate: q.StartDate, EndDate: q.EndDate}
}

// Totals returns the revenue partition of the window
func (h *ReportHandler) Totals(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := reportQuery(r)
	totals, err := h.reports.Totals(r.Context(), caller, q)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, totals, meta(q))
}

// RevenueByCategory returns revenue per category with split allocations
func (h *ReportHandler) RevenueByCategory(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := reportQuery(r)
	rows, err := h.reports.RevenueByCategory(r.Context(), caller, q)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, rows, meta(q))
}

// PassThrough returns tax, tip, service charge and fee totals
func (h *ReportHandler) PassThrough(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := reportQuery(r)
	rows, err := h.reports.PassThroughTotals(r.Context(), caller, q)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, rows, meta(q))
}

// Tips returns tips per day and source
func (h *ReportHandler) Tips(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := reportQuery(r)
	rows, err := h.reports.TipsByDate(r.Context(), caller, q)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, rows, meta(q))
}

// Export streams the window as an xlsx workbook. The workbook is built in
// memory first so a failure can still be reported as JSON.
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	caller, err := httputil.Caller(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := reportQuery(r)
	var buf bytes.Buffer
	if err := h.reports.ExportXLSX(r.Context(), caller, q, &buf); err != nil {
		httputil.Error(w, err)
		return
	}

	filename := fmt.Sprintf("sales_%s_%s.xlsx", q.StartDate, q.EndDate)
	w.Header().Set("Content-Type", service.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error().Err(err).Msg("failed to write export")
	}
}
