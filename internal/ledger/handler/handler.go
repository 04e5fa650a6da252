// Package handler exposes the ledger over HTTP.
package handler

import (
	"context"
	"io"

	"github.com/go-chi/chi/v5"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/internal/ledger/repository"
	"github.com/tablestack/tablestack-backend/internal/ledger/service"
	"github.com/tablestack/tablestack-backend/pkg/actor"
)

// Ledger is the mutation surface of service.LedgerService.
type Ledger interface {
	CreateRestaurant(ctx context.Context, caller *actor.Actor, name string, timezone *string) (*domain.Restaurant, bool, error)
	CreateManualSale(ctx context.Context, caller *actor.Actor, restaurantID string, in service.ManualSaleInput) (*domain.UnifiedSale, error)
	DeleteSale(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) error
	Categorize(ctx context.Context, caller *actor.Actor, restaurantID, saleID, categoryID string) error
	Uncategorize(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) error
	ClearSuggestion(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) error
	Split(ctx context.Context, caller *actor.Actor, restaurantID, saleID string, allocations []domain.Allocation) ([]domain.SplitAllocation, error)
	Unsplit(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) error
	ListSplits(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) ([]domain.SplitAllocation, error)
}

// Reports is the read surface of service.ReportService.
type Reports interface {
	Totals(ctx context.Context, caller *actor.Actor, q domain.ReportQuery) (*domain.Totals, error)
	RevenueByCategory(ctx context.Context, caller *actor.Actor, q domain.ReportQuery) ([]domain.CategoryRevenue, error)
	PassThroughTotals(ctx context.Context, caller *actor.Actor, q domain.ReportQuery) ([]domain.PassThroughTotal, error)
	TipsByDate(ctx context.Context, caller *actor.Actor, q domain.ReportQuery) ([]domain.TipTotal, error)
	ExportXLSX(ctx context.Context, caller *actor.Actor, q domain.ReportQuery, w io.Writer) error
}

// Authorizer checks a caller's permission in a restaurant.
type Authorizer interface {
	Require(ctx context.Context, caller *actor.Actor, restaurantID, permission string) (string, error)
}

// SyncQueue accepts on-demand sync jobs.
type SyncQueue interface {
	Enqueue(ctx context.Context, payload interface{}) (int64, error)
}

// SyncRuns reads the sync run ledger.
type SyncRuns interface {
	Latest(ctx context.Context, restaurantID string, vendor domain.POSSystem) (*repository.SyncRun, error)
}

// Routes mounts every ledger endpoint under r.
func Routes(r chi.Router, sales *SalesHandler, reports *ReportHandler, restaurants *RestaurantHandler) {
	r.Route("/restaurants", func(r chi.Router) {
		r.Post("/", restaurants.Create)

		r.Route("/{restaurantID}", func(r chi.Router) {
			r.Post("/sync/{vendor}", restaurants.RequestSync)
			r.Get("/sync/{vendor}", restaurants.LatestSync)

			r.Route("/sales", func(r chi.Router) {
				r.Post("/", sales.Create)
				r.Route("/{saleID}", func(r chi.Router) {
					r.Delete("/", sales.Delete)
					r.Put("/category", sales.Categorize)
					r.Delete("/category", sales.Uncategorize)
					r.Delete("/suggestion", sales.ClearSuggestion)
					r.Get("/split", sales.ListSplits)
					r.Put("/split", sales.Split)
					r.Delete("/split", sales.Unsplit)
				})
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/totals", reports.Totals)
				r.Get("/revenue-by-category", reports.RevenueByCategory)
				r.Get("/pass-through", reports.PassThrough)
				r.Get("/tips", reports.Tips)
				r.Get("/export.xlsx", reports.Export)
			})
		})
	})
}
