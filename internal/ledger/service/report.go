package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tablestack/tablestack-backend/internal/ledger/access"
	"github.com/tablestack/tablestack-backend/internal/ledger/cache"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/actor"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/permissions"
)

// ReportStore runs the aggregate queries.
type ReportStore interface {
	Totals(ctx context.Context, q domain.ReportQuery) (*domain.Totals, error)
	RevenueByCategory(ctx context.Context, q domain.ReportQuery) ([]domain.CategoryRevenue, error)
	PassThroughTotals(ctx context.Context, q domain.ReportQuery) ([]domain.PassThroughTotal, error)
	TipsByDate(ctx context.Context, q domain.ReportQuery) ([]domain.TipTotal, error)
}

// ReportService serves the pre-aggregated reports of a restaurant.
type ReportService struct {
	reports    ReportStore
	authorizer *access.Authorizer
	cache      cache.ReportCache
	ttl        time.Duration
	logger     *logger.Logger
}

// NewReportService creates a new report service. A nil cache or a zero ttl
// disables caching.
func NewReportService(reports ReportStore, authorizer *access.Authorizer, reportCache cache.ReportCache, ttl time.Duration, log *logger.Logger) *ReportService {
	if reportCache == nil || ttl <= 0 {
		reportCache = cache.NoopReportCache{}
	}
	return &ReportService{
		reports:    reports,
		authorizer: authorizer,
		cache:      reportCache,
		ttl:        ttl,
		logger:     log.WithComponent("reports"),
	}
}

// Totals returns the summary of a window in the requested view.
func (s *ReportService) Totals(ctx context.Context, caller *actor.Actor, q domain.ReportQuery) (*domain.Totals, error) {
	if err := s.authorize(ctx, caller, &q, permissions.ReportsRead); err != nil {
		return nil, err
	}
	var out *domain.Totals
	err := s.cached(ctx, "totals", q, &out, func() error {
		var err error
		out, err = s.reports.Totals(ctx, q)
		return err
	})
	return out, err
}

// RevenueByCategory returns revenue grouped by category, uncategorized sales
// included as their own bucket.
func (s *ReportService) RevenueByCategory(ctx context.Context, caller *actor.Actor, q domain.ReportQuery) ([]domain.CategoryRevenue, error) {
	if err := s.authorize(ctx, caller, &q, permissions.ReportsRead); err != nil {
		return nil, err
	}
	var out []domain.CategoryRevenue
	err := s.cached(ctx, "revenue-by-category", q, &out, func() error {
		var err error
		out, err = s.reports.RevenueByCategory(ctx, q)
		return err
	})
	return out, err
}

// PassThroughTotals returns sums per adjustment type.
func (s *ReportService) PassThroughTotals(ctx context.Context, caller *actor.Actor, q domain.ReportQuery) ([]domain.PassThroughTotal, error) {
	if err := s.authorize(ctx, caller, &q, permissions.ReportsRead); err != nil {
		return nil, err
	}
	var out []domain.PassThroughTotal
	err := s.cached(ctx, "pass-through", q, &out, func() error {
		var err error
		out, err = s.reports.PassThroughTotals(ctx, q)
		return err
	})
	return out, err
}

// TipsByDate returns tip allocations per day and vendor.
func (s *ReportService) TipsByDate(ctx context.Context, caller *actor.Actor, q domain.ReportQuery) ([]domain.TipTotal, error) {
	if err := s.authorize(ctx, caller, &q, permissions.ReportsRead); err != nil {
		return nil, err
	}
	var out []domain.TipTotal
	err := s.cached(ctx, "tips", q, &out, func() error {
		var err error
		out, err = s.reports.TipsByDate(ctx, q)
		return err
	})
	return out, err
}

func (s *ReportService) authorize(ctx context.Context, caller *actor.Actor, q *domain.ReportQuery, permission string) error {
	if _, err := s.authorizer.Require(ctx, caller, q.RestaurantID, permission); err != nil {
		return err
	}
	return q.Validate()
}

// cached serves dest from the cache or fills it with load and stores it.
func (s *ReportService) cached(ctx context.Context, report string, q domain.ReportQuery, dest interface{}, load func() error) error {
	key := cacheKey(report, q)

	slot, hit, err := s.cache.Get(ctx, q.RestaurantID, key, dest)
	if err != nil {
		s.logger.Warn().Err(err).Str("restaurant_id", q.RestaurantID).Str("report", report).Msg("report cache read failed")
	}
	if hit {
		return nil
	}

	if err := load(); err != nil {
		return err
	}

	if err := s.cache.Set(ctx, slot, dest, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("restaurant_id", q.RestaurantID).Str("report", report).Msg("report cache write failed")
	}
	return nil
}

func cacheKey(report string, q domain.ReportQuery) string {
	search := ""
	if q.Search != nil {
		search = *q.Search
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s", report, q.View, q.StartDate, q.EndDate, search)
}
