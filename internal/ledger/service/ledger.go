// Package service holds the ledger entry points. Every operation takes the
// caller explicitly and authorizes before touching any row.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tablestack/tablestack-backend/internal/ledger/access"
	"github.com/tablestack/tablestack-backend/internal/ledger/cache"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/internal/ledger/events"
	"github.com/tablestack/tablestack-backend/pkg/actor"
	"github.com/tablestack/tablestack-backend/pkg/errors"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
	"github.com/tablestack/tablestack-backend/pkg/permissions"
)

// Scoper runs fn in a transaction scoped to one restaurant.
type Scoper interface {
	WithRestaurant(ctx context.Context, restaurantID string, fn func(context.Context) error) error
}

// SaleStore is the ledger row persistence used by LedgerService.
type SaleStore interface {
	GetByID(ctx context.Context, restaurantID, id string) (*domain.UnifiedSale, error)
	GetForUpdate(ctx context.Context, restaurantID, id string) (*domain.UnifiedSale, error)
	CreateManual(ctx context.Context, s *domain.UnifiedSale) error
	Delete(ctx context.Context, restaurantID, id string) error
	Categorize(ctx context.Context, restaurantID, id, categoryID string) error
	Uncategorize(ctx context.Context, restaurantID, id string) error
	ClearSuggestion(ctx context.Context, restaurantID, id string) error
	ReplaceSplits(ctx context.Context, sale *domain.UnifiedSale, allocations []domain.Allocation) ([]domain.SplitAllocation, error)
	Unsplit(ctx context.Context, sale *domain.UnifiedSale) error
	ListSplits(ctx context.Context, restaurantID, saleID string) ([]domain.SplitAllocation, error)
}

// CategoryStore answers whether categories belong to a restaurant.
type CategoryStore interface {
	BelongsTo(ctx context.Context, restaurantID string, ids []string) (bool, error)
}

// RestaurantStore creates restaurants.
type RestaurantStore interface {
	CreateDeduplicated(ctx context.Context, createdBy, name string, timezone *string) (*domain.Restaurant, bool, error)
}

// LedgerService handles categorization, splits and manual ledger rows.
type LedgerService struct {
	db          Scoper
	sales       SaleStore
	categories  CategoryStore
	restaurants RestaurantStore
	authorizer  *access.Authorizer
	cache       cache.ReportCache
	publisher   *events.LedgerEventPublisher
	logger      *logger.Logger
}

// NewLedgerService creates a new ledger service. A nil cache disables caching
// and a nil publisher drops events.
func NewLedgerService(
	db Scoper,
	sales SaleStore,
	categories CategoryStore,
	restaurants RestaurantStore,
	authorizer *access.Authorizer,
	reportCache cache.ReportCache,
	publisher *events.LedgerEventPublisher,
	log *logger.Logger,
) *LedgerService {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	return &LedgerService{
		db:          db,
		sales:       sales,
		categories:  categories,
		restaurants: restaurants,
		authorizer:  authorizer,
		cache:       reportCache,
		publisher:   publisher,
		logger:      log.WithComponent("ledger"),
	}
}

// ============================================================================
// CATEGORIZATION
// ============================================================================

// Categorize assigns a chart-of-accounts category to a sale and clears any
// suggestion. Split parents are categorized through their allocations only.
func (s *LedgerService) Categorize(ctx context.Context, caller *actor.Actor, restaurantID, saleID, categoryID string) error {
	if _, err := s.authorizer.Require(ctx, caller, restaurantID, permissions.SalesCategorize); err != nil {
		return err
	}
	if err := requireUUID("sale_id", saleID); err != nil {
		return err
	}
	if err := requireUUID("category_id", categoryID); err != nil {
		return err
	}

	var sale *domain.UnifiedSale
	err := s.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		if err := s.requireCategories(ctx, restaurantID, []string{categoryID}); err != nil {
			return err
		}

		var err error
		sale, err = s.sales.GetForUpdate(ctx, restaurantID, saleID)
		if err != nil {
			return err
		}
		if sale.IsSplit {
			return errors.Conflict("sale is split; categorize its allocations instead")
		}
		return s.sales.Categorize(ctx, restaurantID, saleID, categoryID)
	})
	if err != nil {
		return err
	}

	s.afterMutation(ctx, restaurantID)
	s.publisher.PublishCategorized(ctx, caller, sale, categoryID)

	s.logger.Info().
		Str("restaurant_id", restaurantID).
		Str("sale_id", saleID).
		Str("category_id", categoryID).
		Str("performed_by", caller.String()).
		Msg("sale categorized")
	return nil
}

// Uncategorize returns a sale to the review queue.
func (s *LedgerService) Uncategorize(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) error {
	if _, err := s.authorizer.Require(ctx, caller, restaurantID, permissions.SalesCategorize); err != nil {
		return err
	}
	if err := requireUUID("sale_id", saleID); err != nil {
		return err
	}

	err := s.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		sale, err := s.sales.GetForUpdate(ctx, restaurantID, saleID)
		if err != nil {
			return err
		}
		if sale.IsSplit {
			return errors.Conflict("sale is split; unsplit it instead")
		}
		return s.sales.Uncategorize(ctx, restaurantID, saleID)
	})
	if err != nil {
		return err
	}

	s.afterMutation(ctx, restaurantID)
	return nil
}

// ClearSuggestion rejects a pending category suggestion without categorizing.
func (s *LedgerService) ClearSuggestion(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) error {
	if _, err := s.authorizer.Require(ctx, caller, restaurantID, permissions.SalesCategorize); err != nil {
		return err
	}
	if err := requireUUID("sale_id", saleID); err != nil {
		return err
	}
	return s.sales.ClearSuggestion(ctx, restaurantID, saleID)
}

// ============================================================================
// SPLITS
// ============================================================================

// Split replaces the allocations of a sale. Either every allocation is written
// and the sale becomes a split parent, or nothing changes.
func (s *LedgerService) Split(ctx context.Context, caller *actor.Actor, restaurantID, saleID string, allocations []domain.Allocation) ([]domain.SplitAllocation, error) {
	if _, err := s.authorizer.Require(ctx, caller, restaurantID, permissions.SalesSplit); err != nil {
		return nil, err
	}
	if err := requireUUID("sale_id", saleID); err != nil {
		return nil, err
	}
	if err := domain.ValidateAllocations(allocations); err != nil {
		return nil, err
	}
	for i, a := range allocations {
		if a.CategoryID == nil {
			continue
		}
		if err := requireUUID(fmt.Sprintf("allocations[%d].category_id", i), *a.CategoryID); err != nil {
			return nil, err
		}
	}

	var (
		sale   *domain.UnifiedSale
		stored []domain.SplitAllocation
	)
	err := s.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		if err := s.requireCategories(ctx, restaurantID, domain.CategoryIDs(allocations)); err != nil {
			return err
		}

		var err error
		sale, err = s.sales.GetForUpdate(ctx, restaurantID, saleID)
		if err != nil {
			return err
		}
		if sale.IsSplitChild() {
			return errors.Conflict("a split allocation cannot be split again")
		}
		if err := domain.CheckSplitSum(sale.TotalPrice, allocations); err != nil {
			return err
		}

		stored, err = s.sales.ReplaceSplits(ctx, sale, allocations)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, restaurantID)
	s.publisher.PublishSplit(ctx, caller, sale, stored)

	s.logger.Info().
		Str("restaurant_id", restaurantID).
		Str("sale_id", saleID).
		Int("allocations", len(stored)).
		Str("total", sale.TotalPrice.StringFixed(2)).
		Str("performed_by", caller.String()).
		Msg("sale split")
	return stored, nil
}

// Unsplit removes all allocations and reopens the sale for categorization.
func (s *LedgerService) Unsplit(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) error {
	if _, err := s.authorizer.Require(ctx, caller, restaurantID, permissions.SalesSplit); err != nil {
		return err
	}
	if err := requireUUID("sale_id", saleID); err != nil {
		return err
	}

	err := s.db.WithRestaurant(ctx, restaurantID, func(ctx context.Context) error {
		sale, err := s.sales.GetForUpdate(ctx, restaurantID, saleID)
		if err != nil {
			return err
		}
		if !sale.IsSplit {
			return errors.Conflict("sale is not split")
		}
		return s.sales.Unsplit(ctx, sale)
	})
	if err != nil {
		return err
	}

	s.afterMutation(ctx, restaurantID)
	s.publisher.PublishChanged(ctx, messaging.EventSaleUnsplit, caller, restaurantID, saleID)
	return nil
}

// ListSplits returns the allocations of a sale.
func (s *LedgerService) ListSplits(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) ([]domain.SplitAllocation, error) {
	if _, err := s.authorizer.Require(ctx, caller, restaurantID, permissions.SalesRead); err != nil {
		return nil, err
	}
	if err := requireUUID("sale_id", saleID); err != nil {
		return nil, err
	}
	if _, err := s.sales.GetByID(ctx, restaurantID, saleID); err != nil {
		return nil, err
	}
	return s.sales.ListSplits(ctx, restaurantID, saleID)
}

// ============================================================================
// MANUAL ROWS
// ============================================================================

// ManualSaleInput is a hand-entered or uploaded ledger row.
type ManualSaleInput struct {
	POSSystem       domain.POSSystem
	ExternalOrderID string
	ExternalItemID  string
	ItemName        string
	Quantity        string
	UnitPrice       string
	TotalPrice      string
	SaleDate        string
	SaleTime        *string
	POSCategory     *string
	ItemType        domain.ItemType
	AdjustmentType  *domain.AdjustmentType
}

// CreateManualSale inserts a manual or manual_upload row. A row with the same
// identity already in the ledger is a conflict.
func (s *LedgerService) CreateManualSale(ctx context.Context, caller *actor.Actor, restaurantID string, in ManualSaleInput) (*domain.UnifiedSale, error) {
	if _, err := s.authorizer.Require(ctx, caller, restaurantID, permissions.SalesWrite); err != nil {
		return nil, err
	}

	sale, err := buildManualSale(restaurantID, in)
	if err != nil {
		return nil, err
	}
	if err := s.sales.CreateManual(ctx, sale); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, restaurantID)
	s.publisher.PublishChanged(ctx, messaging.EventSaleCreated, caller, restaurantID, sale.ID)

	s.logger.Info().
		Str("restaurant_id", restaurantID).
		Str("sale_id", sale.ID).
		Str("pos_system", string(sale.POSSystem)).
		Msg("manual sale created")
	return sale, nil
}

// DeleteSale removes a ledger row together with its allocations.
func (s *LedgerService) DeleteSale(ctx context.Context, caller *actor.Actor, restaurantID, saleID string) error {
	if _, err := s.authorizer.Require(ctx, caller, restaurantID, permissions.SalesDelete); err != nil {
		return err
	}
	if err := requireUUID("sale_id", saleID); err != nil {
		return err
	}
	if err := s.sales.Delete(ctx, restaurantID, saleID); err != nil {
		return err
	}

	s.afterMutation(ctx, restaurantID)
	s.publisher.PublishChanged(ctx, messaging.EventSaleDeleted, caller, restaurantID, saleID)

	s.logger.Info().
		Str("restaurant_id", restaurantID).
		Str("sale_id", saleID).
		Str("performed_by", caller.String()).
		Msg("sale deleted")
	return nil
}

// ============================================================================
// RESTAURANTS
// ============================================================================

// CreateRestaurant creates a restaurant owned by the caller. A second request
// with the same name from the same caller within a few seconds returns the
// restaurant created by the first.
func (s *LedgerService) CreateRestaurant(ctx context.Context, caller *actor.Actor, name string, timezone *string) (*domain.Restaurant, bool, error) {
	if caller == nil || caller.ID == "" || caller.IsSystem() {
		return nil, false, errors.Unauthorized("a user is required to create a restaurant")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, errors.InvalidField("name", "is required")
	}
	if timezone != nil {
		tz := strings.TrimSpace(*timezone)
		if tz == "" {
			timezone = nil
		} else {
			timezone = &tz
		}
	}

	restaurant, created, err := s.restaurants.CreateDeduplicated(ctx, caller.ID, name, timezone)
	if err != nil {
		return nil, false, err
	}

	s.logger.Info().
		Str("restaurant_id", restaurant.ID).
		Bool("created", created).
		Str("performed_by", caller.String()).
		Msg("restaurant create requested")
	return restaurant, created, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *LedgerService) requireCategories(ctx context.Context, restaurantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ok, err := s.categories.BelongsTo(ctx, restaurantID, ids)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFound("category")
	}
	return nil
}

// afterMutation drops cached reports of the restaurant. Cache errors are logged.
func (s *LedgerService) afterMutation(ctx context.Context, restaurantID string) {
	if err := s.cache.Invalidate(ctx, restaurantID); err != nil {
		s.logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("failed to invalidate report cache")
	}
}

func requireUUID(field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return errors.InvalidField(field, "must be a valid UUID")
	}
	return nil
}
