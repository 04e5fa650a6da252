package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tablestack/tablestack-backend/internal/ledger/cache"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/errors"
)

type passthroughScope struct{}

func (passthroughScope) WithRestaurant(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

type stubMemberships map[string]string

func (s stubMemberships) RoleFor(_ context.Context, userID, restaurantID string) (string, error) {
	return s[userID+"/"+restaurantID], nil
}

// memorySales keeps ledger rows and allocations in maps.
type memorySales struct {
	mu       sync.Mutex
	sales    map[string]*domain.UnifiedSale
	splits   map[string][]domain.SplitAllocation
	replaced int
}

func newMemorySales() *memorySales {
	return &memorySales{
		sales:  make(map[string]*domain.UnifiedSale),
		splits: make(map[string][]domain.SplitAllocation),
	}
}

func (m *memorySales) add(s *domain.UnifiedSale) *domain.UnifiedSale {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	m.sales[s.ID] = s
	return s
}

func (m *memorySales) find(restaurantID, id string) (*domain.UnifiedSale, error) {
	s, ok := m.sales[id]
	if !ok || s.RestaurantID != restaurantID {
		return nil, errors.NotFound("sale")
	}
	cp := *s
	return &cp, nil
}

func (m *memorySales) GetByID(_ context.Context, restaurantID, id string) (*domain.UnifiedSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(restaurantID, id)
}

func (m *memorySales) GetForUpdate(ctx context.Context, restaurantID, id string) (*domain.UnifiedSale, error) {
	return m.GetByID(ctx, restaurantID, id)
}

func (m *memorySales) CreateManual(_ context.Context, s *domain.UnifiedSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sales {
		if existing.RestaurantID == s.RestaurantID && existing.POSSystem == s.POSSystem &&
			existing.ExternalOrderID == s.ExternalOrderID && existing.ExternalItemID == s.ExternalItemID {
			return errors.Conflict("sale already exists")
		}
	}
	s.ID = uuid.New().String()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.sales[s.ID] = s
	return nil
}

func (m *memorySales) Delete(_ context.Context, restaurantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.find(restaurantID, id); err != nil {
		return err
	}
	delete(m.sales, id)
	delete(m.splits, id)
	return nil
}

func (m *memorySales) Categorize(_ context.Context, restaurantID, id, categoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.find(restaurantID, id); err != nil {
		return err
	}
	s := m.sales[id]
	s.CategoryID = &categoryID
	s.IsCategorized = true
	s.SuggestedCategoryID = nil
	s.AIConfidence = decimal.NullDecimal{}
	s.AIReasoning = nil
	return nil
}

func (m *memorySales) Uncategorize(_ context.Context, restaurantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.find(restaurantID, id); err != nil {
		return err
	}
	s := m.sales[id]
	s.CategoryID = nil
	s.IsCategorized = false
	return nil
}

func (m *memorySales) ClearSuggestion(_ context.Context, restaurantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.find(restaurantID, id); err != nil {
		return err
	}
	s := m.sales[id]
	s.SuggestedCategoryID = nil
	s.AIConfidence = decimal.NullDecimal{}
	s.AIReasoning = nil
	return nil
}

func (m *memorySales) ReplaceSplits(_ context.Context, sale *domain.UnifiedSale, allocations []domain.Allocation) ([]domain.SplitAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced++

	stored := make([]domain.SplitAllocation, 0, len(allocations))
	for i, a := range allocations {
		description := sale.ItemName
		if a.Description != nil {
			description = *a.Description
		}
		stored = append(stored, domain.SplitAllocation{
			ID:          uuid.New().String(),
			SaleID:      sale.ID,
			CategoryID:  a.CategoryID,
			Amount:      a.Amount,
			Description: description,
			Position:    i,
		})
	}
	m.splits[sale.ID] = stored

	s := m.sales[sale.ID]
	s.IsSplit = true
	s.IsCategorized = true
	s.CategoryID = nil
	s.SuggestedCategoryID = nil
	return stored, nil
}

func (m *memorySales) Unsplit(_ context.Context, sale *domain.UnifiedSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.splits, sale.ID)
	s := m.sales[sale.ID]
	s.IsSplit = false
	s.IsCategorized = false
	s.CategoryID = nil
	return nil
}

func (m *memorySales) ListSplits(_ context.Context, _ string, saleID string) ([]domain.SplitAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SplitAllocation(nil), m.splits[saleID]...), nil
}

// stubCategories maps category id to owning restaurant.
type stubCategories map[string]string

func (s stubCategories) BelongsTo(_ context.Context, restaurantID string, ids []string) (bool, error) {
	for _, id := range ids {
		if s[id] != restaurantID {
			return false, nil
		}
	}
	return true, nil
}

type stubRestaurants struct {
	byKey map[string]*domain.Restaurant
}

func (s *stubRestaurants) CreateDeduplicated(_ context.Context, createdBy, name string, timezone *string) (*domain.Restaurant, bool, error) {
	key := createdBy + ":" + name
	if r, ok := s.byKey[key]; ok {
		return r, false, nil
	}
	r := &domain.Restaurant{ID: uuid.New().String(), Name: name, Timezone: timezone, CreatedBy: createdBy, CreatedAt: time.Now()}
	s.byKey[key] = r
	return r, true, nil
}

// memoryCache is a ReportCache that keeps values in a map under a
// per-restaurant generation and counts invalidations.
type memoryCache struct {
	mu          sync.Mutex
	entries     map[cache.Slot]interface{}
	generation  map[string]int
	invalidated map[string]int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		entries:     map[cache.Slot]interface{}{},
		generation:  map[string]int{},
		invalidated: map[string]int{},
	}
}

func (c *memoryCache) Get(_ context.Context, restaurantID, key string, dest interface{}) (cache.Slot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := cache.Slot(fmt.Sprintf("%s/%d/%s", restaurantID, c.generation[restaurantID], key))
	v, ok := c.entries[slot]
	if !ok {
		return slot, false, nil
	}
	switch d := dest.(type) {
	case **domain.Totals:
		*d = v.(*domain.Totals)
	case *[]domain.CategoryRevenue:
		*d = v.([]domain.CategoryRevenue)
	default:
		return slot, false, nil
	}
	return slot, true, nil
}

func (c *memoryCache) Set(_ context.Context, slot cache.Slot, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch v := value.(type) {
	case **domain.Totals:
		c.entries[slot] = *v
	case *[]domain.CategoryRevenue:
		c.entries[slot] = *v
	}
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, restaurantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated[restaurantID]++
	c.generation[restaurantID]++
	return nil
}

type stubReports struct {
	totalsCalls int
	// onTotals runs after the totals are computed, before they are returned.
	onTotals    func()
	totals      domain.Totals
	byCategory  []domain.CategoryRevenue
	passThrough []domain.PassThroughTotal
	tips        []domain.TipTotal
}

func (s *stubReports) Totals(_ context.Context, q domain.ReportQuery) (*domain.Totals, error) {
	s.totalsCalls++
	t := s.totals
	t.View = q.View
	if s.onTotals != nil {
		s.onTotals()
	}
	return &t, nil
}

func (s *stubReports) RevenueByCategory(context.Context, domain.ReportQuery) ([]domain.CategoryRevenue, error) {
	return s.byCategory, nil
}

func (s *stubReports) PassThroughTotals(context.Context, domain.ReportQuery) ([]domain.PassThroughTotal, error) {
	return s.passThrough, nil
}

func (s *stubReports) TipsByDate(context.Context, domain.ReportQuery) ([]domain.TipTotal, error) {
	return s.tips, nil
}
