package service_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tablestack/tablestack-backend/internal/ledger/access"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/internal/ledger/service"
	"github.com/tablestack/tablestack-backend/pkg/actor"
	"github.com/tablestack/tablestack-backend/pkg/errors"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/permissions"
)

func newReportFixture(t *testing.T) (*service.ReportService, *stubReports, *memoryCache, string, *actor.Actor, *actor.Actor) {
	t.Helper()

	restaurantID := uuid.New().String()
	chef := &actor.Actor{ID: uuid.New().String()}
	owner := &actor.Actor{ID: uuid.New().String()}
	authz := access.NewAuthorizer(stubMemberships{
		chef.ID + "/" + restaurantID:  permissions.RoleChef,
		owner.ID + "/" + restaurantID: permissions.RoleOwner,
	})

	code, accountType := "4000", "revenue"
	reports := &stubReports{
		totals: domain.Totals{
			Count:             6,
			Revenue:           decimal.RequireFromString("15.01"),
			Discounts:         decimal.RequireFromString("-2.00"),
			Voids:             decimal.RequireFromString("-1.00"),
			PassThroughAmount: decimal.RequireFromString("2.30"),
			UniqueItems:       4,
			CollectedAtPOS:    decimal.RequireFromString("14.30"),
		},
		byCategory: []domain.CategoryRevenue{
			{AccountCode: &code, AccountName: "Food Sales", AccountType: &accountType, Total: decimal.RequireFromString("12.00"), Count: 2},
			{AccountName: domain.UncategorizedName, Total: decimal.RequireFromString("3.01"), Count: 1},
		},
		passThrough: []domain.PassThroughTotal{
			{AdjustmentType: domain.AdjustTax, Total: decimal.RequireFromString("1.30"), Count: 1},
			{AdjustmentType: domain.AdjustTip, Total: decimal.RequireFromString("1.00"), Count: 1},
		},
	}
	c := newMemoryCache()

	svc := service.NewReportService(reports, authz, c, time.Minute, logger.Nop())
	return svc, reports, c, restaurantID, chef, owner
}

func TestReportService_Totals_CachesPerWindow(t *testing.T) {
	svc, reports, c, restaurantID, chef, _ := newReportFixture(t)
	ctx := context.Background()
	q := domain.ReportQuery{RestaurantID: restaurantID, StartDate: "2024-06-01", EndDate: "2024-06-30"}

	first, err := svc.Totals(ctx, chef, q)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewCategorization, first.View)
	assert.Equal(t, "15.01", first.Revenue.StringFixed(2))

	_, err = svc.Totals(ctx, chef, q)
	require.NoError(t, err)
	assert.Equal(t, 1, reports.totalsCalls)

	q.View = domain.ViewCollection
	second, err := svc.Totals(ctx, chef, q)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewCollection, second.View)
	assert.Equal(t, 2, reports.totalsCalls)

	require.NoError(t, c.Invalidate(ctx, restaurantID))
	_, err = svc.Totals(ctx, chef, q)
	require.NoError(t, err)
	assert.Equal(t, 3, reports.totalsCalls)
}

func TestReportService_Totals_ChangeDuringLoadIsNotCached(t *testing.T) {
	svc, reports, c, restaurantID, chef, _ := newReportFixture(t)
	ctx := context.Background()
	q := domain.ReportQuery{RestaurantID: restaurantID, StartDate: "2024-06-01", EndDate: "2024-06-30"}

	// a sale is categorized while the first totals are being computed
	reports.onTotals = func() {
		reports.onTotals = nil
		require.NoError(t, c.Invalidate(ctx, restaurantID))
	}
	_, err := svc.Totals(ctx, chef, q)
	require.NoError(t, err)

	reports.totals.Revenue = decimal.RequireFromString("20.00")
	fresh, err := svc.Totals(ctx, chef, q)
	require.NoError(t, err)
	assert.Equal(t, 2, reports.totalsCalls)
	assert.Equal(t, "20.00", fresh.Revenue.StringFixed(2))
}

func TestReportService_Authorization(t *testing.T) {
	svc, _, _, restaurantID, chef, _ := newReportFixture(t)
	ctx := context.Background()
	q := domain.ReportQuery{RestaurantID: restaurantID, StartDate: "2024-06-01", EndDate: "2024-06-30"}

	_, err := svc.RevenueByCategory(ctx, &actor.Actor{ID: uuid.New().String()}, q)
	assert.Equal(t, "FORBIDDEN", errors.CodeOf(err))

	_, err = svc.PassThroughTotals(ctx, nil, q)
	assert.Equal(t, "UNAUTHORIZED", errors.CodeOf(err))

	// chefs can read but not export
	err = svc.ExportXLSX(ctx, chef, q, &bytes.Buffer{})
	assert.Equal(t, "FORBIDDEN", errors.CodeOf(err))

	bad := q
	bad.EndDate = "2024-05-01"
	_, err = svc.TipsByDate(ctx, chef, bad)
	assert.Equal(t, "VALIDATION_ERROR", errors.CodeOf(err))
}

func TestReportService_ExportXLSX(t *testing.T) {
	svc, _, _, restaurantID, _, owner := newReportFixture(t)
	q := domain.ReportQuery{RestaurantID: restaurantID, StartDate: "2024-06-01", EndDate: "2024-06-30"}

	var buf bytes.Buffer
	require.NoError(t, svc.ExportXLSX(context.Background(), owner, q, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Revenue by Category", "Pass-through"}, f.GetSheetList())

	revenue, err := f.GetCellValue("Summary", "B8")
	require.NoError(t, err)
	assert.Equal(t, "15.01", revenue)

	name, err := f.GetCellValue("Revenue by Category", "B3")
	require.NoError(t, err)
	assert.Equal(t, domain.UncategorizedName, name)

	tax, err := f.GetCellValue("Pass-through", "A2")
	require.NoError(t, err)
	assert.Equal(t, "tax", tax)
}
