package ingest_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestack/tablestack-backend/internal/ingest"
	"github.com/tablestack/tablestack-backend/internal/ingest/normalize"
	"github.com/tablestack/tablestack-backend/internal/ingest/staging"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/internal/ledger/repository"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
	"github.com/tablestack/tablestack-backend/pkg/testutil"
)

func ptr[T any](v T) *T { return &v }

type fakeStaging struct {
	square []staging.SquareOrder
	clover []staging.CloverOrder
	toast  []staging.ToastOrder
	shift4 []staging.Shift4Charge
	err    error
	calls  int
}

func (f *fakeStaging) SquareOrders(_ context.Context, _, after string, limit int) ([]staging.SquareOrder, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []staging.SquareOrder
	for _, o := range f.square {
		if o.OrderID > after && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStaging) CloverOrders(_ context.Context, _, after string, limit int) ([]staging.CloverOrder, error) {
	f.calls++
	var out []staging.CloverOrder
	for _, o := range f.clover {
		if o.OrderID > after && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStaging) ToastOrders(_ context.Context, _, after string, limit int) ([]staging.ToastOrder, error) {
	f.calls++
	var out []staging.ToastOrder
	for _, o := range f.toast {
		if o.OrderGUID > after && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStaging) Shift4Charges(_ context.Context, _, after string, limit int) ([]staging.Shift4Charge, error) {
	f.calls++
	var out []staging.Shift4Charge
	for _, c := range f.shift4 {
		if c.ChargeID > after && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

// memoryLedger enforces the identity key like the unique index does.
type memoryLedger struct {
	rows    map[string]domain.UnifiedSale
	split   map[string]bool
	failIDs map[string]bool
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{rows: map[string]domain.UnifiedSale{}, split: map[string]bool{}, failIDs: map[string]bool{}}
}

func identity(s *domain.UnifiedSale) string {
	return fmt.Sprintf("%s/%s/%s/%s", s.RestaurantID, s.POSSystem, s.ExternalOrderID, s.ExternalItemID)
}

func (m *memoryLedger) InsertIfAbsent(_ context.Context, s *domain.UnifiedSale) (bool, error) {
	if m.failIDs[s.ExternalItemID] {
		return false, fmt.Errorf("constraint violation")
	}
	key := identity(s)
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	m.rows[key] = *s
	return true, nil
}

func (m *memoryLedger) Upsert(_ context.Context, s *domain.UnifiedSale) (repository.UpsertOutcome, error) {
	key := identity(s)
	if _, ok := m.rows[key]; !ok {
		m.rows[key] = *s
		return repository.OutcomeInserted, nil
	}
	if m.split[key] {
		return repository.OutcomeSkipped, nil
	}
	m.rows[key] = *s
	return repository.OutcomeUpdated, nil
}

type fakeRuns struct {
	finished []repository.SyncRun
	errors   []repository.SyncRowError
}

func (f *fakeRuns) Start(context.Context, string, domain.POSSystem) (string, error) {
	return fmt.Sprintf("run-%d", len(f.finished)+1), nil
}

func (f *fakeRuns) Finish(_ context.Context, run *repository.SyncRun) error {
	f.finished = append(f.finished, *run)
	return nil
}

func (f *fakeRuns) RecordErrors(_ context.Context, _ string, rowErrors []repository.SyncRowError) error {
	f.errors = append(f.errors, rowErrors...)
	return nil
}

type fakeRestaurants struct {
	timezone *string
	err      error
	synced   int
}

func (f *fakeRestaurants) Timezone(context.Context, string) (*string, error) {
	return f.timezone, f.err
}

func (f *fakeRestaurants) MarkSynced(context.Context, string, domain.POSSystem) error {
	f.synced++
	return nil
}

type syncFixture struct {
	staging     *fakeStaging
	ledger      *memoryLedger
	runs        *fakeRuns
	restaurants *fakeRestaurants
	publisher   *testutil.MockPublisher
	syncers     map[domain.POSSystem]ingest.VendorSyncer
}

func newSyncFixture(batchSize int) *syncFixture {
	f := &syncFixture{
		staging:     &fakeStaging{},
		ledger:      newMemoryLedger(),
		runs:        &fakeRuns{},
		restaurants: &fakeRestaurants{},
		publisher:   testutil.NewMockPublisher(),
		syncers:     map[domain.POSSystem]ingest.VendorSyncer{},
	}
	for _, s := range ingest.NewSyncers(ingest.Deps{
		Staging:     f.staging,
		Ledger:      f.ledger,
		Runs:        f.runs,
		Restaurants: f.restaurants,
		Publisher:   f.publisher,
		BatchSize:   batchSize,
		Logger:      logger.Nop(),
	}) {
		f.syncers[s.Vendor()] = s
	}
	return f
}

var settled = time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)

func squareOrder(id string, cents int64) staging.SquareOrder {
	return staging.SquareOrder{
		OrderID:  id,
		ClosedAt: settled,
		Items: []staging.SquareLineItem{
			{OrderID: id, UID: ptr("I1"), Name: ptr("Burger"), Quantity: ptr("1"), BasePriceCents: ptr(cents), TotalMoneyCents: ptr(cents)},
		},
	}
}

func TestSyncer_Square_IdempotentAcrossRuns(t *testing.T) {
	f := newSyncFixture(2)
	f.staging.square = []staging.SquareOrder{squareOrder("O1", 1000), squareOrder("O2", 450), squareOrder("O3", 300)}
	f.staging.square[0].TaxCents = 83
	ctx := context.Background()

	first, err := f.syncers[domain.POSSquare].Sync(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 4, first.Processed)
	assert.Equal(t, 4, first.Inserted)
	assert.Equal(t, repository.RunSuccess, first.Status)

	second, err := f.syncers[domain.POSSquare].Sync(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Affected())
	assert.Equal(t, 4, second.Skipped)
	assert.Len(t, f.ledger.rows, 4)

	row := f.ledger.rows["r1/square/O1/I1"]
	assert.Equal(t, "10.00", row.TotalPrice.StringFixed(2))
	// 23:30 UTC is 18:30 CDT
	assert.Equal(t, "2024-06-01", row.SaleDate)
	assert.Equal(t, "18:30:00", *row.SaleTime)

	require.Len(t, f.runs.finished, 2)
	assert.Equal(t, 2, f.restaurants.synced)
	f.publisher.AssertEventPublished(t, messaging.EventSyncCompleted)
}

func TestSyncer_Clover_NormalizesScaledUnits(t *testing.T) {
	f := newSyncFixture(100)
	f.staging.clover = []staging.CloverOrder{{
		OrderID:  "C1",
		ClosedAt: settled,
		Items: []staging.CloverLineItem{
			{OrderID: "C1", LineItemID: ptr("L1"), Name: ptr("Taco"), UnitQty: ptr(int64(2000)), PriceCents: ptr(int64(500))},
		},
	}}

	result, err := f.syncers[domain.POSClover].Sync(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	row := f.ledger.rows["r1/clover/C1/L1"]
	assert.Equal(t, "2.000", row.Quantity.StringFixed(3))
	assert.Equal(t, "5.00", row.UnitPrice.StringFixed(2))
	assert.Equal(t, "10.00", row.TotalPrice.StringFixed(2))
}

func TestSyncer_MalformedRowsDoNotAbortBatch(t *testing.T) {
	f := newSyncFixture(100)
	bad := squareOrder("O2", 500)
	bad.Items[0].UID = nil
	failing := squareOrder("O3", 700)
	failing.Items[0].UID = ptr("boom")
	f.ledger.failIDs["boom"] = true
	f.staging.square = []staging.SquareOrder{squareOrder("O1", 1000), bad, failing}

	result, err := f.syncers[domain.POSSquare].Sync(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 2, result.Errored)
	assert.Equal(t, repository.RunPartial, result.Status)

	require.Len(t, f.runs.errors, 2)
	assert.Equal(t, normalize.CodeMissingIdentifier, f.runs.errors[0].Code)
	assert.Equal(t, normalize.CodeWriteFailed, f.runs.errors[1].Code)
	assert.Equal(t, repository.RunPartial, f.runs.finished[0].Status)
}

func TestSyncer_Toast_RefreshesButSkipsSplitParents(t *testing.T) {
	f := newSyncFixture(100)
	order := staging.ToastOrder{
		OrderGUID: "T1",
		ClosedAt:  settled,
		Items: []staging.ToastItem{
			{OrderGUID: "T1", ItemGUID: ptr("G1"), ItemName: ptr("Salad"), UnitPrice: nullDec("8.00")},
			{OrderGUID: "T1", ItemGUID: ptr("G2"), ItemName: ptr("Soup"), UnitPrice: nullDec("4.00")},
		},
	}
	f.staging.toast = []staging.ToastOrder{order}
	ctx := context.Background()

	first, err := f.syncers[domain.POSToast].Sync(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	f.ledger.split["r1/toast/T1/G2"] = true
	second, err := f.syncers[domain.POSToast].Sync(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, f.ledger.rows, 2)
}

func TestSyncer_InvalidTimezoneFallsBack(t *testing.T) {
	f := newSyncFixture(100)
	f.restaurants.timezone = ptr("Not/AZone")
	f.staging.shift4 = []staging.Shift4Charge{{ChargeID: "ch_1", CapturedAt: settled, AmountCents: ptr(int64(1200))}}

	result, err := f.syncers[domain.POSShift4].Sync(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, "18:30:00", *f.ledger.rows["r1/shift4/ch_1/ch_1"].SaleTime)
}

func TestSyncer_StagingFailureFailsRun(t *testing.T) {
	f := newSyncFixture(100)
	f.staging.err = fmt.Errorf("connection reset")

	result, err := f.syncers[domain.POSSquare].Sync(context.Background(), "r1")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, repository.RunFailed, result.Status)
	require.Len(t, f.runs.finished, 1)
	require.NotNil(t, f.runs.finished[0].ErrorMessage)
	assert.Zero(t, f.restaurants.synced)
}
