package consumers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestack/tablestack-backend/internal/ingest"
	"github.com/tablestack/tablestack-backend/internal/ingest/consumers"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
)

type fakeRunner struct {
	vendorRuns []domain.POSSystem
	tenantRuns []string
	outcome    string
}

func (f *fakeRunner) RunVendor(_ context.Context, vendor domain.POSSystem) (*ingest.RunSummary, error) {
	f.vendorRuns = append(f.vendorRuns, vendor)
	return &ingest.RunSummary{POSSystem: vendor}, nil
}

func (f *fakeRunner) RunTenant(_ context.Context, vendor domain.POSSystem, restaurantID string) ingest.TenantResult {
	f.tenantRuns = append(f.tenantRuns, string(vendor)+"/"+restaurantID)
	return ingest.TenantResult{RestaurantID: restaurantID, Outcome: f.outcome, Error: "boom"}
}

func syncEvent(t *testing.T, req messaging.SyncRequestedEvent) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(messaging.EventSyncRequested, "test", "", req)
	require.NoError(t, err)
	return event
}

func TestSyncRequestHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("single tenant", func(t *testing.T) {
		runner := &fakeRunner{outcome: ingest.TenantSynced}
		h := consumers.NewSyncRequestHandler(runner, logger.Nop())

		err := h.HandleSyncRequested(ctx, syncEvent(t, messaging.SyncRequestedEvent{POSSystem: "toast", RestaurantID: "r1"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"toast/r1"}, runner.tenantRuns)
		assert.Empty(t, runner.vendorRuns)
	})

	t.Run("all tenants", func(t *testing.T) {
		runner := &fakeRunner{}
		h := consumers.NewSyncRequestHandler(runner, logger.Nop())

		require.NoError(t, h.HandleSyncRequested(ctx, syncEvent(t, messaging.SyncRequestedEvent{POSSystem: "clover"})))
		assert.Equal(t, []domain.POSSystem{domain.POSClover}, runner.vendorRuns)
	})

	t.Run("errored tenant is retried", func(t *testing.T) {
		runner := &fakeRunner{outcome: ingest.TenantErrored}
		h := consumers.NewSyncRequestHandler(runner, logger.Nop())

		err := h.HandleSyncRequested(ctx, syncEvent(t, messaging.SyncRequestedEvent{POSSystem: "square", RestaurantID: "r1"}))
		assert.Error(t, err)
	})

	t.Run("locked tenant is acknowledged", func(t *testing.T) {
		runner := &fakeRunner{outcome: ingest.TenantSkipped}
		h := consumers.NewSyncRequestHandler(runner, logger.Nop())

		err := h.HandleSyncRequested(ctx, syncEvent(t, messaging.SyncRequestedEvent{POSSystem: "square", RestaurantID: "r1"}))
		assert.NoError(t, err)
	})

	t.Run("unknown vendor is dropped", func(t *testing.T) {
		runner := &fakeRunner{}
		h := consumers.NewSyncRequestHandler(runner, logger.Nop())

		require.NoError(t, h.HandleSyncRequested(ctx, syncEvent(t, messaging.SyncRequestedEvent{POSSystem: "manual"})))
		assert.Empty(t, runner.vendorRuns)
		assert.Empty(t, runner.tenantRuns)
	})
}
