package consumers

import (
	"context"
	"fmt"

	"github.com/tablestack/tablestack-backend/internal/ingest"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
)

// SyncRequestQueue is bound to sync requests on the ingest exchange.
const SyncRequestQueue = "ledger-service.sync-requests"

// SyncRunner is the part of the orchestrator the handler drives.
type SyncRunner interface {
	RunVendor(ctx context.Context, vendor domain.POSSystem) (*ingest.RunSummary, error)
	RunTenant(ctx context.Context, vendor domain.POSSystem, restaurantID string) ingest.TenantResult
}

// SyncRequestHandler runs the sync a request asks for (testable without RabbitMQ)
type SyncRequestHandler struct {
	runner SyncRunner
	logger *logger.Logger
}

// NewSyncRequestHandler creates a new sync request handler
func NewSyncRequestHandler(runner SyncRunner, log *logger.Logger) *SyncRequestHandler {
	return &SyncRequestHandler{runner: runner, logger: log}
}

// HandleSyncRequested runs one tenant or, without a restaurant id, every
// connected tenant. A tenant error is returned so the broker redelivers; a
// sync skipped because another worker holds the lock is acknowledged.
func (h *SyncRequestHandler) HandleSyncRequested(ctx context.Context, event *messaging.Event) error {
	var req messaging.SyncRequestedEvent
	if err := event.UnmarshalData(&req); err != nil {
		return fmt.Errorf("failed to unmarshal sync request: %w", err)
	}

	vendor := domain.POSSystem(req.POSSystem)
	if !vendor.IsVendor() {
		h.logger.Warn().Str("pos_system", req.POSSystem).Str("event_id", event.ID).Msg("ignoring sync request for unknown vendor")
		return nil
	}

	if req.RestaurantID == "" {
		_, err := h.runner.RunVendor(ctx, vendor)
		return err
	}

	result := h.runner.RunTenant(ctx, vendor, req.RestaurantID)
	if result.Outcome == ingest.TenantErrored {
		return fmt.Errorf("sync of %s for restaurant %s failed: %s", vendor, req.RestaurantID, result.Error)
	}
	return nil
}

// SyncRequestConsumer consumes sync requests
type SyncRequestConsumer struct {
	consumer *messaging.Consumer
	logger   *logger.Logger
}

// NewSyncRequestConsumer declares the queue, binds it and registers the handler.
func NewSyncRequestConsumer(rmq *messaging.RabbitMQ, runner SyncRunner, maxRetries int, log *logger.Logger) (*SyncRequestConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, SyncRequestQueue, maxRetries, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeIngestEvents, messaging.EventSyncRequested); err != nil {
		return nil, err
	}

	handler := NewSyncRequestHandler(runner, log)
	consumer.RegisterHandler(messaging.EventSyncRequested, handler.HandleSyncRequested)

	return &SyncRequestConsumer{consumer: consumer, logger: log}, nil
}

// Start starts consuming messages
func (c *SyncRequestConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}
