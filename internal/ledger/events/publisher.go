package events

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/actor"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
)

// LedgerEventPublisher publishes ledger mutations. A nil publisher is valid and
// drops every event. Publishing failures are logged, never returned: the ledger
// write has already committed.
type LedgerEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewLedgerEventPublisher creates a publisher on the ledger exchange
func NewLedgerEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*LedgerEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeLedgerEvents, "ledger-service", log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an existing EventPublisher.
func NewWithPublisher(publisher messaging.EventPublisher, log *logger.Logger) *LedgerEventPublisher {
	return &LedgerEventPublisher{publisher: publisher, logger: log}
}

// PublishCategorized publishes a sale categorized event
func (p *LedgerEventPublisher) PublishCategorized(ctx context.Context, caller *actor.Actor, sale *domain.UnifiedSale, categoryID string) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventSaleCategorized, sale.ID, messaging.SaleCategorizedEvent{
		RestaurantID: sale.RestaurantID,
		SaleID:       sale.ID,
		CategoryID:   categoryID,
		PerformedBy:  caller.ID,
	})
}

// PublishSplit publishes a sale split event
func (p *LedgerEventPublisher) PublishSplit(ctx context.Context, caller *actor.Actor, sale *domain.UnifiedSale, allocations []domain.SplitAllocation) {
	if p == nil {
		return
	}
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Amount)
	}
	p.publish(ctx, messaging.EventSaleSplit, sale.ID, messaging.SaleSplitEvent{
		RestaurantID: sale.RestaurantID,
		SaleID:       sale.ID,
		Allocations:  len(allocations),
		Total:        total.StringFixed(2),
		PerformedBy:  caller.ID,
	})
}

// PublishChanged publishes a created, unsplit or deleted event
func (p *LedgerEventPublisher) PublishChanged(ctx context.Context, eventType string, caller *actor.Actor, restaurantID, saleID string) {
	if p == nil {
		return
	}
	p.publish(ctx, eventType, saleID, messaging.SaleChangedEvent{
		RestaurantID: restaurantID,
		SaleID:       saleID,
		PerformedBy:  caller.ID,
	})
}

func (p *LedgerEventPublisher) publish(ctx context.Context, eventType, saleID string, data interface{}) {
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Str("sale_id", saleID).Msg("failed to publish ledger event")
	}
}
