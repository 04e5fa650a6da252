package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/logger"
)

// Tenant outcomes in a RunSummary.
const (
	TenantSynced  = "synced"
	TenantSkipped = "skipped"
	TenantErrored = "errored"
)

// ConnectionLister lists restaurants connected to a vendor.
type ConnectionLister interface {
	ListWithActiveConnection(ctx context.Context, vendor domain.POSSystem) ([]string, error)
}

// VendorSyncer syncs one vendor for one restaurant.
type VendorSyncer interface {
	Vendor() domain.POSSystem
	Sync(ctx context.Context, restaurantID string) (*Result, error)
}

// TenantResult is one restaurant's outcome within a vendor run.
type TenantResult struct {
	RestaurantID string  `json:"restaurant_id"`
	Outcome      string  `json:"outcome"`
	Result       *Result `json:"result,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// RunSummary reports a vendor run as processed and errored counts rather than
// all-or-nothing.
type RunSummary struct {
	POSSystem domain.POSSystem `json:"pos_system"`
	Processed int              `json:"processed"`
	Errored   int              `json:"errored"`
	Skipped   int              `json:"skipped"`
	Results   []TenantResult   `json:"results"`
}

// Orchestrator runs vendor syncs across restaurants. One restaurant's failure
// is logged and counted; the loop goes on.
type Orchestrator struct {
	syncers     map[domain.POSSystem]VendorSyncer
	connections ConnectionLister
	locker      Locker
	logger      *logger.Logger
}

// NewOrchestrator creates an orchestrator. A nil locker runs lock-free.
func NewOrchestrator(syncers []VendorSyncer, connections ConnectionLister, locker Locker, log *logger.Logger) *Orchestrator {
	byVendor := make(map[domain.POSSystem]VendorSyncer, len(syncers))
	for _, s := range syncers {
		byVendor[s.Vendor()] = s
	}
	if locker == nil {
		locker = noLocker{}
	}
	return &Orchestrator{
		syncers:     byVendor,
		connections: connections,
		locker:      locker,
		logger:      log.WithComponent("orchestrator"),
	}
}

// RunVendor syncs every restaurant with an active connection to vendor.
func (o *Orchestrator) RunVendor(ctx context.Context, vendor domain.POSSystem) (*RunSummary, error) {
	if _, ok := o.syncers[vendor]; !ok {
		return nil, fmt.Errorf("no syncer for vendor %q", vendor)
	}

	restaurantIDs, err := o.connections.ListWithActiveConnection(ctx, vendor)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s connections: %w", vendor, err)
	}

	summary := &RunSummary{POSSystem: vendor, Results: make([]TenantResult, 0, len(restaurantIDs))}
	for _, restaurantID := range restaurantIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		tr := o.RunTenant(ctx, vendor, restaurantID)
		summary.Results = append(summary.Results, tr)
		switch tr.Outcome {
		case TenantSynced:
			summary.Processed++
		case TenantSkipped:
			summary.Skipped++
		default:
			summary.Errored++
		}
	}

	o.logger.Info().
		Str("pos_system", string(vendor)).
		Int("processed", summary.Processed).
		Int("errored", summary.Errored).
		Int("skipped", summary.Skipped).
		Msg("vendor sync run completed")
	return summary, nil
}

// RunAll runs every configured vendor in turn.
func (o *Orchestrator) RunAll(ctx context.Context, vendors []domain.POSSystem) []*RunSummary {
	summaries := make([]*RunSummary, 0, len(vendors))
	for _, vendor := range vendors {
		summary, err := o.RunVendor(ctx, vendor)
		if err != nil {
			o.logger.Error().Err(err).Str("pos_system", string(vendor)).Msg("vendor sync run failed")
		}
		if summary != nil {
			summaries = append(summaries, summary)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return summaries
}

// RunTenant syncs one restaurant and vendor under the sync lock.
func (o *Orchestrator) RunTenant(ctx context.Context, vendor domain.POSSystem, restaurantID string) TenantResult {
	tr := TenantResult{RestaurantID: restaurantID}
	log := o.logger.WithRestaurant(restaurantID).WithVendor(string(vendor))

	syncer, ok := o.syncers[vendor]
	if !ok {
		tr.Outcome = TenantErrored
		tr.Error = fmt.Sprintf("no syncer for vendor %q", vendor)
		return tr
	}

	unlock, err := o.locker.Lock(ctx, vendor, restaurantID)
	if errors.Is(err, ErrLocked) {
		log.Info().Msg("sync already running elsewhere, skipping")
		tr.Outcome = TenantSkipped
		return tr
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to obtain sync lock")
		tr.Outcome = TenantErrored
		tr.Error = err.Error()
		return tr
	}
	defer unlock()

	result, err := syncer.Sync(ctx, restaurantID)
	tr.Result = result
	if err != nil {
		log.Error().Err(err).Msg("tenant sync failed")
		tr.Outcome = TenantErrored
		tr.Error = err.Error()
		return tr
	}
	tr.Outcome = TenantSynced
	return tr
}
