// Package ingest copies finalized vendor staging rows into the unified ledger.
// A Syncer handles one vendor for one restaurant at a time; the Orchestrator
// fans a vendor out over every connected restaurant.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tablestack/tablestack-backend/internal/ingest/normalize"
	"github.com/tablestack/tablestack-backend/internal/ingest/staging"
	"github.com/tablestack/tablestack-backend/internal/ledger/cache"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/internal/ledger/repository"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
)

// maxKeptErrors bounds the row errors held in a Result. Errored keeps counting.
const maxKeptErrors = 200

// StagingReader pages through finalized vendor rows.
type StagingReader interface {
	SquareOrders(ctx context.Context, restaurantID, after string, limit int) ([]staging.SquareOrder, error)
	CloverOrders(ctx context.Context, restaurantID, after string, limit int) ([]staging.CloverOrder, error)
	ToastOrders(ctx context.Context, restaurantID, after string, limit int) ([]staging.ToastOrder, error)
	Shift4Charges(ctx context.Context, restaurantID, after string, limit int) ([]staging.Shift4Charge, error)
}

// LedgerWriter writes normalized rows.
type LedgerWriter interface {
	InsertIfAbsent(ctx context.Context, s *domain.UnifiedSale) (bool, error)
	Upsert(ctx context.Context, s *domain.UnifiedSale) (repository.UpsertOutcome, error)
}

// RunRecorder keeps the pos_sync_runs ledger.
type RunRecorder interface {
	Start(ctx context.Context, restaurantID string, vendor domain.POSSystem) (string, error)
	Finish(ctx context.Context, run *repository.SyncRun) error
	RecordErrors(ctx context.Context, runID string, rowErrors []repository.SyncRowError) error
}

// RestaurantStore resolves timezones and stamps connections.
type RestaurantStore interface {
	Timezone(ctx context.Context, restaurantID string) (*string, error)
	MarkSynced(ctx context.Context, restaurantID string, vendor domain.POSSystem) error
}

// Result summarizes one sync of one restaurant.
type Result struct {
	RunID        string               `json:"run_id,omitempty"`
	RestaurantID string               `json:"restaurant_id"`
	POSSystem    domain.POSSystem     `json:"pos_system"`
	Status       string               `json:"status"`
	Processed    int                  `json:"processed"`
	Inserted     int                  `json:"inserted"`
	Updated      int                  `json:"updated"`
	Skipped      int                  `json:"skipped"`
	Errored      int                  `json:"errored"`
	Errors       []normalize.RowError `json:"-"`
}

// Affected is the number of ledger rows written.
func (r *Result) Affected() int {
	return r.Inserted + r.Updated
}

func (r *Result) addError(e normalize.RowError) {
	r.Errored++
	if len(r.Errors) < maxKeptErrors {
		r.Errors = append(r.Errors, e)
	}
}

// page is one batch of mapped staging orders. last is the cursor for the next
// call and orders the number of staging orders read.
type page struct {
	mapped []normalize.Mapped
	last   string
	orders int
}

type pageFunc func(ctx context.Context, restaurantID, after string, limit int, loc *time.Location) (page, error)

// Deps are the collaborators shared by every vendor's Syncer.
type Deps struct {
	Staging     StagingReader
	Ledger      LedgerWriter
	Runs        RunRecorder
	Restaurants RestaurantStore
	// Cache is invalidated for a restaurant when a sync writes rows. Optional.
	Cache cache.ReportCache
	// Publisher receives a sync completed event per run. Optional.
	Publisher messaging.EventPublisher
	// DefaultZone is used when a restaurant has no usable timezone.
	DefaultZone *time.Location
	BatchSize   int
	Logger      *logger.Logger
}

// Syncer syncs one vendor.
type Syncer struct {
	vendor domain.POSSystem
	// refresh selects update-on-conflict instead of insert-or-skip.
	refresh bool
	next    pageFunc
	deps    Deps
	logger  *logger.Logger
}

// NewSyncers builds a Syncer for every supported vendor. Square and Clover
// insert-or-skip; Toast and Shift4 refresh vendor-owned metrics on conflict.
func NewSyncers(deps Deps) []VendorSyncer {
	if deps.Cache == nil {
		deps.Cache = cache.NoopReportCache{}
	}
	if deps.Publisher == nil {
		deps.Publisher = messaging.NoopPublisher{}
	}
	if deps.DefaultZone == nil {
		deps.DefaultZone = time.UTC
		if loc, err := time.LoadLocation(normalize.DefaultTimezone); err == nil {
			deps.DefaultZone = loc
		}
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 500
	}

	build := func(vendor domain.POSSystem, refresh bool, next pageFunc) *Syncer {
		return &Syncer{
			vendor:  vendor,
			refresh: refresh,
			next:    next,
			deps:    deps,
			logger:  deps.Logger.WithComponent("sync").WithVendor(string(vendor)),
		}
	}

	return []VendorSyncer{
		build(domain.POSSquare, false, squarePages(deps.Staging)),
		build(domain.POSClover, false, cloverPages(deps.Staging)),
		build(domain.POSToast, true, toastPages(deps.Staging)),
		build(domain.POSShift4, true, shift4Pages(deps.Staging)),
	}
}

// Vendor returns the POS system this Syncer handles.
func (s *Syncer) Vendor() domain.POSSystem {
	return s.vendor
}

// Sync copies every finalized staging row of the restaurant into the ledger.
// Rows that cannot be mapped or written are counted, recorded and skipped. The
// returned error is set only when the run itself could not complete, in which
// case the Result still carries the counts reached so far.
func (s *Syncer) Sync(ctx context.Context, restaurantID string) (*Result, error) {
	log := s.logger.WithRestaurant(restaurantID)
	result := &Result{RestaurantID: restaurantID, POSSystem: s.vendor, Status: repository.RunRunning}

	runID, err := s.deps.Runs.Start(ctx, restaurantID, s.vendor)
	if err != nil {
		return result, fmt.Errorf("failed to start sync run: %w", err)
	}
	result.RunID = runID

	runErr := s.run(ctx, restaurantID, result, log)
	s.finish(ctx, result, runErr, log)
	return result, runErr
}

func (s *Syncer) run(ctx context.Context, restaurantID string, result *Result, log *logger.Logger) error {
	tz, err := s.deps.Restaurants.Timezone(ctx, restaurantID)
	if err != nil {
		return fmt.Errorf("failed to load restaurant: %w", err)
	}
	loc, err := normalize.ResolveZone(tz, s.deps.DefaultZone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", *tz).Str("fallback", loc.String()).Msg("invalid restaurant timezone, using fallback")
	}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := s.next(ctx, restaurantID, after, s.deps.BatchSize, loc)
		if err != nil {
			return fmt.Errorf("failed to read %s staging rows: %w", s.vendor, err)
		}

		for _, m := range p.mapped {
			for _, rowErr := range m.Errors {
				result.Processed++
				result.addError(rowErr)
				log.Warn().
					Str("external_order_id", rowErr.ExternalOrderID).
					Str("external_item_id", rowErr.ExternalItemID).
					Str("code", rowErr.Code).
					Msg(rowErr.Message)
			}
			for i := range m.Sales {
				result.Processed++
				s.write(ctx, &m.Sales[i], result, log)
			}
		}

		if p.orders < s.deps.BatchSize {
			return nil
		}
		after = p.last
	}
}

func (s *Syncer) write(ctx context.Context, sale *domain.UnifiedSale, result *Result, log *logger.Logger) {
	var (
		outcome repository.UpsertOutcome
		err     error
	)
	if s.refresh {
		outcome, err = s.deps.Ledger.Upsert(ctx, sale)
	} else {
		var inserted bool
		inserted, err = s.deps.Ledger.InsertIfAbsent(ctx, sale)
		if inserted {
			outcome = repository.OutcomeInserted
		}
	}

	if err != nil {
		result.addError(normalize.RowError{
			ExternalOrderID: sale.ExternalOrderID,
			ExternalItemID:  sale.ExternalItemID,
			Code:            normalize.CodeWriteFailed,
			Message:         err.Error(),
			Payload:         sale.RawData,
		})
		log.Error().Err(err).
			Str("external_order_id", sale.ExternalOrderID).
			Str("external_item_id", sale.ExternalItemID).
			Msg("failed to write ledger row")
		return
	}

	switch outcome {
	case repository.OutcomeInserted:
		result.Inserted++
	case repository.OutcomeUpdated:
		result.Updated++
	default:
		result.Skipped++
	}
}

// finish records the run outcome. Bookkeeping failures are logged; they never
// change the Result.
func (s *Syncer) finish(ctx context.Context, result *Result, runErr error, log *logger.Logger) {
	switch {
	case runErr != nil:
		result.Status = repository.RunFailed
	case result.Errored > 0:
		result.Status = repository.RunPartial
	default:
		result.Status = repository.RunSuccess
	}

	// Record even when the caller's context is gone so the run does not stay open.
	bookkeeping := context.WithoutCancel(ctx)

	if len(result.Errors) > 0 {
		rowErrors := make([]repository.SyncRowError, len(result.Errors))
		for i, e := range result.Errors {
			rowErrors[i] = repository.SyncRowError{
				ExternalOrderID: e.ExternalOrderID,
				ExternalItemID:  e.ExternalItemID,
				Code:            e.Code,
				Message:         e.Message,
				Payload:         json.RawMessage(e.Payload),
			}
		}
		if err := s.deps.Runs.RecordErrors(bookkeeping, result.RunID, rowErrors); err != nil {
			log.Error().Err(err).Msg("failed to record sync row errors")
		}
	}

	run := &repository.SyncRun{
		ID:       result.RunID,
		Status:   result.Status,
		RowsSeen: result.Processed,
		Inserted: result.Inserted,
		Updated:  result.Updated,
		Skipped:  result.Skipped,
		Errored:  result.Errored,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.ErrorMessage = &msg
	}
	if err := s.deps.Runs.Finish(bookkeeping, run); err != nil {
		log.Error().Err(err).Msg("failed to finish sync run")
	}

	if runErr == nil {
		if err := s.deps.Restaurants.MarkSynced(bookkeeping, result.RestaurantID, s.vendor); err != nil {
			log.Error().Err(err).Msg("failed to stamp connection sync time")
		}
	}
	if result.Affected() > 0 {
		if err := s.deps.Cache.Invalidate(bookkeeping, result.RestaurantID); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate report cache")
		}
	}

	err := s.deps.Publisher.Publish(bookkeeping, messaging.EventSyncCompleted, messaging.SyncCompletedEvent{
		RestaurantID: result.RestaurantID,
		POSSystem:    string(s.vendor),
		RunID:        result.RunID,
		Status:       result.Status,
		Processed:    result.Processed,
		Inserted:     result.Inserted,
		Updated:      result.Updated,
		Skipped:      result.Skipped,
		Errored:      result.Errored,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to publish sync completed event")
	}

	event := log.Info()
	if runErr != nil {
		event = log.Error().Err(runErr)
	}
	event.
		Str("run_id", result.RunID).
		Str("status", result.Status).
		Int("processed", result.Processed).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("errored", result.Errored).
		Msg("sync finished")
}

func squarePages(r StagingReader) pageFunc {
	return func(ctx context.Context, restaurantID, after string, limit int, loc *time.Location) (page, error) {
		orders, err := r.SquareOrders(ctx, restaurantID, after, limit)
		if err != nil {
			return page{}, err
		}
		p := page{orders: len(orders)}
		for _, o := range orders {
			p.mapped = append(p.mapped, normalize.Square(restaurantID, o, loc))
			p.last = o.OrderID
		}
		return p, nil
	}
}

func cloverPages(r StagingReader) pageFunc {
	return func(ctx context.Context, restaurantID, after string, limit int, loc *time.Location) (page, error) {
		orders, err := r.CloverOrders(ctx, restaurantID, after, limit)
		if err != nil {
			return page{}, err
		}
		p := page{orders: len(orders)}
		for _, o := range orders {
			p.mapped = append(p.mapped, normalize.Clover(restaurantID, o, loc))
			p.last = o.OrderID
		}
		return p, nil
	}
}

func toastPages(r StagingReader) pageFunc {
	return func(ctx context.Context, restaurantID, after string, limit int, loc *time.Location) (page, error) {
		orders, err := r.ToastOrders(ctx, restaurantID, after, limit)
		if err != nil {
			return page{}, err
		}
		p := page{orders: len(orders)}
		for _, o := range orders {
			p.mapped = append(p.mapped, normalize.Toast(restaurantID, o, loc))
			p.last = o.OrderGUID
		}
		return p, nil
	}
}

func shift4Pages(r StagingReader) pageFunc {
	return func(ctx context.Context, restaurantID, after string, limit int, loc *time.Location) (page, error) {
		charges, err := r.Shift4Charges(ctx, restaurantID, after, limit)
		if err != nil {
			return page{}, err
		}
		p := page{orders: len(charges)}
		for _, c := range charges {
			p.mapped = append(p.mapped, normalize.Shift4(restaurantID, c, loc))
			p.last = c.ChargeID
		}
		return p, nil
	}
}
