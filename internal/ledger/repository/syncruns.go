package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/database"
)

// Sync run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// SyncRun is one execution of a vendor sync for a restaurant.
type SyncRun struct {
	ID           string     `db:"id" json:"id"`
	RestaurantID string     `db:"restaurant_id" json:"restaurant_id"`
	POSSystem    string     `db:"pos_system" json:"pos_system"`
	Status       string     `db:"status" json:"status"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	RowsSeen     int        `db:"rows_seen" json:"rows_seen"`
	Inserted     int        `db:"inserted" json:"inserted"`
	Updated      int        `db:"updated" json:"updated"`
	Skipped      int        `db:"skipped" json:"skipped"`
	Errored      int        `db:"errored" json:"errored"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
}

// SyncRowError is a staging row that could not be mapped.
type SyncRowError struct {
	ExternalOrderID string
	ExternalItemID  string
	Code            string
	Message         string
	Payload         json.RawMessage
}

// SyncRunRepository records sync runs and the rows they skipped.
type SyncRunRepository struct {
	db *database.DB
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db *database.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Start opens a run in the running state.
func (r *SyncRunRepository) Start(ctx context.Context, restaurantID string, vendor domain.POSSystem) (string, error) {
	var id string
	err := r.db.Conn(ctx).GetContext(ctx, &id, `
		INSERT INTO pos_sync_runs (restaurant_id, pos_system, status)
		VALUES ($1, $2, 'running')
		RETURNING id`,
		restaurantID, vendor,
	)
	return id, err
}

// Finish closes a run with its final counts.
func (r *SyncRunRepository) Finish(ctx context.Context, run *SyncRun) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE pos_sync_runs
		SET status = $2, finished_at = NOW(), rows_seen = $3, inserted = $4, updated = $5,
		    skipped = $6, errored = $7, error_message = $8
		WHERE id = $1`,
		run.ID, run.Status, run.RowsSeen, run.Inserted, run.Updated, run.Skipped, run.Errored, run.ErrorMessage,
	)
	return err
}

// RecordErrors stores the rows a run could not map.
func (r *SyncRunRepository) RecordErrors(ctx context.Context, runID string, rowErrors []SyncRowError) error {
	conn := r.db.Conn(ctx)
	for _, e := range rowErrors {
		var payload interface{}
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		_, err := conn.ExecContext(ctx, `
			INSERT INTO pos_sync_errors (run_id, external_order_id, external_item_id, code, message, payload)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			runID, e.ExternalOrderID, e.ExternalItemID, e.Code, e.Message, payload,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the most recent run of a vendor for a restaurant, or nil.
func (r *SyncRunRepository) Latest(ctx context.Context, restaurantID string, vendor domain.POSSystem) (*SyncRun, error) {
	runs := []SyncRun{}
	err := r.db.Conn(ctx).SelectContext(ctx, &runs, `
		SELECT id, restaurant_id, pos_system, status, started_at, finished_at,
		       rows_seen, inserted, updated, skipped, errored, error_message
		FROM pos_sync_runs
		WHERE restaurant_id = $1 AND pos_system = $2
		ORDER BY started_at DESC
		LIMIT 1`,
		restaurantID, vendor,
	)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}
