// Package jobs drains the sync job queue: it claims a bounded batch of jobs,
// dispatches each to the sync worker, and moves jobs that keep failing to the
// dead letter table while raising an operator incident.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/tablestack/tablestack-backend/pkg/database"
)

// Job is a claimed row of sync_jobs. ReadCt counts claims, including the
// current one.
type Job struct {
	ID         int64          `db:"id" json:"id"`
	Payload    types.JSONText `db:"payload" json:"payload"`
	ReadCt     int            `db:"read_ct" json:"read_ct"`
	EnqueuedAt time.Time      `db:"enqueued_at" json:"enqueued_at"`
	VisibleAt  time.Time      `db:"visible_at" json:"visible_at"`
	LastError  *string        `db:"last_error" json:"last_error,omitempty"`
}

// SyncPayload asks the worker to sync one vendor. An empty RestaurantID means
// every restaurant connected to the vendor.
type SyncPayload struct {
	POSSystem    string `json:"pos_system" validate:"required,oneof=square clover toast shift4"`
	RestaurantID string `json:"restaurant_id,omitempty" validate:"omitempty,uuid"`
	RequestedBy  string `json:"requested_by,omitempty"`
}

// Queue is a visibility-timeout job queue.
type Queue interface {
	Enqueue(ctx context.Context, payload interface{}) (int64, error)
	// Read claims up to n visible jobs and hides them for visibility.
	Read(ctx context.Context, n int, visibility time.Duration) ([]Job, error)
	Delete(ctx context.Context, id int64) error
	// Fail records the error of a failed attempt. The job reappears when its
	// visibility timeout lapses.
	Fail(ctx context.Context, id int64, lastError string) error
	// DeadLetter moves the job out of the queue.
	DeadLetter(ctx context.Context, job Job, lastError string) error
}

// PostgresQueue stores jobs in sync_jobs.
type PostgresQueue struct {
	db *database.DB
}

// NewPostgresQueue creates a new queue backed by sync_jobs
func NewPostgresQueue(db *database.DB) *PostgresQueue {
	return &PostgresQueue{db: db}
}

// Enqueue stores payload as JSON and returns the job id.
func (q *PostgresQueue) Enqueue(ctx context.Context, payload interface{}) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode job payload: %w", err)
	}

	var id int64
	err = q.db.Conn(ctx).GetContext(ctx, &id, `
		INSERT INTO sync_jobs (payload) VALUES ($1) RETURNING id`,
		string(body),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, nil
}

// Read claims jobs in id order. Rows locked by another drainer are skipped.
func (q *PostgresQueue) Read(ctx context.Context, n int, visibility time.Duration) ([]Job, error) {
	jobs := []Job{}
	err := q.db.Conn(ctx).SelectContext(ctx, &jobs, `
		WITH next AS (
			SELECT id FROM sync_jobs
			WHERE visible_at <= NOW()
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE sync_jobs j
		SET read_ct = j.read_ct + 1, visible_at = NOW() + make_interval(secs => $2)
		FROM next
		WHERE j.id = next.id
		RETURNING j.id, j.payload, j.read_ct, j.enqueued_at, j.visible_at, j.last_error`,
		n, visibility.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs: %w", err)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs, nil
}

// Delete removes a finished job.
func (q *PostgresQueue) Delete(ctx context.Context, id int64) error {
	_, err := q.db.Conn(ctx).ExecContext(ctx, `DELETE FROM sync_jobs WHERE id = $1`, id)
	return err
}

// Fail stores the latest attempt error.
func (q *PostgresQueue) Fail(ctx context.Context, id int64, lastError string) error {
	_, err := q.db.Conn(ctx).ExecContext(ctx, `UPDATE sync_jobs SET last_error = $2 WHERE id = $1`, id, lastError)
	return err
}

// DeadLetter copies the job to sync_jobs_dead_letter and deletes it in one
// transaction.
func (q *PostgresQueue) DeadLetter(ctx context.Context, job Job, lastError string) error {
	return q.db.InTx(ctx, func(ctx context.Context) error {
		conn := q.db.Conn(ctx)
		_, err := conn.ExecContext(ctx, `
			INSERT INTO sync_jobs_dead_letter (id, payload, read_ct, enqueued_at, last_error)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			job.ID, string(job.Payload), job.ReadCt, job.EnqueuedAt, lastError,
		)
		if err != nil {
			return fmt.Errorf("failed to dead-letter job %d: %w", job.ID, err)
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM sync_jobs WHERE id = $1`, job.ID); err != nil {
			return fmt.Errorf("failed to delete dead-lettered job %d: %w", job.ID, err)
		}
		return nil
	})
}
