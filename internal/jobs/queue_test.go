package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestack/tablestack-backend/internal/jobs"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
	"github.com/tablestack/tablestack-backend/pkg/testutil"
)

func TestPostgresQueue_Enqueue(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO sync_jobs (payload) VALUES ($1) RETURNING id").
		WithArgs(`{"pos_system":"clover","restaurant_id":"r1"}`).
		WillReturnRows(testutil.MockRows("id").AddRow(int64(9)))

	q := jobs.NewPostgresQueue(mockDB.DB())
	id, err := q.Enqueue(context.Background(), jobs.SyncPayload{POSSystem: "clover", RestaurantID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	mockDB.ExpectationsWereMet(t)
}

func TestPostgresQueue_Read(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(5, float64(120)).
		WillReturnRows(testutil.MockRows("id", "payload", "read_ct", "enqueued_at", "visible_at", "last_error").
			AddRow(int64(4), []byte(`{}`), 2, now, now, "timeout").
			AddRow(int64(3), []byte(`{}`), 1, now, now, nil))

	q := jobs.NewPostgresQueue(mockDB.DB())
	claimed, err := q.Read(context.Background(), 5, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, int64(3), claimed[0].ID)
	assert.Nil(t, claimed[0].LastError)
	assert.Equal(t, "timeout", *claimed[1].LastError)
	mockDB.ExpectationsWereMet(t)
}

func TestPostgresQueue_DeadLetter(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	enqueued := time.Now().Add(-time.Hour)
	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO sync_jobs_dead_letter").
		WithArgs(int64(11), `{"pos_system":"square"}`, 3, enqueued, "worker down").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("DELETE FROM sync_jobs WHERE id = $1").
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	q := jobs.NewPostgresQueue(mockDB.DB())
	err := q.DeadLetter(context.Background(), jobs.Job{
		ID: 11, Payload: []byte(`{"pos_system":"square"}`), ReadCt: 3, EnqueuedAt: enqueued,
	}, "worker down")
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestPostgresIncidentSink_Raise(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO ops_incidents").
		WithArgs("sync-queue", jobs.SeverityCritical, "sync job exhausted its attempts", `{"job_id":"11"}`).
		WillReturnRows(testutil.MockRows("id").AddRow("inc-1"))

	publisher := testutil.NewMockPublisher()
	sink := jobs.NewPostgresIncidentSink(mockDB.DB(), publisher, logger.Nop())

	id, err := sink.Raise(context.Background(), jobs.Incident{
		Source:   "sync-queue",
		Severity: jobs.SeverityCritical,
		Message:  "sync job exhausted its attempts",
		Details:  map[string]string{"job_id": "11"},
	})
	require.NoError(t, err)
	assert.Equal(t, "inc-1", id)
	publisher.AssertEventPublished(t, messaging.EventIncidentRaised)
	mockDB.ExpectationsWereMet(t)
}
