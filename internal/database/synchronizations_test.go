package database

import (
	"context"
	"testing"
	"time"

	"dosync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	sync := newSchedule(t, "u1", "carto.ds.tbl", models.SynchronizationStateCreated, time.Time{})
	require.NoError(t, db.CreateSchedule(ctx, sync))

	got, err := db.FindSchedule(ctx, sync.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.SynchronizationStateCreated, got.State)
	assert.Equal(t, 24*time.Hour, got.Interval)
	assert.Nil(t, got.RunAt)

	queuedAt := time.Date(2024, 12, 31, 8, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpdateScheduleState(ctx, sync.ID, models.SynchronizationStateQueued, queuedAt))
	got, _ = db.FindSchedule(ctx, sync.ID)
	assert.Equal(t, models.SynchronizationStateQueued, got.State)
	assert.True(t, got.UpdatedAt.Equal(queuedAt), "updated_at follows the caller's clock")

	ranAt := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.MarkScheduleSuccess(ctx, sync.ID, ranAt, ranAt.Add(24*time.Hour)))
	got, _ = db.FindSchedule(ctx, sync.ID)
	assert.Equal(t, models.SynchronizationStateSuccess, got.State)
	require.NotNil(t, got.RunAt)
	assert.True(t, got.RunAt.Equal(ranAt.Add(24*time.Hour)))
	require.NotNil(t, got.RanAt)
	assert.True(t, got.RanAt.Equal(ranAt))

	require.NoError(t, db.MarkScheduleFailure(ctx, sync.ID, "1012", 2, ranAt, nil))
	got, _ = db.FindSchedule(ctx, sync.ID)
	assert.Equal(t, models.SynchronizationStateFailure, got.State)
	assert.Equal(t, "1012", got.ErrorCode)
	assert.Equal(t, 2, got.RetriedTimes)
	assert.Nil(t, got.RunAt)
}

func TestRequeueSchedule(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	sync := newSchedule(t, "u1", "carto.ds.tbl", models.SynchronizationStateCreated, time.Time{})
	require.NoError(t, db.CreateSchedule(ctx, sync))

	failedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	retryAt := failedAt.Add(time.Hour)
	require.NoError(t, db.MarkScheduleFailure(ctx, sync.ID, "stats_unavailable", 3, failedAt, &retryAt))

	requeuedAt := failedAt.Add(10 * time.Minute)
	require.NoError(t, db.RequeueSchedule(ctx, sync.ID, requeuedAt))

	got, err := db.FindSchedule(ctx, sync.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SynchronizationStateQueued, got.State)
	assert.Empty(t, got.ErrorCode)
	assert.Zero(t, got.RetriedTimes)
	assert.Nil(t, got.RunAt)
	assert.True(t, got.UpdatedAt.Equal(requeuedAt))

	due, err := db.GetDueSchedules(ctx, retryAt.Add(time.Minute), retryAt, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestGetDueSchedules_StaleCreatedUsesGivenTime(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sync := newSchedule(t, "u1", "carto.ds.tbl", models.SynchronizationStateQueued, created)
	require.NoError(t, db.CreateSchedule(ctx, sync))
	require.NoError(t, db.UpdateScheduleState(ctx, sync.ID, models.SynchronizationStateCreated, created.Add(time.Minute)))

	now := created.Add(10 * time.Minute)
	due, err := db.GetDueSchedules(ctx, now, now.Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, sync.ID, due[0].ID)
}

func TestFindSchedule_Missing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	got, err := db.FindSchedule(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = db.FindSchedule(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetDueSchedules(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := newSchedule(t, "u1", "carto.ds.due", models.SynchronizationStateSuccess, past)
	notYet := newSchedule(t, "u1", "carto.ds.later", models.SynchronizationStateSuccess, past)
	retry := newSchedule(t, "u1", "carto.ds.retry", models.SynchronizationStateFailure, past)
	stopped := newSchedule(t, "u1", "carto.ds.stopped", models.SynchronizationStateFailure, past)
	queued := newSchedule(t, "u1", "carto.ds.queued", models.SynchronizationStateQueued, past)
	staleCreated := newSchedule(t, "u1", "carto.ds.stale", models.SynchronizationStateCreated, now.Add(-10*time.Minute))
	freshCreated := newSchedule(t, "u1", "carto.ds.fresh", models.SynchronizationStateCreated, now)
	busy := newSchedule(t, "u1", "carto.ds.busy", models.SynchronizationStateSuccess, past)

	for _, s := range []*models.Synchronization{due, notYet, retry, stopped, queued, staleCreated, freshCreated, busy} {
		require.NoError(t, db.CreateSchedule(ctx, s))
	}
	require.NoError(t, db.MarkScheduleSuccess(ctx, due.ID, past, past))
	require.NoError(t, db.MarkScheduleSuccess(ctx, notYet.ID, past, future))
	require.NoError(t, db.MarkScheduleFailure(ctx, retry.ID, "1012", 1, past, &past))
	require.NoError(t, db.MarkScheduleFailure(ctx, stopped.ID, "1012", 5, past, nil))
	require.NoError(t, db.MarkScheduleSuccess(ctx, busy.ID, past, past))

	inFlight := newImport(t, "u1", "do-v2", "carto.ds.busy", models.ImportStateImporting, past)
	inFlight.SynchronizationID = busy.ID
	require.NoError(t, db.CreateImport(ctx, inFlight))

	got, err := db.GetDueSchedules(ctx, now, now.Add(-5*time.Minute), 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{due.ID, retry.ID, staleCreated.ID}, ids)
}
