package database

import (
	"context"
	"testing"
	"time"

	"dosync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertUserTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	table := &models.UserTable{ID: "t1", UserID: "u1", Name: "do_sync_ds_tbl", DataImportID: "imp-1", RowCount: 10}
	require.NoError(t, db.UpsertUserTable(ctx, table))
	assert.Equal(t, "t1", table.ID)

	again := &models.UserTable{ID: "t2", UserID: "u1", Name: "do_sync_ds_tbl", DataImportID: "imp-2", RowCount: 20}
	require.NoError(t, db.UpsertUserTable(ctx, again))
	assert.Equal(t, "t1", again.ID, "existing table keeps its id")

	got, err := db.FindTableByName(ctx, "u1", "do_sync_ds_tbl")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "imp-2", got.DataImportID)
	assert.Equal(t, int64(20), got.RowCount)

	other, err := db.FindTableByName(ctx, "u2", "do_sync_ds_tbl")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestDeleteTableAndVisualization(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now()

	sync := newSchedule(t, "u1", "carto.ds.tbl", models.SynchronizationStateSuccess, now)
	require.NoError(t, db.CreateSchedule(ctx, sync))
	table := &models.UserTable{ID: "t1", UserID: "u1", Name: "do_sync_ds_tbl"}
	require.NoError(t, db.UpsertUserTable(ctx, table))

	imp := newImport(t, "u1", "do-v2", "carto.ds.tbl", models.ImportStateComplete, now)
	imp.SynchronizationID = sync.ID
	imp.TableID = table.ID
	require.NoError(t, db.CreateImport(ctx, imp))

	require.NoError(t, db.DeleteTableAndVisualization(ctx, table.ID))

	gotTable, err := db.GetTable(ctx, table.ID)
	require.NoError(t, err)
	assert.Nil(t, gotTable)

	gotSync, err := db.FindSchedule(ctx, sync.ID)
	require.NoError(t, err)
	assert.Nil(t, gotSync, "synchronization is removed with its table")

	latest, err := db.FindLatestImport(ctx, "u1", "do-v2", "carto.ds.tbl")
	require.NoError(t, err)
	assert.Nil(t, latest, "import becomes non-authoritative")

	assert.NoError(t, db.DeleteTableAndVisualization(ctx, "missing"))
}
