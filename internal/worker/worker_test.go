package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"dosync/internal/config"
	"dosync/internal/database"
	"dosync/internal/domain"
	"dosync/internal/models"
	"dosync/internal/queue"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeImporter struct {
	result *ImportResult
	err    error
	calls  int
}

func (f *fakeImporter) Import(ctx context.Context, job ImportJob) (*ImportResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedSync stores a queued synchronization and its queued import.
func seedSync(t *testing.T, db *database.DB, retried int, importAs string) (*models.Synchronization, *models.DataImport) {
	t.Helper()
	ctx := context.Background()

	payload, err := models.ConnectorPayload{Provider: "do-v2", SubscriptionID: "carto.ds.tbl", ImportAs: importAs}.Encode()
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	sync := &models.Synchronization{
		ID:            uuid.NewString(),
		UserID:        "u1",
		ServiceName:   models.ServiceNameConnector,
		ServiceItemID: payload,
		Interval:      24 * time.Hour,
		State:         models.SynchronizationStateQueued,
		RetriedTimes:  retried,
		CreatedAt:     testNow.Add(-time.Hour),
	}
	if err := db.CreateSchedule(ctx, sync); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	imp := &models.DataImport{
		ID:                uuid.NewString(),
		UserID:            "u1",
		ServiceName:       models.ServiceNameConnector,
		ServiceItemID:     payload,
		State:             models.ImportStateQueued,
		SynchronizationID: sync.ID,
		CreatedAt:         testNow.Add(-time.Hour),
	}
	if err := db.CreateImport(ctx, imp); err != nil {
		t.Fatalf("create import: %v", err)
	}
	return sync, imp
}

func newTestWorker(db *database.DB, q *queue.MemoryJobQueue, importer Importer) *ImportWorker {
	cfg := config.WorkerConfig{MaxRetries: 3, InitialDelay: time.Minute, MaxDelay: time.Hour, BackoffFactor: 2}
	var jobQueue domain.JobQueue
	if q != nil {
		jobQueue = q
	}
	return NewImportWorker(db, jobQueue, importer, cfg, clockwork.NewFakeClockAt(testNow), nil)
}

func TestProcessImportSuccess(t *testing.T) {
	db := newTestDB(t)
	sync, imp := seedSync(t, db, 2, "do_sync_ds_tbl")
	importer := &fakeImporter{result: &ImportResult{RowCount: 42, SizeBytes: 4096}}
	w := newTestWorker(db, nil, importer)
	ctx := context.Background()

	if n := w.RunOnce(ctx); n != 1 {
		t.Fatalf("expected 1 import processed, got %d", n)
	}

	got, err := db.GetImport(ctx, imp.ID)
	if err != nil {
		t.Fatalf("get import: %v", err)
	}
	if got.State != models.ImportStateComplete {
		t.Fatalf("expected state=complete, got %s", got.State)
	}
	if got.TableName != "do_sync_ds_tbl" || got.TableID == "" {
		t.Fatalf("expected table link, got %q/%q", got.TableID, got.TableName)
	}

	table, err := db.FindTableByName(ctx, "u1", "do_sync_ds_tbl")
	if err != nil || table == nil {
		t.Fatalf("expected table registered, err=%v", err)
	}
	if table.RowCount != 42 || table.SizeBytes != 4096 {
		t.Fatalf("unexpected table stats: %+v", table)
	}

	s, err := db.FindSchedule(ctx, sync.ID)
	if err != nil {
		t.Fatalf("find schedule: %v", err)
	}
	if s.State != models.SynchronizationStateSuccess {
		t.Fatalf("expected schedule success, got %s", s.State)
	}
	if s.RetriedTimes != 0 {
		t.Fatalf("expected retried_times reset, got %d", s.RetriedTimes)
	}
	if s.RunAt == nil || !s.RunAt.Equal(testNow.Add(24*time.Hour)) {
		t.Fatalf("expected next run a day later, got %v", s.RunAt)
	}
}

func TestProcessImportRetry(t *testing.T) {
	db := newTestDB(t)
	sync, imp := seedSync(t, db, 0, "do_sync_ds_tbl")
	importer := &fakeImporter{err: &ImportError{Code: "1012", Err: errors.New("boom")}}
	w := newTestWorker(db, nil, importer)
	ctx := context.Background()

	w.RunOnce(ctx)

	got, _ := db.GetImport(ctx, imp.ID)
	if got.State != models.ImportStateFailure || got.ErrorCode != "1012" {
		t.Fatalf("expected failure with code 1012, got %s/%s", got.State, got.ErrorCode)
	}

	s, _ := db.FindSchedule(ctx, sync.ID)
	if s.State != models.SynchronizationStateFailure {
		t.Fatalf("expected schedule failure, got %s", s.State)
	}
	if s.RetriedTimes != 1 {
		t.Fatalf("expected retried_times=1, got %d", s.RetriedTimes)
	}
	if s.RunAt == nil || !s.RunAt.Equal(testNow.Add(time.Minute)) {
		t.Fatalf("expected retry after initial delay, got %v", s.RunAt)
	}
}

func TestProcessImportRetriesExhausted(t *testing.T) {
	db := newTestDB(t)
	sync, _ := seedSync(t, db, 2, "do_sync_ds_tbl")
	w := newTestWorker(db, nil, &fakeImporter{err: errors.New("boom")})
	ctx := context.Background()

	w.RunOnce(ctx)

	s, _ := db.FindSchedule(ctx, sync.ID)
	if s.RetriedTimes != 3 {
		t.Fatalf("expected retried_times=3, got %d", s.RetriedTimes)
	}
	if s.RunAt != nil {
		t.Fatalf("expected no further run, got %v", s.RunAt)
	}
	if s.ErrorCode != models.ErrorCodeUnknown {
		t.Fatalf("expected unknown error code, got %q", s.ErrorCode)
	}
}

func TestProcessImportInvalidPayload(t *testing.T) {
	db := newTestDB(t)
	_, imp := seedSync(t, db, 0, "")
	importer := &fakeImporter{result: &ImportResult{}}
	w := newTestWorker(db, nil, importer)
	ctx := context.Background()

	w.RunOnce(ctx)

	got, _ := db.GetImport(ctx, imp.ID)
	if got.ErrorCode != ErrorCodeInvalidPayload {
		t.Fatalf("expected invalid_payload, got %q", got.ErrorCode)
	}
	if importer.calls != 0 {
		t.Fatalf("importer must not run for an invalid payload")
	}
}

func TestProcessImportFromQueueRunsOnce(t *testing.T) {
	db := newTestDB(t)
	_, imp := seedSync(t, db, 0, "do_sync_ds_tbl")
	q := queue.NewMemoryJobQueue(4, 0, nil)
	importer := &fakeImporter{result: &ImportResult{RowCount: 1}}
	w := newTestWorker(db, q, importer)
	ctx := context.Background()

	// Delivered twice: by the queue and again by a duplicate push.
	_ = q.EnqueueImport(ctx, imp.ID)
	_ = q.EnqueueImport(ctx, imp.ID)

	w.RunOnce(ctx)
	w.RunOnce(ctx)
	w.RunOnce(ctx)

	if importer.calls != 1 {
		t.Fatalf("expected a single import run, got %d", importer.calls)
	}
}

func TestProcessUnknownImportID(t *testing.T) {
	db := newTestDB(t)
	q := queue.NewMemoryJobQueue(1, 0, nil)
	importer := &fakeImporter{}
	w := newTestWorker(db, q, importer)

	_ = q.EnqueueImport(context.Background(), "missing")
	if n := w.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected dequeued job to count, got %d", n)
	}
	if importer.calls != 0 {
		t.Fatalf("importer must not run for unknown imports")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	w := newTestWorker(db, nil, &fakeImporter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}
