package worker

import (
	"context"
	"fmt"
	"time"

	"dosync/internal/config"
	"dosync/internal/database"
	"dosync/internal/domain"
	"dosync/internal/metrics"
	"dosync/internal/models"

	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ImportWorker consumes queued imports and drives them to complete or failure,
// updating the synchronization that spawned them.
type ImportWorker struct {
	db           *database.DB
	queue        domain.JobQueue
	importer     Importer
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	batchSize    int
	clock        clockwork.Clock
	logger       *zerolog.Logger
}

// NewImportWorker builds a worker. queue may be nil, in which case only database
// polling feeds it.
func NewImportWorker(
	db *database.DB,
	queue domain.JobQueue,
	importer Importer,
	cfg config.WorkerConfig,
	clock clockwork.Clock,
	logger *zerolog.Logger,
) *ImportWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &ImportWorker{
		db:           db,
		queue:        queue,
		importer:     importer,
		retryPolicy:  RetryPolicyFromConfig(cfg),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		clock:        clock,
		logger:       logger,
	}
}

// Start launches main loop; stops when ctx is done.
func (w *ImportWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("import worker started")
	defer w.logger.Info().Msg("import worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if n := w.RunOnce(ctx); n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-w.clock.After(w.pollInterval):
		}
	}
}

// RunOnce takes one job from the queue, or else a batch of queued imports from
// the database, and returns how many imports it attempted.
func (w *ImportWorker) RunOnce(ctx context.Context) int {
	if w.queue != nil {
		id, ok, err := w.queue.DequeueImport(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("dequeue import failed")
		}
		if ok {
			w.processByID(ctx, id)
			return 1
		}
	}

	imports, err := w.db.GetQueuedImports(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("fetch queued imports failed")
		}
		return 0
	}
	for i := range imports {
		w.process(ctx, &imports[i])
	}
	return len(imports)
}

func (w *ImportWorker) processByID(ctx context.Context, id string) {
	imp, err := w.db.GetImport(ctx, id)
	if err != nil {
		w.logger.Error().Err(err).Str("import_id", id).Msg("load import failed")
		return
	}
	if imp == nil {
		w.logger.Warn().Str("import_id", id).Msg("dequeued unknown import")
		return
	}
	w.process(ctx, imp)
}

func (w *ImportWorker) process(ctx context.Context, imp *models.DataImport) {
	log := w.logger.With().Str("import_id", imp.ID).Str("user_id", imp.UserID).Logger()

	claimed, err := w.db.ClaimImport(ctx, imp.ID, w.clock.Now())
	if err != nil {
		log.Error().Err(err).Msg("claim import failed")
		return
	}
	if !claimed {
		log.Debug().Msg("import already claimed")
		return
	}
	imp.State = models.ImportStatePending

	sync, err := w.db.FindSchedule(ctx, imp.SynchronizationID)
	if err != nil {
		log.Error().Err(err).Msg("load synchronization failed")
	}

	payload, err := models.ParseConnectorPayload(imp.ServiceItemID)
	if err == nil && payload.ImportAs == "" {
		err = fmt.Errorf("payload names no target table")
	}
	if err != nil {
		w.fail(ctx, &log, imp, sync, &ImportError{Code: ErrorCodeInvalidPayload, Err: err})
		return
	}

	if sync != nil {
		if err := w.db.UpdateScheduleState(ctx, sync.ID, models.SynchronizationStateSyncing, w.clock.Now()); err != nil {
			log.Error().Err(err).Msg("mark synchronization syncing failed")
		}
	}
	if err := w.db.UpdateImportState(ctx, imp.ID, models.ImportStateImporting, w.clock.Now()); err != nil {
		log.Error().Err(err).Msg("mark import importing failed")
	}

	result, err := w.importer.Import(ctx, ImportJob{Import: *imp, Payload: payload})
	if err != nil {
		w.fail(ctx, &log, imp, sync, err)
		return
	}

	if err := w.complete(ctx, imp, sync, payload, result); err != nil {
		w.fail(ctx, &log, imp, sync, err)
		return
	}

	metrics.IncImportJob("success")
	log.Info().
		Str("table", payload.ImportAs).
		Int64("rows", result.RowCount).
		Str("size", datasize.ByteSize(result.SizeBytes).HumanReadable()).
		Msg("import complete")
}

func (w *ImportWorker) complete(ctx context.Context, imp *models.DataImport, sync *models.Synchronization, payload models.ConnectorPayload, result *ImportResult) error {
	now := w.clock.Now()

	table := &models.UserTable{
		ID:           uuid.NewString(),
		UserID:       imp.UserID,
		Name:         payload.ImportAs,
		DataImportID: imp.ID,
		RowCount:     result.RowCount,
		SizeBytes:    result.SizeBytes,
		CreatedAt:    now,
	}
	if err := w.db.UpsertUserTable(ctx, table); err != nil {
		return fmt.Errorf("register table: %w", err)
	}
	if err := w.db.CompleteImport(ctx, imp.ID, table.ID, table.Name, now); err != nil {
		return fmt.Errorf("complete import: %w", err)
	}

	if sync != nil {
		if err := w.db.MarkScheduleSuccess(ctx, sync.ID, now, now.Add(sync.Interval)); err != nil {
			w.logger.Error().Err(err).Str("synchronization_id", sync.ID).Msg("mark synchronization success failed")
		}
	}
	return nil
}

func (w *ImportWorker) fail(ctx context.Context, log *zerolog.Logger, imp *models.DataImport, sync *models.Synchronization, cause error) {
	code := errorCode(cause)
	now := w.clock.Now()
	metrics.IncImportJob("failure")

	if err := w.db.FailImport(ctx, imp.ID, code, now); err != nil {
		log.Error().Err(err).Msg("mark import failed")
	}

	if sync == nil {
		log.Warn().Err(cause).Str("error_code", code).Msg("import failed")
		return
	}

	attempt := sync.RetriedTimes + 1
	runAt := w.retryPolicy.NextRunAt(now, attempt)
	if err := w.db.MarkScheduleFailure(ctx, sync.ID, code, attempt, now, runAt); err != nil {
		log.Error().Err(err).Msg("mark synchronization failure failed")
	}

	event := log.Warn().Err(cause).Str("error_code", code).Int("attempt", attempt)
	if runAt != nil {
		event = event.Time("retry_at", *runAt)
	} else {
		event = event.Bool("retries_exhausted", true)
	}
	event.Msg("import failed")
}
