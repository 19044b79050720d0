package service

import (
	"context"
	"fmt"
	"time"

	"dosync/internal/config"
	"dosync/internal/domain"
	"dosync/internal/events"
	"dosync/internal/metrics"
	"dosync/internal/models"

	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Dependencies are the collaborators of DoSyncService. Events may be nil.
type Dependencies struct {
	Catalog   domain.CatalogClient
	Stats     domain.StorageStatsClient
	Imports   domain.ImportRecordStore
	Schedules domain.SynchronizationScheduler
	Queue     domain.WorkerQueue
	Tables    domain.TableRegistry
	Events    domain.EventPublisher
}

// DoSyncService derives the sync status of a user's subscriptions and starts or
// stops their recurring synchronization. Status is recomputed on every call.
type DoSyncService struct {
	userID    string
	catalog   domain.CatalogClient
	stats     domain.StorageStatsClient
	imports   domain.ImportRecordStore
	schedules domain.SynchronizationScheduler
	queue     domain.WorkerQueue
	tables    domain.TableRegistry
	events    domain.EventPublisher
	cfg       config.SyncConfig
	clock     clockwork.Clock
	logger    *zerolog.Logger
}

func NewDoSyncService(userID string, deps Dependencies, cfg config.SyncConfig, clock clockwork.Clock, logger *zerolog.Logger) *DoSyncService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.Provider == "" {
		cfg.Provider = config.DefaultProvider
	}
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultSyncInterval
	}
	l := logger.With().Str("component", "dosync").Str("user_id", userID).Logger()

	return &DoSyncService{
		userID:    userID,
		catalog:   deps.Catalog,
		stats:     deps.Stats,
		imports:   deps.Imports,
		schedules: deps.Schedules,
		queue:     deps.Queue,
		tables:    deps.Tables,
		events:    deps.Events,
		cfg:       cfg,
		clock:     clock,
		logger:    &l,
	}
}

// TentativeTableName is the table a new sync of subscriptionID imports into.
func TentativeTableName(subscriptionID string) (string, error) {
	_, dataset, table, ok := models.SplitCatalogID(subscriptionID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubscriptionID, subscriptionID)
	}
	return "do_sync_" + dataset + "_" + table, nil
}

func unsyncable(reason string) *models.SyncStatus {
	return &models.SyncStatus{Status: models.SyncStateUnsyncable, UnsyncableReason: reason}
}

// Evaluate computes the current sync status of a subscription. Business
// outcomes are returned as status; only collaborator faults are errors.
func (s *DoSyncService) Evaluate(ctx context.Context, subscriptionID string) (*models.SyncStatus, error) {
	status, _, err := s.evaluate(ctx, subscriptionID)
	return status, err
}

// evaluate also returns the latest import the status was derived from, if any.
func (s *DoSyncService) evaluate(ctx context.Context, subscriptionID string) (*models.SyncStatus, *models.DataImport, error) {
	status, latest, err := s.derive(ctx, subscriptionID)
	if err != nil {
		return nil, nil, err
	}
	metrics.IncEvaluation(string(status.Status))
	return status, latest, nil
}

func (s *DoSyncService) derive(ctx context.Context, subscriptionID string) (*models.SyncStatus, *models.DataImport, error) {
	sub, err := s.catalog.GetSubscription(ctx, s.userID, subscriptionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get subscription %s: %w", subscriptionID, err)
	}
	if sub == nil {
		return unsyncable(fmt.Sprintf("invalid subscription %s", subscriptionID)), nil, nil
	}
	if sub.Expired(s.clock.Now()) {
		return unsyncable(fmt.Sprintf("subscription %s expired at %s", subscriptionID, sub.ExpiresAt.UTC().Format(time.RFC3339))), nil, nil
	}

	views, err := s.resolveViews(ctx, sub)
	if err != nil {
		return nil, nil, err
	}
	if views == nil {
		return unsyncable(fmt.Sprintf("subscription %s has no resolvable views", subscriptionID)), nil, nil
	}

	numBytes, numRows, numColumns, err := s.estimate(ctx, views)
	if err != nil {
		return nil, nil, err
	}
	if reason, exceeded := exceedsLimits(numBytes, numRows, numColumns); exceeded {
		return unsyncable(reason), nil, nil
	}

	status := &models.SyncStatus{
		Status:            models.SyncStateUnsynced,
		EstimatedSize:     &numBytes,
		EstimatedRowCount: &numRows,
	}

	imp, err := s.imports.FindLatestImport(ctx, s.userID, s.cfg.Provider, subscriptionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find latest import of %s: %w", subscriptionID, err)
	}
	if imp == nil {
		return status, nil, nil
	}

	switch {
	case imp.State.InProgress():
		return &models.SyncStatus{Status: models.SyncStateSyncing}, imp, nil
	case imp.State == models.ImportStateComplete:
		status.Status = models.SyncStateSynced
		status.SyncTable = imp.TableName
		status.SyncTableID = imp.TableID
		sync, err := s.schedules.FindSchedule(ctx, imp.SynchronizationID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to find synchronization %s: %w", imp.SynchronizationID, err)
		}
		if sync != nil {
			status.SynchronizationID = sync.ID
		}
	default:
		code := imp.ErrorCode
		if code == "" {
			code = models.ErrorCodeUnknown
		}
		status.UnsyncedErrors = []string{code}
	}
	return status, imp, nil
}

// estimate sums bytes over the views. Rows come from the first view reporting
// them, columns from the data view or else the geography view.
func (s *DoSyncService) estimate(ctx context.Context, views *models.SubscriptionViews) (numBytes, numRows int64, numColumns int, err error) {
	rowsSeen := false
	columnsSeen := false
	for _, view := range []string{views.Data, views.Geography} {
		if view == "" {
			continue
		}
		stats, err := s.stats.GetTableStats(ctx, view)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("failed to get stats of %s: %w", view, err)
		}
		numBytes += stats.NumBytes
		if !rowsSeen && stats.NumRows != nil {
			numRows = *stats.NumRows
			rowsSeen = true
		}
		if !columnsSeen {
			numColumns = stats.NumColumns
			columnsSeen = true
		}
	}

	s.logger.Debug().
		Str("data_view", views.Data).
		Str("geography_view", views.Geography).
		Str("size", datasize.ByteSize(numBytes).HumanReadable()).
		Int64("rows", numRows).
		Int("columns", numColumns).
		Msg("subscription estimate")
	return numBytes, numRows, numColumns, nil
}

// exceedsLimits is where size, row and column quotas will be enforced.
// TODO: reject over-quota subscriptions once account limits are defined.
func exceedsLimits(numBytes, numRows int64, numColumns int) (string, bool) {
	return "", false
}

// CreateSync starts a recurring synchronization unless one is running or done.
// A previous failure is only retried when force is set, and the retry reuses the
// failed synchronization so a subscription never has two live schedules.
func (s *DoSyncService) CreateSync(ctx context.Context, subscriptionID string, force bool) (*models.SyncStatus, error) {
	status, latest, err := s.evaluate(ctx, subscriptionID)
	if err != nil {
		metrics.IncOperation("create", "error")
		return nil, err
	}
	if status.Status != models.SyncStateUnsynced || (status.HasErrors() && !force) {
		metrics.IncOperation("create", "noop")
		return status, nil
	}

	if err := s.createNewSync(ctx, subscriptionID, force, latest); err != nil {
		metrics.IncOperation("create", "error")
		return nil, err
	}
	metrics.IncOperation("create", "ok")
	return s.Evaluate(ctx, subscriptionID)
}

func (s *DoSyncService) createNewSync(ctx context.Context, subscriptionID string, force bool, latest *models.DataImport) error {
	tableName, err := TentativeTableName(subscriptionID)
	if err != nil {
		return err
	}
	serviceItemID, err := models.ConnectorPayload{
		Provider:       s.cfg.Provider,
		SubscriptionID: subscriptionID,
		ImportAs:       tableName,
	}.Encode()
	if err != nil {
		return err
	}
	now := s.clock.Now()

	prior, err := s.failedSchedule(ctx, latest)
	if err != nil {
		return err
	}

	sync := prior
	if sync == nil {
		sync = &models.Synchronization{
			ID:            uuid.NewString(),
			UserID:        s.userID,
			ServiceName:   models.ServiceNameConnector,
			ServiceItemID: serviceItemID,
			Interval:      s.cfg.Interval,
			State:         models.SynchronizationStateCreated,
			CreatedAt:     now,
		}
		if err := s.schedules.CreateSchedule(ctx, sync); err != nil {
			return fmt.Errorf("failed to create synchronization for %s: %w", subscriptionID, err)
		}
	}

	imp := &models.DataImport{
		ID:                uuid.NewString(),
		UserID:            s.userID,
		ServiceName:       models.ServiceNameConnector,
		ServiceItemID:     serviceItemID,
		State:             models.ImportStateQueued,
		SynchronizationID: sync.ID,
		CreatedAt:         now,
	}
	if err := s.imports.CreateImport(ctx, imp); err != nil {
		return fmt.Errorf("failed to create import for %s: %w", subscriptionID, err)
	}

	// The schedule keeps its state until the worker pool accepted the job.
	if err := s.queue.EnqueueImport(ctx, imp.ID); err != nil {
		return fmt.Errorf("failed to enqueue import %s: %w", imp.ID, err)
	}
	if prior != nil {
		err = s.schedules.RequeueSchedule(ctx, sync.ID, now)
	} else {
		err = s.schedules.UpdateScheduleState(ctx, sync.ID, models.SynchronizationStateQueued, now)
	}
	if err != nil {
		return fmt.Errorf("failed to mark synchronization %s queued: %w", sync.ID, err)
	}

	s.logger.Info().
		Str("subscription_id", subscriptionID).
		Str("synchronization_id", sync.ID).
		Str("import_id", imp.ID).
		Str("table", tableName).
		Bool("forced", force).
		Bool("reused_synchronization", prior != nil).
		Msg("sync created")
	s.publish(events.EventSyncCreated, events.SyncEventPayload{
		UserID:            s.userID,
		SubscriptionID:    subscriptionID,
		SynchronizationID: sync.ID,
		ImportID:          imp.ID,
		TableName:         tableName,
		Forced:            force,
	})
	return nil
}

// failedSchedule returns the synchronization behind a failed latest import, or
// nil when there is none left to retry.
func (s *DoSyncService) failedSchedule(ctx context.Context, latest *models.DataImport) (*models.Synchronization, error) {
	if latest == nil || latest.State != models.ImportStateFailure || latest.SynchronizationID == "" {
		return nil, nil
	}
	sync, err := s.schedules.FindSchedule(ctx, latest.SynchronizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find synchronization %s: %w", latest.SynchronizationID, err)
	}
	return sync, nil
}

// RemoveSync stops a finished synchronization by deleting its table. It fails
// with ErrSyncInProgress while an import runs and does nothing when unsynced.
// The status may change between evaluation and deletion; that race is accepted.
func (s *DoSyncService) RemoveSync(ctx context.Context, subscriptionID string) error {
	status, err := s.Evaluate(ctx, subscriptionID)
	if err != nil {
		metrics.IncOperation("remove", "error")
		return err
	}

	switch status.Status {
	case models.SyncStateSyncing:
		metrics.IncOperation("remove", "conflict")
		return fmt.Errorf("%w: %s", ErrSyncInProgress, subscriptionID)
	case models.SyncStateSynced:
		if err := s.tables.DeleteTableAndVisualization(ctx, status.SyncTableID); err != nil {
			metrics.IncOperation("remove", "error")
			return fmt.Errorf("failed to delete table %s: %w", status.SyncTableID, err)
		}
	default:
		metrics.IncOperation("remove", "noop")
		return nil
	}

	metrics.IncOperation("remove", "ok")
	s.logger.Info().
		Str("subscription_id", subscriptionID).
		Str("table_id", status.SyncTableID).
		Msg("sync removed")
	s.publish(events.EventSyncRemoved, events.SyncEventPayload{
		UserID:            s.userID,
		SubscriptionID:    subscriptionID,
		SynchronizationID: status.SynchronizationID,
		TableID:           status.SyncTableID,
		TableName:         status.SyncTable,
	})
	return nil
}

// SubscriptionFromSyncTable maps a synced table back to its subscription. It
// reports false until the first import has linked the table.
func (s *DoSyncService) SubscriptionFromSyncTable(ctx context.Context, tableName string) (string, bool, error) {
	table, err := s.tables.FindTableByName(ctx, s.userID, tableName)
	if err != nil {
		return "", false, fmt.Errorf("failed to find table %s: %w", tableName, err)
	}
	if table == nil || table.DataImportID == "" {
		return "", false, nil
	}

	imp, err := s.imports.GetImport(ctx, table.DataImportID)
	if err != nil {
		return "", false, fmt.Errorf("failed to get import %s: %w", table.DataImportID, err)
	}
	if imp == nil || imp.ServiceName != models.ServiceNameConnector {
		return "", false, nil
	}

	payload, err := models.ParseConnectorPayload(imp.ServiceItemID)
	if err != nil {
		s.logger.Warn().Err(err).Str("import_id", imp.ID).Msg("unreadable connector payload")
		return "", false, nil
	}
	if !payload.IsProvider(s.cfg.Provider) || payload.SubscriptionID == "" {
		return "", false, nil
	}
	return payload.SubscriptionID, true, nil
}

func (s *DoSyncService) publish(eventType string, payload events.SyncEventPayload) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("publish event failed")
	}
}
