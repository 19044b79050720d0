package worker

import (
	"context"
	"fmt"
	"time"

	"dosync/internal/config"
	"dosync/internal/database"
	"dosync/internal/domain"
	"dosync/internal/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// StaleCreatedAfter is how long a synchronization may stay created without an
// import before the scheduler re-triggers it.
const StaleCreatedAfter = 5 * time.Minute

// Scheduler re-runs synchronizations whose next run is due.
type Scheduler struct {
	db        *database.DB
	queue     domain.WorkerQueue
	interval  time.Duration
	batchSize int
	clock     clockwork.Clock
	logger    *zerolog.Logger
}

func NewScheduler(db *database.DB, queue domain.WorkerQueue, cfg config.WorkerConfig, clock clockwork.Clock, logger *zerolog.Logger) *Scheduler {
	if cfg.RecurrenceInterval <= 0 {
		cfg.RecurrenceInterval = config.DefaultRecurrenceInterval
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
	return &Scheduler{
		db:        db,
		queue:     queue,
		interval:  cfg.RecurrenceInterval,
		batchSize: cfg.BatchSize,
		clock:     clock,
		logger:    logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("recurrence scheduler started")
	defer s.logger.Info().Msg("recurrence scheduler stopped")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := s.RunDue(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("recurrence run failed")
			}
		}
	}
}

// RunDue queues a fresh import for every due synchronization and returns how
// many were triggered.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.db.GetDueSchedules(ctx, now, now.Add(-StaleCreatedAfter), s.batchSize)
	if err != nil {
		return 0, err
	}

	triggered := 0
	for i := range due {
		if err := s.trigger(ctx, &due[i], now); err != nil {
			s.logger.Error().Err(err).Str("synchronization_id", due[i].ID).Msg("trigger synchronization failed")
			continue
		}
		triggered++
	}
	if triggered > 0 {
		s.logger.Info().Int("count", triggered).Msg("synchronizations triggered")
	}
	return triggered, nil
}

func (s *Scheduler) trigger(ctx context.Context, sync *models.Synchronization, now time.Time) error {
	imp := &models.DataImport{
		ID:                uuid.NewString(),
		UserID:            sync.UserID,
		ServiceName:       sync.ServiceName,
		ServiceItemID:     sync.ServiceItemID,
		State:             models.ImportStateQueued,
		SynchronizationID: sync.ID,
		CreatedAt:         now,
	}
	if err := s.db.CreateImport(ctx, imp); err != nil {
		return fmt.Errorf("create import: %w", err)
	}

	// The schedule keeps its state until the queue accepts the job. The queued
	// import keeps it from being due again and database polling still runs it.
	if err := s.queue.EnqueueImport(ctx, imp.ID); err != nil {
		s.logger.Warn().Err(err).Str("import_id", imp.ID).Msg("enqueue import failed, left for polling")
		return nil
	}

	if err := s.db.UpdateScheduleState(ctx, sync.ID, models.SynchronizationStateQueued, now); err != nil {
		return fmt.Errorf("mark synchronization queued: %w", err)
	}
	return nil
}
