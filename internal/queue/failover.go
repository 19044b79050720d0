package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dosync/internal/domain"
	"dosync/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverJobQueue enqueues to the primary queue and switches to the fallback
// while the primary is failing, retrying the primary once a minute.
type FailoverJobQueue struct {
	primary  domain.JobQueue
	fallback *MemoryJobQueue
	logger   *zerolog.Logger
	clock    clockwork.Clock

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverJobQueue(primary domain.JobQueue, fallback *MemoryJobQueue, clock clockwork.Clock, logger *zerolog.Logger) *FailoverJobQueue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverJobQueue{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		clock:    clock,
	}
}

func (q *FailoverJobQueue) markDown(err error) {
	if !q.isDown.Swap(true) {
		q.logger.Error().Err(err).Msg("Primary import queue failed, falling back to memory")
	}
	q.mu.Lock()
	q.lastCheck = q.clock.Now()
	q.mu.Unlock()
}

// shouldTryPrimary reports whether the primary is up or due for a recovery attempt.
func (q *FailoverJobQueue) shouldTryPrimary() bool {
	if !q.isDown.Load() {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clock.Since(q.lastCheck) > recoveryInterval
}

func (q *FailoverJobQueue) EnqueueImport(ctx context.Context, jobID string) error {
	if q.shouldTryPrimary() {
		err := q.primary.EnqueueImport(ctx, jobID)
		if err == nil {
			if q.isDown.Swap(false) {
				q.logger.Info().Msg("Primary import queue recovered")
			}
			return nil
		}
		q.markDown(err)
	}

	metrics.IncQueueFallback()
	return q.fallback.EnqueueImport(ctx, jobID)
}

// DequeueImport drains jobs parked in the fallback before reading the primary.
func (q *FailoverJobQueue) DequeueImport(ctx context.Context) (string, bool, error) {
	select {
	case id := <-q.fallback.jobs:
		return id, true, nil
	default:
	}

	if q.shouldTryPrimary() {
		id, ok, err := q.primary.DequeueImport(ctx)
		if err == nil {
			q.isDown.Store(false)
			return id, ok, nil
		}
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		q.markDown(err)
	}

	return q.fallback.DequeueImport(ctx)
}

func (q *FailoverJobQueue) IsDown() bool {
	return q.isDown.Load()
}
