package queue

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

var ErrQueueFull = errors.New("import queue is full")

// MemoryJobQueue keeps jobs in process. Jobs are lost on restart; the worker's
// database polling picks them up again.
type MemoryJobQueue struct {
	jobs  chan string
	wait  time.Duration
	clock clockwork.Clock
}

// NewMemoryJobQueue uses the real clock when clock is nil.
func NewMemoryJobQueue(capacity int, wait time.Duration, clock clockwork.Clock) *MemoryJobQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryJobQueue{
		jobs:  make(chan string, capacity),
		wait:  wait,
		clock: clock,
	}
}

func (q *MemoryJobQueue) EnqueueImport(ctx context.Context, jobID string) error {
	select {
	case q.jobs <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// DequeueImport waits up to the configured wait; zero wait never blocks.
func (q *MemoryJobQueue) DequeueImport(ctx context.Context) (string, bool, error) {
	if q.wait <= 0 {
		select {
		case id := <-q.jobs:
			return id, true, nil
		default:
			return "", false, nil
		}
	}

	timer := q.clock.NewTimer(q.wait)
	defer timer.Stop()

	select {
	case id := <-q.jobs:
		return id, true, nil
	case <-timer.Chan():
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func (q *MemoryJobQueue) Len() int {
	return len(q.jobs)
}
