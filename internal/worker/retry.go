package worker

import (
	"math"
	"time"

	"dosync/internal/config"
)

// RetryPolicy defines exponential backoff between failed synchronization runs.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// RetryPolicyFromConfig fills unset fields with worker defaults.
func RetryPolicyFromConfig(cfg config.WorkerConfig) RetryPolicy {
	r := RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 5
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = time.Minute
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = time.Hour
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = 2
	}
	return r
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && (d > r.MaxDelay || delay > float64(math.MaxInt64)) {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// NextRunAt is when a schedule that failed attempt times runs again, or nil once
// the retries are exhausted.
func (r RetryPolicy) NextRunAt(now time.Time, attempt int) *time.Time {
	if attempt >= r.MaxRetries {
		return nil
	}
	next := now.Add(r.NextDelay(attempt))
	return &next
}
