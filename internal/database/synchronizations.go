package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dosync/internal/models"
)

const syncColumns = `id, user_id, service_name, service_item_id, interval_seconds, state, error_code,
              retried_times, run_at, ran_at, created_at, updated_at`

func scanSynchronization(row rowScanner) (*models.Synchronization, error) {
	var (
		s               models.Synchronization
		intervalSeconds int64
		errorCode       sql.NullString
		runAt, ranAt    sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.ServiceName, &s.ServiceItemID, &intervalSeconds, &s.State, &errorCode,
		&s.RetriedTimes, &runAt, &ranAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Interval = time.Duration(intervalSeconds) * time.Second
	s.ErrorCode = errorCode.String
	s.RunAt = timePtr(runAt)
	s.RanAt = timePtr(ranAt)
	return &s, nil
}

func (db *DB) CreateSchedule(ctx context.Context, sync *models.Synchronization) error {
	sync.CreatedAt = nowUTC(sync.CreatedAt)
	sync.UpdatedAt = sync.CreatedAt

	query := `INSERT INTO synchronizations (` + syncColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		sync.ID,
		sync.UserID,
		sync.ServiceName,
		sync.ServiceItemID,
		int64(sync.Interval/time.Second),
		sync.State,
		nullString(sync.ErrorCode),
		sync.RetriedTimes,
		nullTime(sync.RunAt),
		nullTime(sync.RanAt),
		sync.CreatedAt,
		sync.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create synchronization: %w", err)
	}
	return nil
}

func (db *DB) UpdateScheduleState(ctx context.Context, id string, state models.SynchronizationState, now time.Time) error {
	query := `UPDATE synchronizations SET state = ?, updated_at = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, state, now.UTC(), id); err != nil {
		return fmt.Errorf("failed to update synchronization %s: %w", id, err)
	}
	return nil
}

// RequeueSchedule puts a synchronization back in queued with no retry pending.
func (db *DB) RequeueSchedule(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE synchronizations
              SET state = ?, error_code = NULL, retried_times = 0, run_at = NULL, updated_at = ?
              WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, models.SynchronizationStateQueued, now.UTC(), id); err != nil {
		return fmt.Errorf("failed to requeue synchronization %s: %w", id, err)
	}
	return nil
}

// FindSchedule returns nil when the synchronization does not exist.
func (db *DB) FindSchedule(ctx context.Context, id string) (*models.Synchronization, error) {
	if id == "" {
		return nil, nil
	}
	query := `SELECT ` + syncColumns + ` FROM synchronizations WHERE id = ?`
	s, err := scanSynchronization(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get synchronization %s: %w", id, err)
	}
	return s, nil
}

// MarkScheduleSuccess records a finished run and schedules the next one.
func (db *DB) MarkScheduleSuccess(ctx context.Context, id string, ranAt, runAt time.Time) error {
	query := `UPDATE synchronizations
              SET state = ?, error_code = NULL, retried_times = 0, ran_at = ?, run_at = ?, updated_at = ?
              WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.SynchronizationStateSuccess, ranAt.UTC(), runAt.UTC(), ranAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark synchronization %s success: %w", id, err)
	}
	return nil
}

// MarkScheduleFailure records a failed run. A nil runAt stops further runs.
func (db *DB) MarkScheduleFailure(ctx context.Context, id, errorCode string, retriedTimes int, ranAt time.Time, runAt *time.Time) error {
	query := `UPDATE synchronizations
              SET state = ?, error_code = ?, retried_times = ?, ran_at = ?, run_at = ?, updated_at = ?
              WHERE id = ?`
	_, err := db.ExecContext(ctx, query,
		models.SynchronizationStateFailure,
		nullString(errorCode),
		retriedTimes,
		ranAt.UTC(),
		nullTime(runAt),
		ranAt.UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark synchronization %s failure: %w", id, err)
	}
	return nil
}

// GetDueSchedules lists synchronizations that should run again: finished ones whose
// run_at passed, and ones left in created (enqueue never confirmed) before staleBefore.
// Schedules with an import still in flight are skipped. Queued schedules are never due.
func (db *DB) GetDueSchedules(ctx context.Context, now, staleBefore time.Time, limit int) ([]models.Synchronization, error) {
	query := `SELECT ` + syncColumns + `
              FROM synchronizations s
              WHERE (
                  (s.state IN (?, ?) AND s.run_at IS NOT NULL AND s.run_at <= ?)
                  OR (s.state = ? AND s.updated_at <= ?)
              )
              AND NOT EXISTS (
                  SELECT 1 FROM data_imports di
                  WHERE di.synchronization_id = s.id AND di.state IN (?, ?, ?, ?, ?)
              )
              ORDER BY s.run_at ASC, s.rowid ASC
              LIMIT ?`
	rows, err := db.QueryContext(ctx, query,
		models.SynchronizationStateSuccess, models.SynchronizationStateFailure, now.UTC(),
		models.SynchronizationStateCreated, staleBefore.UTC(),
		models.ImportStateQueued, models.ImportStatePending, models.ImportStateUnpacking,
		models.ImportStateImporting, models.ImportStateUploading,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get due synchronizations: %w", err)
	}
	defer rows.Close()

	var due []models.Synchronization
	for rows.Next() {
		s, err := scanSynchronization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan synchronization: %w", err)
		}
		due = append(due, *s)
	}
	return due, rows.Err()
}
