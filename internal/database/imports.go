package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dosync/internal/models"
)

const importColumns = `id, user_id, service_name, service_item_id, state, error_code, table_id, table_name,
              synchronization_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImport(row rowScanner) (*models.DataImport, error) {
	var (
		imp                                   models.DataImport
		errorCode, tableID, tableName, syncID sql.NullString
	)
	err := row.Scan(
		&imp.ID, &imp.UserID, &imp.ServiceName, &imp.ServiceItemID, &imp.State,
		&errorCode, &tableID, &tableName, &syncID, &imp.CreatedAt, &imp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	imp.ErrorCode = errorCode.String
	imp.TableID = tableID.String
	imp.TableName = tableName.String
	imp.SynchronizationID = syncID.String
	return &imp, nil
}

func (db *DB) CreateImport(ctx context.Context, imp *models.DataImport) error {
	imp.CreatedAt = nowUTC(imp.CreatedAt)
	imp.UpdatedAt = imp.CreatedAt

	query := `INSERT INTO data_imports (` + importColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		imp.ID,
		imp.UserID,
		imp.ServiceName,
		imp.ServiceItemID,
		imp.State,
		nullString(imp.ErrorCode),
		nullString(imp.TableID),
		nullString(imp.TableName),
		nullString(imp.SynchronizationID),
		imp.CreatedAt,
		imp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create data import: %w", err)
	}
	return nil
}

// GetImport returns nil when the import does not exist.
func (db *DB) GetImport(ctx context.Context, id string) (*models.DataImport, error) {
	query := `SELECT ` + importColumns + ` FROM data_imports WHERE id = ?`
	imp, err := scanImport(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data import %s: %w", id, err)
	}
	return imp, nil
}

// FindLatestImport returns the newest connector import for provider+subscription.
// Imports whose table and synchronization are both gone are ignored: the table may be
// missing while the first import runs, the synchronization after a user stopped it.
func (db *DB) FindLatestImport(ctx context.Context, userID, provider, subscriptionID string) (*models.DataImport, error) {
	query := `SELECT ` + importColumns + `
              FROM data_imports di
              WHERE di.user_id = ?
              AND di.service_name = ?
              AND json_extract(di.service_item_id, '$.provider') = ?
              AND json_extract(di.service_item_id, '$.subscription_id') = ?
              AND (
                  EXISTS (SELECT 1 FROM user_tables ut WHERE ut.id = di.table_id)
                  OR EXISTS (SELECT 1 FROM synchronizations s WHERE s.id = di.synchronization_id)
              )
              ORDER BY di.created_at DESC, di.rowid DESC
              LIMIT 1`
	row := db.QueryRowContext(ctx, query, userID, models.ServiceNameConnector, provider, subscriptionID)
	imp, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest import for %s: %w", subscriptionID, err)
	}
	return imp, nil
}

// GetQueuedImports lists imports still waiting for a worker, oldest first.
func (db *DB) GetQueuedImports(ctx context.Context, limit int) ([]models.DataImport, error) {
	query := `SELECT ` + importColumns + ` FROM data_imports WHERE state = ? ORDER BY created_at ASC, rowid ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.ImportStateQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get queued imports: %w", err)
	}
	defer rows.Close()

	var imports []models.DataImport
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data import: %w", err)
		}
		imports = append(imports, *imp)
	}
	return imports, rows.Err()
}

// ClaimImport moves a queued import to pending. It reports false when another
// worker claimed it first or the import left the queued state.
func (db *DB) ClaimImport(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE data_imports SET state = ?, updated_at = ? WHERE id = ? AND state = ?`
	res, err := db.ExecContext(ctx, query, models.ImportStatePending, nowUTC(now), id, models.ImportStateQueued)
	if err != nil {
		return false, fmt.Errorf("failed to claim data import %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim data import %s: %w", id, err)
	}
	return n == 1, nil
}

func (db *DB) UpdateImportState(ctx context.Context, id string, state models.ImportState, now time.Time) error {
	query := `UPDATE data_imports SET state = ?, updated_at = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, state, nowUTC(now), id); err != nil {
		return fmt.Errorf("failed to update data import %s: %w", id, err)
	}
	return nil
}

func (db *DB) CompleteImport(ctx context.Context, id, tableID, tableName string, now time.Time) error {
	query := `UPDATE data_imports SET state = ?, table_id = ?, table_name = ?, error_code = NULL, updated_at = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, models.ImportStateComplete, tableID, tableName, nowUTC(now), id); err != nil {
		return fmt.Errorf("failed to complete data import %s: %w", id, err)
	}
	return nil
}

func (db *DB) FailImport(ctx context.Context, id, errorCode string, now time.Time) error {
	query := `UPDATE data_imports SET state = ?, error_code = ?, updated_at = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, models.ImportStateFailure, nullString(errorCode), nowUTC(now), id); err != nil {
		return fmt.Errorf("failed to fail data import %s: %w", id, err)
	}
	return nil
}
