package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dosync/internal/models"
)

const tableColumns = `id, user_id, name, data_import_id, row_count, size_bytes, created_at, updated_at`

func scanUserTable(row rowScanner) (*models.UserTable, error) {
	var (
		t            models.UserTable
		dataImportID sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &dataImportID, &t.RowCount, &t.SizeBytes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.DataImportID = dataImportID.String
	return &t, nil
}

// UpsertUserTable registers the table by (user, name). A table that already exists
// keeps its id and is relinked to the latest import.
func (db *DB) UpsertUserTable(ctx context.Context, t *models.UserTable) error {
	t.CreatedAt = nowUTC(t.CreatedAt)
	t.UpdatedAt = t.CreatedAt

	query := `INSERT INTO user_tables (` + tableColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT (user_id, name) DO UPDATE SET
                  data_import_id = excluded.data_import_id,
                  row_count = excluded.row_count,
                  size_bytes = excluded.size_bytes,
                  updated_at = excluded.updated_at
              RETURNING id`
	err := db.QueryRowContext(ctx, query,
		t.ID,
		t.UserID,
		t.Name,
		nullString(t.DataImportID),
		t.RowCount,
		t.SizeBytes,
		t.CreatedAt,
		t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert user table %s: %w", t.Name, err)
	}
	return nil
}

// FindTableByName returns nil when the user has no table with that name.
func (db *DB) FindTableByName(ctx context.Context, userID, name string) (*models.UserTable, error) {
	query := `SELECT ` + tableColumns + ` FROM user_tables WHERE user_id = ? AND name = ?`
	t, err := scanUserTable(db.QueryRowContext(ctx, query, userID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user table %s: %w", name, err)
	}
	return t, nil
}

func (db *DB) GetTable(ctx context.Context, id string) (*models.UserTable, error) {
	query := `SELECT ` + tableColumns + ` FROM user_tables WHERE id = ?`
	t, err := scanUserTable(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user table %s: %w", id, err)
	}
	return t, nil
}

// DeleteTableAndVisualization drops the table and every synchronization that imported
// into it, which stops future recurrences. Missing rows are not an error.
func (db *DB) DeleteTableAndVisualization(ctx context.Context, tableID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM synchronizations WHERE id IN (
                SELECT synchronization_id FROM data_imports WHERE table_id = ? AND synchronization_id IS NOT NULL
            )`, tableID)
		if err != nil {
			return fmt.Errorf("failed to delete synchronizations of table %s: %w", tableID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_tables WHERE id = ?`, tableID); err != nil {
			return fmt.Errorf("failed to delete user table %s: %w", tableID, err)
		}
		return nil
	})
}
