package models

import "time"

type SynchronizationState string

const (
	SynchronizationStateCreated SynchronizationState = "created"
	SynchronizationStateQueued  SynchronizationState = "queued"
	SynchronizationStateSyncing SynchronizationState = "syncing"
	SynchronizationStateSuccess SynchronizationState = "success"
	SynchronizationStateFailure SynchronizationState = "failure"
)

// Synchronization is the recurring-sync definition linking a user and a
// connector payload to a recurrence interval.
type Synchronization struct {
	ID            string               `json:"id"`
	UserID        string               `json:"user_id"`
	ServiceName   string               `json:"service_name"`
	ServiceItemID string               `json:"service_item_id"`
	Interval      time.Duration        `json:"interval"`
	State         SynchronizationState `json:"state"`
	ErrorCode     string               `json:"error_code,omitempty"`
	RetriedTimes  int                  `json:"retried_times"`
	RunAt         *time.Time           `json:"run_at,omitempty"`
	RanAt         *time.Time           `json:"ran_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// UserTable is a table materialized in the user's workspace.
type UserTable struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	DataImportID string    `json:"data_import_id,omitempty"`
	RowCount     int64     `json:"row_count"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
