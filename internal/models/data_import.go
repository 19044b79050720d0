package models

import "time"

type ImportState string

const (
	ImportStateQueued    ImportState = "queued"
	ImportStatePending   ImportState = "pending"
	ImportStateUnpacking ImportState = "unpacking"
	ImportStateImporting ImportState = "importing"
	ImportStateUploading ImportState = "uploading"
	ImportStateComplete  ImportState = "complete"
	ImportStateFailure   ImportState = "failure"
)

// ServiceNameConnector marks imports and synchronizations driven by a connector payload.
const ServiceNameConnector = "connector"

// ErrorCodeUnknown is reported for failed imports that recorded no error code.
const ErrorCodeUnknown = "unknown"

// InProgress reports whether the import is still being worked on by the pool.
func (s ImportState) InProgress() bool {
	switch s {
	case ImportStateQueued, ImportStatePending, ImportStateUnpacking, ImportStateImporting, ImportStateUploading:
		return true
	}
	return false
}

// DataImport is one execution attempt of the import worker pool.
type DataImport struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	ServiceName       string      `json:"service_name"`
	ServiceItemID     string      `json:"service_item_id"`
	State             ImportState `json:"state"`
	ErrorCode         string      `json:"error_code,omitempty"`
	TableID           string      `json:"table_id,omitempty"`
	TableName         string      `json:"table_name,omitempty"`
	SynchronizationID string      `json:"synchronization_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
