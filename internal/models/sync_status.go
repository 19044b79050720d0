package models

type SyncState string

const (
	SyncStateUnsyncable SyncState = "unsyncable"
	SyncStateUnsynced   SyncState = "unsynced"
	SyncStateSyncing    SyncState = "syncing"
	SyncStateSynced     SyncState = "synced"
)

// SyncStatus is the derived, user-facing state of a subscription sync.
// It is recomputed on every query and never stored.
type SyncStatus struct {
	Status            SyncState `json:"status"`
	UnsyncableReason  string    `json:"unsyncableReason,omitempty"`
	EstimatedSize     *int64    `json:"estimatedSize,omitempty"`
	EstimatedRowCount *int64    `json:"estimatedRowCount,omitempty"`
	SyncTable         string    `json:"syncTable,omitempty"`
	SyncTableID       string    `json:"syncTableId,omitempty"`
	SynchronizationID string    `json:"synchronizationId,omitempty"`
	UnsyncedErrors    []string  `json:"unsyncedErrors,omitempty"`
}

// HasErrors reports whether a previous import attempt failed.
func (s *SyncStatus) HasErrors() bool {
	return len(s.UnsyncedErrors) > 0
}
