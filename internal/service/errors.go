package service

import "errors"

var (
	// ErrSyncInProgress rejects removal while an import is running; the worker
	// pool cannot cancel jobs.
	ErrSyncInProgress = errors.New("cannot remove sync while syncing")

	// ErrInvalidSubscriptionID is returned for ids that are not project.dataset.table.
	ErrInvalidSubscriptionID = errors.New("invalid subscription id")
)
