package domain

import (
	"context"
	"time"

	"dosync/internal/models"
)

// CatalogClient reads subscription metadata from the external data catalog.
type CatalogClient interface {
	// GetSubscription returns nil without error when the user has no such subscription.
	GetSubscription(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error)
	// GetDatasetGeographyID returns "" when the dataset links no geography.
	GetDatasetGeographyID(ctx context.Context, datasetID string) (string, error)
}

type StorageStatsClient interface {
	GetTableStats(ctx context.Context, viewName string) (*models.TableStats, error)
}

type ImportRecordStore interface {
	// FindLatestImport returns the most recent connector import for the subscription
	// whose table or synchronization still exists, or nil.
	FindLatestImport(ctx context.Context, userID, provider, subscriptionID string) (*models.DataImport, error)
	CreateImport(ctx context.Context, imp *models.DataImport) error
	GetImport(ctx context.Context, id string) (*models.DataImport, error)
}

type SynchronizationScheduler interface {
	CreateSchedule(ctx context.Context, sync *models.Synchronization) error
	UpdateScheduleState(ctx context.Context, id string, state models.SynchronizationState, now time.Time) error
	// RequeueSchedule marks an existing synchronization queued for a fresh run,
	// clearing its pending retry and retry count.
	RequeueSchedule(ctx context.Context, id string, now time.Time) error
	FindSchedule(ctx context.Context, id string) (*models.Synchronization, error)
}

// WorkerQueue hands import jobs to the asynchronous worker pool.
type WorkerQueue interface {
	EnqueueImport(ctx context.Context, jobID string) error
}

// JobQueue is the consuming side of WorkerQueue used by the worker pool.
type JobQueue interface {
	WorkerQueue
	// DequeueImport returns ok=false when no job arrived before the call gave up.
	DequeueImport(ctx context.Context) (jobID string, ok bool, err error)
}

type TableRegistry interface {
	FindTableByName(ctx context.Context, userID, name string) (*models.UserTable, error)
	// DeleteTableAndVisualization removes the table and the synchronization that feeds it.
	DeleteTableAndVisualization(ctx context.Context, tableID string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
