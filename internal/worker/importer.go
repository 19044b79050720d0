package worker

import (
	"context"
	"errors"
	"fmt"

	"dosync/internal/domain"
	"dosync/internal/models"
)

const (
	ErrorCodeInvalidPayload      = "invalid_payload"
	ErrorCodeInvalidSubscription = "invalid_subscription"
	ErrorCodeStatsUnavailable    = "stats_unavailable"
)

// ImportJob is a claimed import with its decoded connector payload.
type ImportJob struct {
	Import  models.DataImport
	Payload models.ConnectorPayload
}

type ImportResult struct {
	RowCount  int64
	SizeBytes int64
}

// Importer materializes a subscription into the user's table.
type Importer interface {
	Import(ctx context.Context, job ImportJob) (*ImportResult, error)
}

// ImportError carries the error code recorded on the failed import.
type ImportError struct {
	Code string
	Err  error
}

func (e *ImportError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func errorCode(err error) string {
	var importErr *ImportError
	if errors.As(err, &importErr) && importErr.Code != "" {
		return importErr.Code
	}
	return models.ErrorCodeUnknown
}

// ViewNamer maps a subscription id to its data view, false when it has none.
type ViewNamer func(subscriptionID string) (string, bool)

// StatsImporter records the data view's size and row count on the user table.
type StatsImporter struct {
	stats    domain.StorageStatsClient
	viewName ViewNamer
}

func NewStatsImporter(stats domain.StorageStatsClient, viewName ViewNamer) *StatsImporter {
	return &StatsImporter{stats: stats, viewName: viewName}
}

func (i *StatsImporter) Import(ctx context.Context, job ImportJob) (*ImportResult, error) {
	view, ok := i.viewName(job.Payload.SubscriptionID)
	if !ok {
		return nil, &ImportError{Code: ErrorCodeInvalidSubscription}
	}

	stats, err := i.stats.GetTableStats(ctx, view)
	if err != nil {
		return nil, &ImportError{Code: ErrorCodeStatsUnavailable, Err: err}
	}

	result := &ImportResult{SizeBytes: stats.NumBytes}
	if stats.NumRows != nil {
		result.RowCount = *stats.NumRows
	}
	return result, nil
}
