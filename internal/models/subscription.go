package models

import (
	"strings"
	"time"
)

type SubscriptionType string

const (
	SubscriptionTypeDataset   SubscriptionType = "dataset"
	SubscriptionTypeGeography SubscriptionType = "geography"
)

// Subscription is a user's access grant to one catalog dataset or geography.
// It is owned by the external catalog and only read here.
type Subscription struct {
	ID        string           `json:"id"`
	Type      SubscriptionType `json:"type"`
	ExpiresAt time.Time        `json:"expires_at"`
	Project   string           `json:"project"`
	Dataset   string           `json:"dataset"`
	Table     string           `json:"table"`
}

// Expired reports whether the subscription is no longer syncable at now.
func (s *Subscription) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// SplitCatalogID splits a `project.dataset.table` identifier.
func SplitCatalogID(id string) (project, dataset, table string, ok bool) {
	parts := strings.Split(id, ".")
	if len(parts) != 3 {
		return "", "", "", false
	}
	for _, p := range parts {
		if p == "" {
			return "", "", "", false
		}
	}
	return parts[0], parts[1], parts[2], true
}

// SubscriptionViews holds the fully-qualified view names backing a subscription.
// Empty strings mean the view is absent.
type SubscriptionViews struct {
	Data      string `json:"data,omitempty"`
	Geography string `json:"geography,omitempty"`
}

// TableStats are the storage-engine statistics of one table or view.
type TableStats struct {
	NumBytes   int64
	NumRows    *int64
	NumColumns int
}
