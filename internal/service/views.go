package service

import (
	"context"
	"fmt"
	"strings"

	"dosync/internal/config"
	"dosync/internal/models"
)

// ViewName builds {project}.{dataset}.view_{subscribedDataset}_{subscribedTable}.
func ViewName(project, dataset, subscribedDataset, subscribedTable string) string {
	return strings.Join([]string{project, dataset, "view_" + subscribedDataset + "_" + subscribedTable}, ".")
}

// DataViewNamer maps a qualified subscription id to its view in the configured
// views dataset.
func DataViewNamer(cfg config.SyncConfig) func(subscriptionID string) (string, bool) {
	return func(subscriptionID string) (string, bool) {
		_, dataset, table, ok := models.SplitCatalogID(subscriptionID)
		if !ok {
			return "", false
		}
		return ViewName(cfg.ViewsProject, cfg.ViewsDataset, dataset, table), true
	}
}

func (s *DoSyncService) viewFor(dataset, table string) string {
	if dataset == "" || table == "" {
		return ""
	}
	return ViewName(s.cfg.ViewsProject, s.cfg.ViewsDataset, dataset, table)
}

// resolveViews returns nil when the subscription is absent or lacks the
// identifiers its type needs.
func (s *DoSyncService) resolveViews(ctx context.Context, sub *models.Subscription) (*models.SubscriptionViews, error) {
	if sub == nil {
		return nil, nil
	}

	var views models.SubscriptionViews
	switch sub.Type {
	case models.SubscriptionTypeDataset:
		views.Data = s.viewFor(sub.Dataset, sub.Table)
		if views.Data == "" {
			return nil, nil
		}
		geographyID, err := s.catalog.GetDatasetGeographyID(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get geography of %s: %w", sub.ID, err)
		}
		if geographyID != "" {
			if _, dataset, table, ok := models.SplitCatalogID(geographyID); ok {
				views.Geography = s.viewFor(dataset, table)
			}
		}
	case models.SubscriptionTypeGeography:
		views.Geography = s.viewFor(sub.Dataset, sub.Table)
		if views.Geography == "" {
			return nil, nil
		}
	default:
		return nil, nil
	}
	return &views, nil
}

// SubscriptionViews resolves the storage views of one of the user's subscriptions.
func (s *DoSyncService) SubscriptionViews(ctx context.Context, subscriptionID string) (*models.SubscriptionViews, error) {
	sub, err := s.catalog.GetSubscription(ctx, s.userID, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", subscriptionID, err)
	}
	return s.resolveViews(ctx, sub)
}
