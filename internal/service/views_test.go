package service

import (
	"context"
	"testing"

	"dosync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestViewName(t *testing.T) {
	assert.Equal(t, "cfgProj.cfgDs.view_ds_tbl", ViewName("cfgProj", "cfgDs", "ds", "tbl"))
}

func TestDataViewNamer(t *testing.T) {
	namer := DataViewNamer(testSyncConfig())

	view, ok := namer("proj.ds.tbl")
	assert.True(t, ok)
	assert.Equal(t, dataView, view)

	_, ok = namer("proj.ds")
	assert.False(t, ok)
}

func TestSubscriptionViews(t *testing.T) {
	ctx := context.Background()

	t.Run("DatasetWithoutGeography", func(t *testing.T) {
		f := newFixture()
		f.catalog.On("GetSubscription", mock.Anything, testUser, testSub).Return(datasetSubscription(), nil)
		f.catalog.On("GetDatasetGeographyID", mock.Anything, testSub).Return("", nil)

		views, err := f.svc.SubscriptionViews(ctx, testSub)
		require.NoError(t, err)
		require.NotNil(t, views)
		assert.Equal(t, models.SubscriptionViews{Data: "cfgProj.cfgDs.view_ds_tbl"}, *views)
	})

	t.Run("DatasetWithGeography", func(t *testing.T) {
		f := newFixture()
		f.catalog.On("GetSubscription", mock.Anything, testUser, testSub).Return(datasetSubscription(), nil)
		f.catalog.On("GetDatasetGeographyID", mock.Anything, testSub).Return("carto.geo.blocks", nil)

		views, err := f.svc.SubscriptionViews(ctx, testSub)
		require.NoError(t, err)
		assert.Equal(t, "cfgProj.cfgDs.view_ds_tbl", views.Data)
		assert.Equal(t, "cfgProj.cfgDs.view_geo_blocks", views.Geography)
	})

	t.Run("MalformedGeographyID", func(t *testing.T) {
		f := newFixture()
		f.catalog.On("GetSubscription", mock.Anything, testUser, testSub).Return(datasetSubscription(), nil)
		f.catalog.On("GetDatasetGeographyID", mock.Anything, testSub).Return("blocks", nil)

		views, err := f.svc.SubscriptionViews(ctx, testSub)
		require.NoError(t, err)
		assert.Empty(t, views.Geography)
	})

	t.Run("Geography", func(t *testing.T) {
		f := newFixture()
		sub := &models.Subscription{ID: "carto.geo.blocks", Type: models.SubscriptionTypeGeography, Dataset: "geo", Table: "blocks"}
		f.catalog.On("GetSubscription", mock.Anything, testUser, "carto.geo.blocks").Return(sub, nil)

		views, err := f.svc.SubscriptionViews(ctx, "carto.geo.blocks")
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionViews{Geography: "cfgProj.cfgDs.view_geo_blocks"}, *views)
	})

	t.Run("Absent", func(t *testing.T) {
		f := newFixture()
		f.catalog.On("GetSubscription", mock.Anything, testUser, "proj.ds.none").Return(nil, nil)

		views, err := f.svc.SubscriptionViews(ctx, "proj.ds.none")
		require.NoError(t, err)
		assert.Nil(t, views)
	})

	t.Run("UnknownType", func(t *testing.T) {
		f := newFixture()
		sub := datasetSubscription()
		sub.Type = "raster"
		f.catalog.On("GetSubscription", mock.Anything, testUser, testSub).Return(sub, nil)

		views, err := f.svc.SubscriptionViews(ctx, testSub)
		require.NoError(t, err)
		assert.Nil(t, views)
	})
}
