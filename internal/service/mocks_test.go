package service

import (
	"context"
	"time"

	"dosync/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetSubscription(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	args := m.Called(ctx, userID, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *mockCatalog) GetDatasetGeographyID(ctx context.Context, datasetID string) (string, error) {
	args := m.Called(ctx, datasetID)
	return args.String(0), args.Error(1)
}

type mockStats struct {
	mock.Mock
}

func (m *mockStats) GetTableStats(ctx context.Context, viewName string) (*models.TableStats, error) {
	args := m.Called(ctx, viewName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TableStats), args.Error(1)
}

type mockImports struct {
	mock.Mock
}

func (m *mockImports) FindLatestImport(ctx context.Context, userID, provider, subscriptionID string) (*models.DataImport, error) {
	args := m.Called(ctx, userID, provider, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DataImport), args.Error(1)
}

func (m *mockImports) CreateImport(ctx context.Context, imp *models.DataImport) error {
	return m.Called(ctx, imp).Error(0)
}

func (m *mockImports) GetImport(ctx context.Context, id string) (*models.DataImport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DataImport), args.Error(1)
}

type mockSchedules struct {
	mock.Mock
}

func (m *mockSchedules) CreateSchedule(ctx context.Context, sync *models.Synchronization) error {
	return m.Called(ctx, sync).Error(0)
}

func (m *mockSchedules) UpdateScheduleState(ctx context.Context, id string, state models.SynchronizationState, now time.Time) error {
	return m.Called(ctx, id, state, now).Error(0)
}

func (m *mockSchedules) RequeueSchedule(ctx context.Context, id string, now time.Time) error {
	return m.Called(ctx, id, now).Error(0)
}

func (m *mockSchedules) FindSchedule(ctx context.Context, id string) (*models.Synchronization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Synchronization), args.Error(1)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) EnqueueImport(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

type mockTables struct {
	mock.Mock
}

func (m *mockTables) FindTableByName(ctx context.Context, userID, name string) (*models.UserTable, error) {
	args := m.Called(ctx, userID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserTable), args.Error(1)
}

func (m *mockTables) DeleteTableAndVisualization(ctx context.Context, tableID string) error {
	return m.Called(ctx, tableID).Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}
