package main

import (
	"context"
	"fmt"
	"io"

	"dosync/internal/bigquery"
	"dosync/internal/catalog"
	"dosync/internal/config"
	"dosync/internal/database"
	"dosync/internal/domain"
	"dosync/internal/events"
	"dosync/internal/logging"
	"dosync/internal/queue"
	"dosync/internal/service"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	db          *database.DB
	redisClient *redis.Client
	queue       domain.JobQueue
	catalog     *catalog.Client
	stats       *bigquery.StatsClient
	bus         *events.EventBus
	clock       clockwork.Clock
	closers     []io.Closer
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, logger, closer, err := loadConfigAndLogger(opts.configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, clock: clockwork.NewRealClock()}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.db, err = database.NewDB(cfg.Database.Path, &a.logger)
	if err != nil {
		a.logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.db)

	a.redisClient = initRedis(ctx, cfg, &a.logger)
	if a.redisClient != nil {
		a.closers = append(a.closers, a.redisClient)
	}
	a.queue = initQueue(cfg, a.redisClient, a.clock, &a.logger)

	a.catalog = catalog.NewClient(cfg.Catalog, &a.logger)

	a.stats, err = bigquery.NewStatsClient(ctx, cfg.BigQuery, &a.logger)
	if err != nil {
		a.logger.Error().Err(err).Msg("init bigquery stats client")
		a.Close()
		return nil, err
	}

	a.bus = events.NewEventBus()
	eventLogger := logging.Component(&a.logger, "events")
	a.bus.Subscribe(events.EventSyncCreated, events.LogHandler(eventLogger))
	a.bus.Subscribe(events.EventSyncRemoved, events.LogHandler(eventLogger))

	return a, nil
}

func (a *app) service(userID string) *service.DoSyncService {
	return service.NewDoSyncService(userID, service.Dependencies{
		Catalog:   a.catalog,
		Stats:     a.stats,
		Imports:   a.db,
		Schedules: a.db,
		Queue:     a.queue,
		Tables:    a.db,
		Events:    a.bus,
	}, a.cfg.Sync, a.clock, &a.logger)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

func loadConfigAndLogger(configPath string) (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, *baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := queue.NewRedisClient(cfg.Redis)
	if err := queue.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initQueue prefers Redis and keeps an in-memory queue behind it for outages.
// Jobs that never reach a queue are still picked up by database polling.
func initQueue(cfg *config.Config, redisClient *redis.Client, clock clockwork.Clock, logger *zerolog.Logger) domain.JobQueue {
	memory := queue.NewMemoryJobQueue(0, queue.DefaultBlockTimeout, clock)
	if redisClient == nil {
		return memory
	}

	primary := queue.NewRedisJobQueue(redisClient, cfg.Redis.QueueKey, queue.DefaultBlockTimeout)
	return queue.NewFailoverJobQueue(primary, memory, clock, logging.Component(logger, "queue"))
}
