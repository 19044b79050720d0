package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dosync/internal/config"

	"github.com/redis/go-redis/v9"
)

// DefaultBlockTimeout bounds how long a dequeue waits on an empty list.
const DefaultBlockTimeout = time.Second

type RedisJobQueue struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisJobQueue(client *redis.Client, key string, blockTimeout time.Duration) *RedisJobQueue {
	if blockTimeout <= 0 {
		blockTimeout = DefaultBlockTimeout
	}
	return &RedisJobQueue{
		client:       client,
		key:          key,
		blockTimeout: blockTimeout,
	}
}

func (q *RedisJobQueue) EnqueueImport(ctx context.Context, jobID string) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue import %s: %w", jobID, err)
	}
	return nil
}

// DequeueImport pops the oldest job, waiting up to the block timeout.
func (q *RedisJobQueue) DequeueImport(ctx context.Context) (string, bool, error) {
	if q.client == nil {
		return "", false, fmt.Errorf("redis client is nil")
	}
	res, err := q.client.BRPop(ctx, q.blockTimeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to dequeue import: %w", err)
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return "", false, fmt.Errorf("unexpected BRPOP reply: %v", res)
	}
	return res[1], true, nil
}

func (q *RedisJobQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
