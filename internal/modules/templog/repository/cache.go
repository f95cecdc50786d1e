package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"templog-server/internal/modules/templog/types"
)

const (
	cacheKeyPrefix     = "templog:records"
	cacheGenerationKey = cacheKeyPrefix + ":generation"
)

// CachedRepository serves range queries from Redis when possible. Keys carry
// a generation number that every successful Insert bumps, so a cached range
// never hides a newer record. Redis failures fall through to the wrapped
// repository. While a bump is owed, reads skip the cache.
type CachedRepository struct {
	next   TemperatureRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	stale  atomic.Bool
}

func NewCachedRepository(next TemperatureRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{next: next, client: client, ttl: ttl, logger: logger}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func rangeKey(generation int64, low, high int) string {
	return fmt.Sprintf("%s:g%d:%d:%d", cacheKeyPrefix, generation, low, high)
}

func (c *CachedRepository) Insert(ctx context.Context, record types.Record) (types.RecordID, error) {
	id, err := c.next.Insert(ctx, record)
	if err != nil {
		return 0, err
	}
	if err := c.client.Incr(ctx, cacheGenerationKey).Err(); err != nil {
		c.stale.Store(true)
		c.logger.Warn("cache generation bump failed, bypassing cache", "error", err)
	}
	return id, nil
}

// retryBump reports whether the cache may be read. A failed retry leaves the
// cache marked stale.
func (c *CachedRepository) retryBump(ctx context.Context) bool {
	if !c.stale.CompareAndSwap(true, false) {
		return true
	}
	if err := c.client.Incr(ctx, cacheGenerationKey).Err(); err != nil {
		c.stale.Store(true)
		return false
	}
	return true
}

func (c *CachedRepository) QueryByTempRange(ctx context.Context, low int, high int) ([]types.Record, error) {
	if !c.retryBump(ctx) {
		return c.next.QueryByTempRange(ctx, low, high)
	}
	generation, err := c.client.Get(ctx, cacheGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache generation read failed", "error", err)
		return c.next.QueryByTempRange(ctx, low, high)
	}

	key := rangeKey(generation, low, high)
	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var records []types.Record
		if err := json.Unmarshal(cached, &records); err == nil {
			c.logger.Debug("cache hit", "key", key, "count", len(records))
			return records, nil
		}
		c.logger.Warn("cache entry corrupt", "key", key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}

	records, err := c.next.QueryByTempRange(ctx, low, high)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return records, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return records, nil
}

func (c *CachedRepository) Ping(ctx context.Context) error {
	return c.next.Ping(ctx)
}

// Close closes the wrapped repository and the Redis client.
func (c *CachedRepository) Close() error {
	err := c.next.Close()
	if closeErr := c.client.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
