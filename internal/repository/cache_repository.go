package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
)

const scanBatch = 100

// CacheRepository keeps JSON snapshots of listing pages in Redis. Without a
// client every read misses and every write is dropped.
type CacheRepository struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewCacheRepository wraps client. Both arguments may be nil.
func NewCacheRepository(client redis.UniversalClient, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

func (r *CacheRepository) enabled() bool { return r.client != nil }

// Get decodes the entry at key into dest. Entries that no longer decode are
// evicted and reported as a miss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if !r.enabled() {
		return appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("evicting undecodable cache entry", zap.String("key", key), zap.Error(err))
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			r.logger.Debug("evict cache entry", zap.String("key", key), zap.Error(delErr))
		}
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value as JSON for ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !r.enabled() {
		return nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return wrapRedis("set", key, r.client.Set(ctx, key, encoded, ttl).Err())
}

// DeleteByPattern walks the keyspace with SCAN and unlinks matches one batch
// at a time.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if !r.enabled() {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return wrapRedis("scan", pattern, err)
		}
		if len(keys) > 0 {
			if err := r.client.Unlink(ctx, keys...).Err(); err != nil {
				return wrapRedis("unlink", pattern, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Incr atomically increments the counter at key. Without a client it is a no-op.
func (r *CacheRepository) Incr(ctx context.Context, key string) (int64, error) {
	if !r.enabled() {
		return 0, nil
	}
	n, err := r.client.Incr(ctx, key).Result()
	return n, wrapRedis("incr", key, err)
}

// Ping reports whether Redis answers.
func (r *CacheRepository) Ping(ctx context.Context) error {
	if !r.enabled() {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the client, if any.
func (r *CacheRepository) Close() error {
	if !r.enabled() {
		return nil
	}
	return r.client.Close()
}

func wrapRedis(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("redis %s %s: %w", op, key, err)
}
