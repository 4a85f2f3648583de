package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached listings.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Listing entries live under "<key>:v<generation>". Invalidate bumps the
// generation, so a load that raced a write can only refill a retired key.
func generationKey(key string) string { return key + ":gen" }

func versionedKey(key string, gen int64) string {
	return key + ":v" + strconv.FormatInt(gen, 10)
}

// CacheService wraps the read-through listing cache and its metrics. A nil or
// disabled service always misses.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService wires the listing cache. enabled=false turns every call into a miss.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled reports whether reads and writes reach the backend.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports a hit. Backend failures count as misses.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("listing cache read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Set writes value under key. A zero ttl uses the configured default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("listing cache write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate retires the listing stored under key by bumping its generation,
// then drops the retired entries. Failures are only logged.
func (s *CacheService) Invalidate(ctx context.Context, key string) {
	if !s.Enabled() {
		return
	}
	if _, err := s.repo.Incr(ctx, generationKey(key)); err != nil {
		s.logger.Warn("listing cache generation bump failed", zap.String("key", key), zap.Error(err))
	}
	if err := s.repo.DeleteByPattern(ctx, key+":v*"); err != nil {
		s.logger.Warn("listing cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

// generation reads the current generation of key. A missing counter is zero.
func (s *CacheService) generation(ctx context.Context, key string) (int64, error) {
	var gen int64
	err := s.repo.Get(ctx, generationKey(key), &gen)
	if errors.Is(err, appErrors.ErrCacheMiss) {
		return 0, nil
	}
	return gen, err
}

// Remember returns the listing cached under key, or loads and caches it.
// When the generation cannot be read the cache is bypassed.
func Remember[T any](ctx context.Context, cache *CacheService, key string, load func(context.Context) (T, error)) (T, error) {
	if !cache.Enabled() {
		return load(ctx)
	}
	gen, err := cache.generation(ctx, key)
	if err != nil {
		cache.logger.Warn("listing cache generation read failed", zap.String("key", key), zap.Error(err))
		return load(ctx)
	}
	entry := versionedKey(key, gen)

	var cached T
	if hit, _ := cache.Get(ctx, entry, &cached); hit {
		return cached, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	_ = cache.Set(ctx, entry, value, 0)
	return value, nil
}
