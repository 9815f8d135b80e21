package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

// cacheNamespace prefixes every key the service writes so the tracker can
// share a Redis database with the alert cooldown keys.
const cacheNamespace = "tracker:cache:"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService is a read-through cache for computed dashboard payloads.
// A nil or disabled service computes every value and never stores it.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service. ttl defaults to one minute.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Key returns the namespaced storage key for name.
func (s *CacheService) Key(name string) string {
	return cacheNamespace + name
}

// Forget drops name and everything under "name:".
func (s *CacheService) Forget(ctx context.Context, name string) error {
	if !s.Enabled() {
		return nil
	}
	for _, pattern := range []string{s.Key(name), s.Key(name) + ":*"} {
		if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Warn("cache forget failed", zap.String("pattern", pattern), zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *CacheService) lookup(ctx context.Context, name string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, s.Key(name), dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache read failed", zap.String("key", name), zap.Error(err))
	}
	return err == nil
}

func (s *CacheService) store(ctx context.Context, name string, value interface{}) {
	if !s.Enabled() {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, s.Key(name), value, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("key", name), zap.Error(err))
	}
}

// Remember returns the cached value for name, or runs load and caches its
// result. Cache faults never fail the call; only load errors are returned.
// The boolean reports whether the value came from the cache.
func Remember[T any](ctx context.Context, s *CacheService, name string, load func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	if s.lookup(ctx, name, &cached) {
		return cached, true, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, false, err
	}
	s.store(ctx, name, value)
	return value, false, nil
}
