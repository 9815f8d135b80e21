package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

// unlinkBatch bounds how many keys one UNLINK call carries during invalidation.
const unlinkBatch = 100

// CacheRepository is the Redis side of the tracker: JSON payloads for the
// dashboard cache and TTL'd reservations for delay alert cooldowns.
// A repository without a client misses every read and accepts every reservation.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository. client may be nil.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Enabled reports whether a Redis client is attached.
func (r *CacheRepository) Enabled() bool {
	return r != nil && r.client != nil
}

// Get decodes the JSON stored under key into dest. Absent keys yield ErrCacheMiss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if !r.Enabled() {
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
		// A payload written by an older build is treated as absent and dropped.
		r.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = r.client.Del(ctx, key).Err()
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value as JSON under key for ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !r.Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Reserve claims key for ttl unless someone already holds it. The boolean is
// true when this call made the claim.
func (r *CacheRepository) Reserve(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	if !r.Enabled() {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis reserve %s: %w", key, err)
	}
	return ok, nil
}

// DeleteByPattern unlinks every key matching pattern. Keys are collected
// before anything is removed since deleting under a live SCAN cursor can skip
// entries.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if !r.Enabled() {
		return nil
	}
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, unlinkBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}

	removed := 0
	for start := 0; start < len(keys); start += unlinkBatch {
		end := start + unlinkBatch
		if end > len(keys) {
			end = len(keys)
		}
		n, err := r.client.Unlink(ctx, keys[start:end]...).Result()
		if err != nil {
			return fmt.Errorf("redis unlink %d keys: %w", end-start, err)
		}
		removed += int(n)
	}
	r.logger.Debug("cache invalidated", zap.String("pattern", pattern), zap.Int("keys", removed))
	return nil
}
