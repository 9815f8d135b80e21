package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/pkg/config"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

func TestStoreAlertCooldown(t *testing.T) {
	s := NewStore(config.SnapshotOff)
	cooldown := NewStoreAlertCooldown(s, 24*time.Hour)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	ok, err := cooldown.Allow(ctx, "app-1", "citizen", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cooldown.Allow(ctx, "app-1", "citizen", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "within cooldown window")

	ok, err = cooldown.Allow(ctx, "app-1", "official", now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok, "recipient kinds are tracked separately")

	ok, err = cooldown.Allow(ctx, "app-1", "citizen", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok, "window elapsed")
}

func newMiniredisCache(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client, zap.NewNop()), srv
}

func TestRedisAlertCooldown(t *testing.T) {
	cache, srv := newMiniredisCache(t)
	cooldown := NewRedisAlertCooldown(cache, "test:alerts", 24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	ok, err := cooldown.Allow(ctx, "app-1", "citizen", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cooldown.Allow(ctx, "app-1", "citizen", now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, srv.Exists("test:alerts:app-1:citizen"))

	srv.FastForward(25 * time.Hour)
	ok, err = cooldown.Allow(ctx, "app-1", "citizen", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheRepositoryGetSet(t *testing.T) {
	cache, _ := newMiniredisCache(t)
	ctx := context.Background()

	var out map[string]int
	assert.ErrorIs(t, cache.Get(ctx, "stats:admin", &out), appErrors.ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "stats:admin", map[string]int{"total": 3}, time.Minute))
	require.NoError(t, cache.Get(ctx, "stats:admin", &out))
	assert.Equal(t, 3, out["total"])

	require.NoError(t, cache.DeleteByPattern(ctx, "stats:*"))
	assert.ErrorIs(t, cache.Get(ctx, "stats:admin", &out), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	cache := NewCacheRepository(nil, nil)
	ctx := context.Background()
	var out string
	assert.False(t, cache.Enabled())
	assert.ErrorIs(t, cache.Get(ctx, "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	ok, err := cache.Reserve(ctx, "k", "v", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, cache.DeleteByPattern(ctx, "*"))
}

func TestCacheRepositoryDropsUndecodableEntry(t *testing.T) {
	cache, srv := newMiniredisCache(t)
	ctx := context.Background()
	require.NoError(t, srv.Set("stats:admin", "not-json"))

	var out map[string]int
	assert.ErrorIs(t, cache.Get(ctx, "stats:admin", &out), appErrors.ErrCacheMiss)
	assert.False(t, srv.Exists("stats:admin"))
}

func TestCacheRepositoryDeleteByPatternBatches(t *testing.T) {
	cache, srv := newMiniredisCache(t)
	ctx := context.Background()
	for i := 0; i < 250; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("stats:%d", i), i, time.Minute))
	}
	require.NoError(t, cache.Set(ctx, "other", 1, time.Minute))

	require.NoError(t, cache.DeleteByPattern(ctx, "stats:*"))
	assert.Equal(t, []string{"other"}, srv.Keys())
}
