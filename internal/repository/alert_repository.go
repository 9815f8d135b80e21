package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/civic-tracker-api/internal/models"
)

// AlertCooldown decides whether a delay alert for (application, recipient kind)
// may be sent at now. A true result reserves the slot for the cooldown window.
type AlertCooldown interface {
	Allow(ctx context.Context, applicationID, kind string, now time.Time) (bool, error)
}

// StoreAlertCooldown keeps the cooldown ledger in the entity store so it
// survives restarts through the regular snapshot.
type StoreAlertCooldown struct {
	store  *Store
	window time.Duration
}

// NewStoreAlertCooldown constructs the in-memory ledger backend.
func NewStoreAlertCooldown(store *Store, window time.Duration) *StoreAlertCooldown {
	return &StoreAlertCooldown{store: store, window: window}
}

// Allow implements AlertCooldown. It must not be called inside a unit of work.
func (c *StoreAlertCooldown) Allow(ctx context.Context, applicationID, kind string, now time.Time) (bool, error) {
	allowed := false
	err := c.store.WithinTx(ctx, func(r Repos) error {
		last, err := r.DelayAlerts.Get(ctx, applicationID, kind)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if last != nil && now.Sub(last.LastNotifiedAt) < c.window {
			return nil
		}
		allowed = true
		return r.DelayAlerts.Upsert(ctx, &models.DelayAlert{
			ApplicationID:  applicationID,
			Kind:           kind,
			LastNotifiedAt: now,
		})
	})
	if err != nil {
		return false, fmt.Errorf("delay alert ledger: %w", err)
	}
	return allowed, nil
}

// RedisAlertCooldown reserves alert slots with SET NX and a TTL equal to the window.
type RedisAlertCooldown struct {
	cache     *CacheRepository
	namespace string
	window    time.Duration
}

// NewRedisAlertCooldown constructs the Redis backend.
func NewRedisAlertCooldown(cache *CacheRepository, namespace string, window time.Duration) *RedisAlertCooldown {
	if namespace == "" {
		namespace = "tracker:delay-alert"
	}
	return &RedisAlertCooldown{cache: cache, namespace: namespace, window: window}
}

// Allow implements AlertCooldown.
func (c *RedisAlertCooldown) Allow(ctx context.Context, applicationID, kind string, now time.Time) (bool, error) {
	key := fmt.Sprintf("%s:%s:%s", c.namespace, applicationID, kind)
	return c.cache.Reserve(ctx, key, now.UTC().Format(time.RFC3339), c.window)
}
