package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/civic-tracker-api/pkg/config"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
	"github.com/noah-isme/civic-tracker-api/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	idle     time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewRateLimiter builds a limiter from configuration. A non-positive rate
// disables limiting.
func NewRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	idle := cfg.CleanupInterval
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		idle:     idle,
		logger:   logger,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil || rl.rate <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Handler rejects clients over their budget with 429.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !rl.Allow(key) {
			rl.logger.Warn("rate limit exceeded",
				zap.String("ip", key),
				zap.String("path", c.Request.URL.Path),
			)
			c.Header("Retry-After", "1")
			response.Abort(c, appErrors.Clone(appErrors.ErrRateLimited, "Too many requests, please try again later"))
			return
		}
		c.Next()
	}
}

// Cleanup drops visitors idle for longer than the cleanup interval.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idle)
	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.idle)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rl.Cleanup(); n > 0 {
					rl.logger.Debug("rate limiter visitors evicted", zap.Int("count", n))
				}
			}
		}
	}()
}
