package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter hands out a token bucket per client key. Each bucket allows
// limit requests per period with a burst of limit.
type RateLimiter struct {
	limit    int
	period   time.Duration
	every    rate.Limit
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limit:    limit,
		period:   period,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
	if limit > 0 && period > 0 {
		rl.every = rate.Every(period / time.Duration(limit))
	}
	return rl
}

// Allow takes a token for key. A non-positive limit disables limiting.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 || rl.period <= 0 {
		return true
	}

	rl.mu.Lock()
	now := rl.now()
	limiter, exists := rl.limiters[key]
	if !exists {
		rl.evict(now)
		limiter = rate.NewLimiter(rl.every, rl.limit)
		rl.limiters[key] = limiter
	}
	rl.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// evict drops idle buckets once the map grows large. A bucket that has
// refilled completely carries no state worth keeping.
func (rl *RateLimiter) evict(now time.Time) {
	if len(rl.limiters) < 1024 {
		return
	}
	for key, limiter := range rl.limiters {
		if limiter.TokensAt(now) >= float64(rl.limit) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) retryAfter() float64 {
	if rl.limit <= 0 {
		return 0
	}
	return (rl.period / time.Duration(rl.limit)).Seconds()
}

func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": limiter.retryAfter(),
			})
			return
		}
		c.Next()
	}
}
