package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// CheckoutGuard rate limits checkout endpoints per client IP with a fixed
// one-minute window in redis. It also rejects obvious bot user agents.
func (r *RateLimiter) CheckoutGuard(maxPerMinute int) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		userAgent := e.Request.Header.Get("User-Agent")
		if r.isSuspiciousUserAgent(userAgent) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		if !r.allow(e.Request.Context(), e.RealIP(), maxPerMinute) {
			return apis.NewApiError(429, "Rate limit exceeded. Please try again later.", nil)
		}

		return e.Next()
	}
}

// allow increments the caller's fixed window counter. A redis failure fails
// open: the guard is protection, not a dependency.
func (r *RateLimiter) allow(ctx context.Context, ip string, maxPerMinute int) bool {
	key := fmt.Sprintf("checkout-rate:%s", ip)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, key, time.Minute)
	}
	return count <= int64(maxPerMinute)
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
