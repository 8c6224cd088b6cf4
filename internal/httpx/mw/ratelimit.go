package mw

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"visitor-beacon-api/internal/httpx/kit"
	"visitor-beacon-api/internal/logx"
)

var mwLogger = logx.GetScope("mw")

var incrScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
return current`)

// RateLimitByIP limits requests per client IP (as resolved from proxy
// headers) to limit per windowSec. With a Redis client the window is shared
// across instances; otherwise Fiber's in-memory limiter is used. Redis
// errors fail open.
func RateLimitByIP(rdb redis.Scripter, windowSec int, limit int) fiber.Handler {
	windowSec = lo.Ternary(windowSec > 0, windowSec, 60)
	if limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	keyFn := func(c *fiber.Ctx) string { return "ip:" + kit.ClientIP(c) }

	if rdb == nil {
		return limiter.New(limiter.Config{
			Max:          limit,
			Expiration:   time.Duration(windowSec) * time.Second,
			KeyGenerator: keyFn,
			LimitReached: func(c *fiber.Ctx) error {
				c.Set(fiber.HeaderRetryAfter, fmt.Sprint(windowSec))
				return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
			},
		})
	}
	return func(c *fiber.Ctx) error {
		key := "rl:" + keyFn(c)
		ctx, cancel := context.WithTimeout(c.Context(), 200*time.Millisecond)
		defer cancel()
		ttlMs := int64(windowSec) * 1000
		n, err := incrScript.Run(ctx, rdb, []string{key}, ttlMs).Int64()
		if err != nil {
			mwLogger.Debug("rate limit check skipped", zap.Error(err))
			return c.Next()
		}
		c.Set("X-RateLimit-Limit", fmt.Sprint(limit))
		c.Set("X-RateLimit-Remaining", fmt.Sprint(lo.Max([]int64{0, int64(limit) - n})))
		if n > int64(limit) {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprint(windowSec))
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
