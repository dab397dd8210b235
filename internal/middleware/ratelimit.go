package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// KeyFunc picks the rate limit subject of a request.
type KeyFunc func(c *fiber.Ctx) string

// RateLimit allows max requests per window and subject using Redis counters.
// It is a no-op without Redis and fails open on cache errors.
func RateLimit(cache *redis.Client, prefix string, max int, window time.Duration, keyFn KeyFunc) fiber.Handler {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	if keyFn == nil {
		keyFn = ByIP
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		key := "rl:" + prefix + ":" + keyFn(c)
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, window)
		}
		if cnt > int64(max) {
			if ttl, err := cache.TTL(c.UserContext(), key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Round(time.Second)/time.Second)))
			}
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

// ByIP keys on the client address.
func ByIP(c *fiber.Ctx) string {
	return c.IP()
}

// ByJSONField keys on a JSON body field, falling back to the client address.
func ByJSONField(field string) KeyFunc {
	return func(c *fiber.Ctx) string {
		var body map[string]any
		_ = c.BodyParser(&body)
		if v, ok := body[field].(string); ok {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				return v
			}
		}
		return c.IP()
	}
}
