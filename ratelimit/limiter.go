package ratelimit

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// TextCodeRateLimited is the error code returned once the window is spent.
const TextCodeRateLimited = "RATE_LIMITED"

// LoginLimiter throttles by client IP. A nil storage keeps counters in
// process memory.
func LoginLimiter(storage fiber.Storage, max int, window time.Duration) fiber.Handler {
	cfg := limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + ":" + c.Path()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    TextCodeRateLimited,
					"message": "too many login attempts, try again later",
				},
			})
		},
	}
	if storage != nil {
		cfg.Storage = storage
	}
	return limiter.New(cfg)
}
