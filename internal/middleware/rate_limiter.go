package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/memory/v2"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Name       string                  // Key prefix, also reported in the error body
	Max        int                     // Maximum number of requests
	Expiration time.Duration           // Time window for the rate limit
	KeyFunc    func(*fiber.Ctx) string // Function to generate the key for rate limiting
	Message    string                  // Custom error message
}

// NewRateLimiter creates a new rate limiter middleware with custom configuration
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	storage := memory.New(memory.Config{
		GCInterval: 10 * time.Minute,
	})

	if config.KeyFunc == nil {
		prefix := config.Name
		config.KeyFunc = func(c *fiber.Ctx) string {
			return prefix + ":" + c.IP()
		}
	}

	if config.Message == "" {
		config.Message = fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.",
			config.Max, config.Expiration.String())
	}

	return limiter.New(limiter.Config{
		Max:          config.Max,
		Expiration:   config.Expiration,
		KeyGenerator: config.KeyFunc,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"code":        "RATE_LIMITED",
				"limiter":     config.Name,
				"message":     config.Message,
				"retry_after": int(config.Expiration.Seconds()),
			})
		},
		Storage: storage,
	})
}

// CompileLimiter limits stateless compiles and analyses per IP. Each one runs
// the optimizer and the bundler outside the session pipeline.
func CompileLimiter(max int, expiration time.Duration) fiber.Handler {
	return NewRateLimiter(RateLimiterConfig{
		Name:       "compile",
		Max:        max,
		Expiration: expiration,
		Message: fmt.Sprintf("Too many compile requests. Maximum %d per %s; edit the session instead.",
			max, expiration.String()),
	})
}
