package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// stateQueryParams carry whole encoded session states and are shortened in logs
var stateQueryParams = []string{"fragment", "state", "token"}

// maxLoggedStateLen is how much of an encoded state is kept in a log line
const maxLoggedStateLen = 32

// StructuredLoggerConfig holds configuration for structured logging
type StructuredLoggerConfig struct {
	// Logger is the zerolog logger to use (defaults to global log)
	Logger *zerolog.Logger
	// SkipPaths are paths that should not be logged (e.g., health checks)
	SkipPaths []string
	// SlowRequestThreshold logs slow requests with WARN level (0 = disabled)
	SlowRequestThreshold time.Duration
	// SkipSuccessfulRequests skips logging successful requests (2xx status codes)
	SkipSuccessfulRequests bool
	// LogRequestBody logs the request body, truncated to 1KiB
	LogRequestBody bool
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths: []string{
			"/health",
			"/metrics",
		},
		// a stateless compile of the seed document takes a few milliseconds
		SlowRequestThreshold: 2 * time.Second,
	}
}

// shortenQueryString truncates encoded session states in a query string
func shortenQueryString(queryString string) string {
	if queryString == "" {
		return ""
	}

	values, err := url.ParseQuery(queryString)
	if err != nil {
		return "[unparseable]"
	}

	for key, vals := range values {
		for _, param := range stateQueryParams {
			if !strings.EqualFold(key, param) {
				continue
			}
			for i, v := range vals {
				if len(v) > maxLoggedStateLen {
					vals[i] = v[:maxLoggedStateLen] + "..."
				}
			}
		}
	}

	return values.Encode()
}

// StructuredLogger returns a middleware that logs requests with structured logging
func StructuredLogger(config ...StructuredLoggerConfig) fiber.Handler {
	cfg := DefaultStructuredLoggerConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skip[path] {
			return c.Next()
		}

		start := time.Now()

		// Set by the requestid middleware when it is installed
		requestID := c.Locals("requestid")
		if requestID == nil {
			requestID = c.Get("X-Request-ID", "")
		}

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		if cfg.SkipSuccessfulRequests && status >= 200 && status < 300 {
			return err
		}

		var logEvent *zerolog.Event
		switch {
		case err != nil:
			logEvent = logger.Error().Err(err)
		case status >= 500:
			logEvent = logger.Error()
		case status >= 400:
			logEvent = logger.Warn()
		case cfg.SlowRequestThreshold > 0 && duration > cfg.SlowRequestThreshold:
			logEvent = logger.Warn().Bool("slow_request", true)
		default:
			logEvent = logger.Info()
		}

		logEvent = logEvent.
			Str("request_id", toString(requestID)).
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Str("user_agent", c.Get("User-Agent"))

		if queryString := string(c.Request().URI().QueryString()); queryString != "" {
			logEvent = logEvent.Str("query", shortenQueryString(queryString))
		}

		// Handlers that touch the pipeline record the generation they observed
		if gen, ok := c.Locals("generation").(uint64); ok {
			logEvent = logEvent.Uint64("generation", gen)
		}

		logEvent = logEvent.Int("response_bytes", len(c.Response().Body()))

		if cfg.LogRequestBody && len(c.Body()) > 0 {
			body := c.Body()
			if len(body) > 1024 {
				logEvent = logEvent.Str("request_body", string(body[:1024])+"... (truncated)")
			} else {
				logEvent = logEvent.Str("request_body", string(body))
			}
		}

		logEvent.Msg("HTTP request")

		return err
	}
}

// toString safely converts interface{} to string
func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
