package middleware

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceCtxKey  = "trace_ctx"
	traceSpanKey = "trace_span"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	// ServiceName is the name of the service for spans
	ServiceName string

	// SkipPaths are paths that should not be traced (e.g., /health, /metrics)
	SkipPaths []string

	// Enabled controls whether tracing is active
	Enabled bool
}

// DefaultTracingConfig returns sensible defaults
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:     true,
		ServiceName: "playground",
		SkipPaths:   []string{"/health", "/metrics", "/ws"},
	}
}

// TracingMiddleware returns a Fiber middleware that creates spans for HTTP
// requests. Handlers get the span's context from RequestContext so pipeline
// stages nest under the request.
func TracingMiddleware(cfg TracingConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	tracer := otel.Tracer("playground-http")

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skipPaths[path] {
			return c.Next()
		}

		ctx := otel.GetTextMapPropagator().Extract(
			c.UserContext(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		spanName := c.Route().Path
		if spanName == "" || spanName == "/" {
			spanName = path
		}
		spanName = fmt.Sprintf("%s %s", c.Method(), spanName)

		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Method()),
				semconv.HTTPRoute(c.Route().Path),
				semconv.HTTPScheme(c.Protocol()),
				attribute.String("service.component", cfg.ServiceName),
				attribute.String("http.request_id", c.Get("X-Request-ID")),
			),
		)
		defer span.End()

		c.Locals(traceCtxKey, ctx)
		c.Locals(traceSpanKey, span)
		c.SetUserContext(ctx)

		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		statusCode := c.Response().StatusCode()
		span.SetAttributes(
			semconv.HTTPStatusCode(statusCode),
			attribute.Int("http.response_size", len(c.Response().Body())),
		)
		if gen, ok := c.Locals("generation").(uint64); ok {
			span.SetAttributes(attribute.Int64("pipeline.generation", int64(gen))) //nolint:gosec // generations stay far below MaxInt64
		}

		if statusCode >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}

// RequestContext returns the traced request context, or the fiber user
// context when the request is not traced
func RequestContext(c *fiber.Ctx) context.Context {
	if ctx, ok := c.Locals(traceCtxKey).(context.Context); ok {
		return ctx
	}
	return c.UserContext()
}

// GetTraceID returns the trace ID from the Fiber context
func GetTraceID(c *fiber.Ctx) string {
	if span, ok := c.Locals(traceSpanKey).(trace.Span); ok && span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// AddSpanEvent adds an event to the current span
func AddSpanEvent(c *fiber.Ctx, name string, attrs ...attribute.KeyValue) {
	if span, ok := c.Locals(traceSpanKey).(trace.Span); ok && span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
