package middleware

import (
	"context"
	"log/slog"
	"time"

	"doubtdesk/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// CorrelationIDHeader carries a caller-supplied correlation id.
const CorrelationIDHeader = "X-Correlation-ID"

// ContextMiddleware injects request, trace and correlation ids from Fiber
// locals into the request context so the context-aware logger can pick them
// up in deeper layers.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			ctx = context.WithValue(ctx, observability.RequestIDKey, rid)
		}
		if tid, ok := c.Locals("traceID").(string); ok && tid != "" {
			ctx = context.WithValue(ctx, observability.TraceIDKey, tid)
		}

		if cid := c.Get(CorrelationIDHeader); cid != "" {
			ctx = observability.WithCorrelationID(ctx, cid)
		} else {
			ctx = observability.EnsureCorrelationID(ctx)
		}
		c.Set(CorrelationIDHeader, observability.ExtractCorrelationID(ctx))

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger returns a Fiber middleware for logging requests using slog
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := []any{
			slog.Int("status", c.Response().StatusCode()),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}

		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			observability.Logger.ErrorContext(c.UserContext(), "request failed", fields...)
		} else {
			observability.Logger.InfoContext(c.UserContext(), "request processed", fields...)
		}

		return err
	}
}
