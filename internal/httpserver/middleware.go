package httpserver

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/observability"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/requestctx"
)

// accessLog writes one structured line per request. The org type is read
// after the handler chain ran, so routes that resolve it later still log it.
func accessLog(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// let the app error handler settle the status before logging
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}

		status := c.Response().StatusCode()
		level := zapcore.InfoLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}
		if ce := logger.Check(level, "http request"); ce != nil {
			ce.Write(
				zap.String("method", c.Method()),
				zap.String("route", routeOf(c)),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", requestID(c)),
				zap.String("org_type", orgTypeOf(c)),
			)
		}
		return err
	}
}

// recoverPanics turns handler panics into 500s and logs the stack with the
// request's correlation fields.
func recoverPanics(logger *zap.Logger) fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.Error("handler panic",
				zap.String("route", routeOf(c)),
				zap.String("request_id", requestID(c)),
				zap.String("org_type", orgTypeOf(c)),
				zap.Any("panic", e),
				zap.StackSkip("stack", 3),
			)
		},
	})
}

func requestMetrics(obs *observability.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		obs.RecordHTTPRequest(c.UserContext(), c.Method(), routeOf(c), c.Response().StatusCode(), time.Since(start))
		return err
	}
}

func requestTracing(tracer trace.Tracer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		spanCtx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path())
		defer span.End()
		c.SetUserContext(spanCtx)
		err := c.Next()

		status := c.Response().StatusCode()
		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.route", routeOf(c)),
			attribute.Int("http.status_code", status),
			attribute.String("studio.request_id", requestID(c)),
			attribute.String("studio.org_type", orgTypeOf(c)),
		)
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= 500:
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		default:
			span.SetStatus(codes.Ok, "OK")
		}
		return err
	}
}

func routeOf(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return c.Path()
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
	return id
}

func orgTypeOf(c *fiber.Ctx) string {
	if rc, ok := c.Locals(requestctx.FiberLocalsKey()).(*requestctx.Context); ok && rc != nil {
		return rc.OrgType
	}
	return ""
}
