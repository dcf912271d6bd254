package httpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ncecere/usage_console/internal/requestctx"
)

type requestRecorder interface {
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// routeLabel is the matched route template, so metrics and span names stay
// low-cardinality when paths carry ids.
func routeLabel(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	return "unmatched"
}

// responseStatus is the status the error handler will write for err, or the
// status already set when the chain succeeded.
func responseStatus(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

func metricsMiddleware(rec requestRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		rec.RecordHTTPRequest(c.UserContext(), c.Method(), routeLabel(c), responseStatus(c, err), time.Since(start))
		return err
	}
}

func tracingMiddleware(name string) fiber.Handler {
	tracer := otel.Tracer(name)
	return func(c *fiber.Ctx) error {
		ctx, span := tracer.Start(c.UserContext(), c.Method())
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		status := responseStatus(c, err)
		route := routeLabel(c)
		span.SetName(c.Method() + " " + route)
		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.String("http.request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		)
		if p, ok := requestctx.PrincipalFromContext(c.UserContext()); ok {
			span.SetAttributes(
				attribute.String("console.subject", p.Subject),
				attribute.String("console.role", string(p.Role)),
			)
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			if err != nil {
				span.RecordError(err)
			}
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		default:
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
