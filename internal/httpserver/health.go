package httpserver

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_console/internal/app"
)

// dependencyCheck pings one backing service.
const healthCheckTimeout = 2 * time.Second

type dependencyCheck struct {
	name string
	ping func(context.Context) error
}

func dependencyChecks(container *app.Container) []dependencyCheck {
	var checks []dependencyCheck
	if container.DBPool != nil {
		checks = append(checks, dependencyCheck{name: "postgres", ping: container.DBPool.Ping})
	}
	if container.Redis != nil {
		checks = append(checks, dependencyCheck{name: "redis", ping: func(ctx context.Context) error {
			return container.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

type checkResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type healthReport struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks"`
}

func runChecks(ctx context.Context, checks []dependencyCheck) (healthReport, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	report := healthReport{Status: "ok", Checks: make(map[string]checkResult, len(checks))}
	healthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.ping(ctx)
		result := checkResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			result.Status = "error"
			result.Error = err.Error()
			report.Status = "degraded"
			healthy = false
		}
		report.Checks[check.name] = result
	}
	return report, healthy
}

// registerHealthRoutes adds /healthz, which always answers 200 with the
// dependency report, and /readyz, which answers 503 while any dependency
// is failing.
func registerHealthRoutes(fiberApp *fiber.App, checks []dependencyCheck) {
	fiberApp.Get("/healthz", func(c *fiber.Ctx) error {
		report, _ := runChecks(c.UserContext(), checks)
		return c.JSON(report)
	})
	fiberApp.Get("/readyz", func(c *fiber.Ctx) error {
		report, healthy := runChecks(c.UserContext(), checks)
		if !healthy {
			return c.Status(fiber.StatusServiceUnavailable).JSON(report)
		}
		return c.JSON(report)
	})
}
