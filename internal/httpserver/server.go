package httpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/ncecere/usage_console/internal/app"
	"github.com/ncecere/usage_console/internal/config"
	consoleroutes "github.com/ncecere/usage_console/internal/httpserver/console"
)

const (
	serverHeader         = "usage-console"
	defaultShutdownDelay = 5 * time.Second
	accessLogFormat      = "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n"
)

// Server runs the console API until its context is cancelled.
type Server struct {
	app *fiber.App
	cfg config.ServerConfig
}

// New builds the server from a wired container.
func New(container *app.Container) (*Server, error) {
	if container == nil {
		return nil, fmt.Errorf("dependency container is required")
	}
	if container.Config == nil {
		return nil, fmt.Errorf("container missing config")
	}
	return &Server{app: NewApp(container), cfg: container.Config.Server}, nil
}

// NewApp builds the Fiber app: request id, access log and panic recovery,
// then metrics and tracing when observability is configured, then the
// operational endpoints and the /api console routes.
func NewApp(container *app.Container) *fiber.App {
	cfg := container.Config.Server
	bodyLimit := cfg.BodyLimitMB * 1024 * 1024
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}
	fiberApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ServerHeader:          serverHeader,
		BodyLimit:             bodyLimit,
		ReadTimeout:           cfg.ReadTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		ReadBufferSize:        8 * 1024,
		WriteBufferSize:       4 * 1024,
	})

	fiberApp.Use(requestid.New())
	fiberApp.Use(logger.New(logger.Config{Format: accessLogFormat}))
	fiberApp.Use(recover.New())

	if obs := container.Observability; obs != nil {
		fiberApp.Use(metricsMiddleware(obs))
		if obs.TracerProvider() != nil {
			fiberApp.Use(tracingMiddleware("usage-console/http"))
		}
		if handler := obs.PrometheusHandler(); handler != nil {
			fiberApp.Get("/metrics", adaptor.HTTPHandler(handler))
		}
	}

	registerHealthRoutes(fiberApp, dependencyChecks(container))
	consoleroutes.Register(fiberApp, container)
	return fiberApp
}

// Listen serves until ctx is cancelled, then drains in-flight requests for at
// most the configured shutdown delay.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	delay := s.cfg.GracefulShutdownDelay
	if delay <= 0 {
		delay = defaultShutdownDelay
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), delay)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
