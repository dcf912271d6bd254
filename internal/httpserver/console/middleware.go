package console

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_console/internal/app"
	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/httpserver/httputil"
	"github.com/ncecere/usage_console/internal/rbac"
	"github.com/ncecere/usage_console/internal/requestctx"
)

func authMiddleware(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if container.Verifier == nil {
			return httputil.WriteError(c, fiber.StatusServiceUnavailable, "authentication not configured")
		}
		token, err := auth.ExtractBearer(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "authorization required")
		}

		principal, err := container.Verifier.Verify(userContext(c), token)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return httputil.WriteError(c, fiber.StatusGatewayTimeout, "token verification timed out")
			}
			slog.DebugContext(userContext(c), "bearer token rejected", slog.String("error", err.Error()))
			return httputil.WriteError(c, fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.SetUserContext(requestctx.WithPrincipal(userContext(c), principal))
		c.Locals(requestctx.FiberLocalsKey(), principal)
		return c.Next()
	}
}

// requireAdmin guards routes that change shared state.
func requireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principalFrom(c)
		if !ok {
			return unauthorized(c)
		}
		if !rbac.AtLeast(p.Role, rbac.RoleAdmin) {
			return httputil.WriteError(c, fiber.StatusForbidden, "admin role required")
		}
		return c.Next()
	}
}

func userContext(c *fiber.Ctx) context.Context {
	if c == nil {
		return context.Background()
	}
	if uc := c.UserContext(); uc != nil {
		return uc
	}
	return context.Background()
}

func principalFrom(c *fiber.Ctx) (*auth.Principal, bool) {
	return requestctx.PrincipalFromContext(userContext(c))
}

func unauthorized(c *fiber.Ctx) error {
	return httputil.WriteError(c, fiber.StatusUnauthorized, "authentication required")
}
