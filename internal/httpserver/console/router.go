package console

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_console/internal/app"
)

// Register wires the authenticated console API under /api.
func Register(app *fiber.App, container *app.Container) {
	if app == nil || container == nil {
		return
	}

	h := &handler{container: container}

	group := app.Group("/api", authMiddleware(container))
	group.Get("/me", h.me)
	h.registerUsageRoutes(group)
	h.registerBudgetRoutes(group)
	h.registerAPIKeyRoutes(group)
	h.registerPricingRoutes(group)
	h.registerReportRoutes(group)
}

type handler struct {
	container *app.Container
}

func (h *handler) me(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(fiber.Map{
		"user":               p,
		"can_view_all_usage": p.CanViewAllUsage(),
		"timezone":           h.container.Config.Reporting.Timezone,
		"currency":           h.container.Config.Pricing.Currency,
	})
}
