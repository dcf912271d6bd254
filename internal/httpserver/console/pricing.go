package console

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_console/internal/httpserver/httputil"
	"github.com/ncecere/usage_console/internal/pricing"
	adminpricingsvc "github.com/ncecere/usage_console/internal/services/adminpricing"
)

func (h *handler) registerPricingRoutes(group fiber.Router) {
	group.Get("/pricing", h.listPricing)
	group.Post("/pricing/quote", h.quotePricing)

	admin := group.Group("/admin", requireAdmin())
	admin.Put("/pricing/:family", h.upsertPricing)
	admin.Delete("/pricing/:family/:model", h.removePricing)
}

func (h *handler) listPricing(c *fiber.Ctx) error {
	sheet, err := h.container.PricingAdmin.List()
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(sheet)
}

func (h *handler) quotePricing(c *fiber.Ctx) error {
	var req adminpricingsvc.QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Records) == 0 {
		return httputil.WriteError(c, fiber.StatusBadRequest, "records are required")
	}
	quote, err := h.container.PricingAdmin.Quote(req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(quote)
}

func (h *handler) upsertPricing(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var entry pricing.Entry
	if err := c.BodyParser(&entry); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	saved, err := h.container.PricingAdmin.Upsert(userContext(c), c.Params("family"), entry, p.Subject)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"entry": saved})
}

func (h *handler) removePricing(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.container.PricingAdmin.Remove(userContext(c), c.Params("family"), c.Params("model"), p.Subject); err != nil {
		return writeServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
