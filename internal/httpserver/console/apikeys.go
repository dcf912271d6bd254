package console

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_console/internal/httpserver/httputil"
	apikeysvc "github.com/ncecere/usage_console/internal/services/apikeys"
)

func (h *handler) registerAPIKeyRoutes(group fiber.Router) {
	group.Get("/apikeys", h.listAPIKeys)
	group.Post("/apikeys", h.createAPIKey)
	group.Get("/apikeys/:id", h.getAPIKey)
	group.Post("/apikeys/:id/rotate", h.rotateAPIKey)
	group.Put("/apikeys/:id/deactivate", h.deactivateAPIKey)
}

func (h *handler) listAPIKeys(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	keys, err := h.container.APIKeys.List(userContext(c), p)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"api_keys": keys})
}

func (h *handler) getAPIKey(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	key, err := h.container.APIKeys.Get(userContext(c), p, c.Params("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"api_key": key})
}

func (h *handler) createAPIKey(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req apikeysvc.Request
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	created, err := h.container.APIKeys.Create(userContext(c), p, req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"api_key": created})
}

func (h *handler) rotateAPIKey(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req apikeysvc.Request
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	rotated, err := h.container.APIKeys.Rotate(userContext(c), p, c.Params("id"), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"api_key": rotated})
}

func (h *handler) deactivateAPIKey(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.container.APIKeys.Deactivate(userContext(c), p, c.Params("id")); err != nil {
		return writeServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
