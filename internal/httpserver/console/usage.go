package console

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_console/internal/httpserver/httputil"
	"github.com/ncecere/usage_console/internal/services/analytics"
	"github.com/ncecere/usage_console/internal/usage"
)

func (h *handler) registerUsageRoutes(group fiber.Router) {
	group.Get("/usage/overview", h.usageOverview)
	group.Get("/usage/users", h.usageUsers)
	group.Get("/usage/models", h.usageModels)
	group.Get("/usage/records", h.usageRecords)
	group.Get("/usage/groups", h.usageGroups)
	group.Get("/usage/series", h.usageSeries)
	group.Post("/usage/refresh", h.usageRefresh)
}

// usageQuery reads period, from, to, model, user and scope.
func usageQuery(c *fiber.Ctx) (analytics.Query, error) {
	scope, err := analytics.ParseScope(c.Query("scope"))
	if err != nil {
		return analytics.Query{}, err
	}
	return analytics.Query{
		Preset: strings.TrimSpace(c.Query("period")),
		From:   strings.TrimSpace(c.Query("from")),
		To:     strings.TrimSpace(c.Query("to")),
		Model:  strings.TrimSpace(c.Query("model")),
		User:   strings.TrimSpace(c.Query("user")),
		Scope:  scope,
	}, nil
}

func (h *handler) snapshot(c *fiber.Ctx) (*analytics.Snapshot, error) {
	p, ok := principalFrom(c)
	if !ok {
		return nil, unauthorized(c)
	}
	q, err := usageQuery(c)
	if err != nil {
		return nil, writeServiceError(c, err)
	}
	snap, err := h.container.Analytics.Snapshot(userContext(c), p, q)
	if err != nil {
		return nil, writeServiceError(c, err)
	}
	return snap, nil
}

func (h *handler) usageOverview(c *fiber.Ctx) error {
	snap, err := h.snapshot(c)
	if snap == nil {
		return err
	}
	return c.JSON(snap.Overview())
}

func (h *handler) usageUsers(c *fiber.Ctx) error {
	snap, err := h.snapshot(c)
	if snap == nil {
		return err
	}
	return c.JSON(snap.Users(c.QueryInt("limit", 0)))
}

func (h *handler) usageModels(c *fiber.Ctx) error {
	snap, err := h.snapshot(c)
	if snap == nil {
		return err
	}
	return c.JSON(snap.Models(c.QueryInt("limit", 0)))
}

func (h *handler) usageRecords(c *fiber.Ctx) error {
	snap, err := h.snapshot(c)
	if snap == nil {
		return err
	}
	return c.JSON(snap.Page(c.QueryInt("offset", 0), c.QueryInt("limit", 100)))
}

func (h *handler) usageGroups(c *fiber.Ctx) error {
	by := usage.Dimension(strings.ToLower(strings.TrimSpace(c.Query("by"))))
	if by == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "by is required")
	}
	snap, err := h.snapshot(c)
	if snap == nil {
		return err
	}
	grouped, err := snap.Groups(by)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(grouped)
}

func (h *handler) usageSeries(c *fiber.Ctx) error {
	snap, err := h.snapshot(c)
	if snap == nil {
		return err
	}
	return c.JSON(snap.Series())
}

// usageRefresh drops cached upstream reports for the requested range.
func (h *handler) usageRefresh(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	q, err := usageQuery(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	if err := h.container.Analytics.Invalidate(userContext(c), p, q); err != nil {
		return writeServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
