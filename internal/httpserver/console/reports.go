package console

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_console/internal/httpserver/httputil"
	"github.com/ncecere/usage_console/internal/services/analytics"
)

type reportRequest struct {
	Period string `json:"period"`
	From   string `json:"from"`
	To     string `json:"to"`
	Model  string `json:"model"`
	User   string `json:"user"`
	Scope  string `json:"scope"`
}

func (h *handler) registerReportRoutes(group fiber.Router) {
	group.Post("/reports", h.exportReport)
	group.Get("/reports/:id", h.downloadReport)
}

func (h *handler) exportReport(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req reportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	scope, err := analytics.ParseScope(req.Scope)
	if err != nil {
		return writeServiceError(c, err)
	}
	report, err := h.container.Reports.Export(userContext(c), p, analytics.Query{
		Preset: strings.TrimSpace(req.Period),
		From:   strings.TrimSpace(req.From),
		To:     strings.TrimSpace(req.To),
		Model:  strings.TrimSpace(req.Model),
		User:   strings.TrimSpace(req.User),
		Scope:  scope,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"report": report})
}

func (h *handler) downloadReport(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id := c.Params("id")
	body, info, err := h.container.Reports.Open(userContext(c), p, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "usage-"+id+".csv"))
	if info.Size > 0 {
		return c.SendStream(body, int(info.Size))
	}
	return c.SendStream(body)
}
