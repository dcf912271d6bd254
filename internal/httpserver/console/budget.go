package console

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	decimal "github.com/shopspring/decimal"

	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/httpserver/httputil"
	"github.com/ncecere/usage_console/internal/rbac"
	"github.com/ncecere/usage_console/internal/services/analytics"
	budgetsvc "github.com/ncecere/usage_console/internal/services/budget"
	"github.com/ncecere/usage_console/internal/timeutil"
)

type budgetRequest struct {
	MonthlyLimit     *decimal.Decimal `json:"monthly_limit"`
	WeeklyLimit      *decimal.Decimal `json:"weekly_limit"`
	DailyLimit       *decimal.Decimal `json:"daily_limit"`
	Currency         *string          `json:"currency"`
	WarningThreshold *float64         `json:"warning_threshold"`
}

type budgetStatusResponse struct {
	budgetsvc.Status
	Scope    analytics.Scope `json:"scope"`
	Degraded bool            `json:"degraded"`
}

func (h *handler) registerBudgetRoutes(group fiber.Router) {
	group.Get("/budget", h.getBudget)
	group.Put("/budget", h.putBudget)
	group.Get("/budget/status", h.budgetStatus)
	group.Get("/budget/alerts", h.budgetAlerts)
}

// budgetSubject resolves ?subject=. Callers manage their own budget; admins
// may address any subject, including the organization.
func budgetSubject(c *fiber.Ctx, p *auth.Principal) (string, error) {
	subject := strings.TrimSpace(c.Query("subject"))
	if subject == "" || subject == p.Subject {
		return p.Subject, nil
	}
	if !rbac.AtLeast(p.Role, rbac.RoleAdmin) {
		return "", rbac.ErrForbidden
	}
	return subject, nil
}

func (h *handler) getBudget(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	subject, err := budgetSubject(c, p)
	if err != nil {
		return writeServiceError(c, err)
	}
	settings, err := h.container.Budgets.Get(userContext(c), subject)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"budget": settings})
}

func (h *handler) putBudget(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	subject, err := budgetSubject(c, p)
	if err != nil {
		return writeServiceError(c, err)
	}

	var req budgetRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx := userContext(c)
	settings, err := h.container.Budgets.Get(ctx, subject)
	if err != nil {
		return writeServiceError(c, err)
	}
	if req.MonthlyLimit != nil {
		settings.MonthlyLimit = *req.MonthlyLimit
	}
	if req.WeeklyLimit != nil {
		settings.WeeklyLimit = *req.WeeklyLimit
	}
	if req.DailyLimit != nil {
		settings.DailyLimit = *req.DailyLimit
	}
	if req.Currency != nil {
		settings.Currency = *req.Currency
	}
	if req.WarningThreshold != nil {
		settings.WarningThreshold = *req.WarningThreshold
	}

	saved, err := h.container.Budgets.Put(ctx, settings)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"budget": saved})
}

func (h *handler) budgetStatus(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	subject, err := budgetSubject(c, p)
	if err != nil {
		return writeServiceError(c, err)
	}

	from, to := h.container.Budgets.FetchRange()
	q := analytics.Query{
		Preset: timeutil.PresetCustom,
		From:   from.Format(timeutil.DateLayout),
		To:     to.Format(timeutil.DateLayout),
	}
	switch subject {
	case p.Subject:
		q.Scope = analytics.ScopeOwn
	case budgetsvc.OrganizationSubject:
	default:
		q.User = subject
	}

	ctx := userContext(c)
	snap, err := h.container.Analytics.Snapshot(ctx, p, q)
	if err != nil {
		return writeServiceError(c, err)
	}
	status, err := h.container.Budgets.Status(ctx, subject, snap.Records)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(budgetStatusResponse{Status: status, Scope: snap.Scope, Degraded: snap.Degraded})
}

func (h *handler) budgetAlerts(c *fiber.Ctx) error {
	p, ok := principalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	subject, err := budgetSubject(c, p)
	if err != nil {
		return writeServiceError(c, err)
	}
	events, err := h.container.Budgets.RecentAlerts(userContext(c), subject, c.QueryInt("limit", 50))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"alerts": events})
}
