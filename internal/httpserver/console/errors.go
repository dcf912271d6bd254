package console

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/httpserver/httputil"
	"github.com/ncecere/usage_console/internal/limits"
	"github.com/ncecere/usage_console/internal/pricing"
	"github.com/ncecere/usage_console/internal/rbac"
	adminpricingsvc "github.com/ncecere/usage_console/internal/services/adminpricing"
	"github.com/ncecere/usage_console/internal/services/analytics"
	apikeysvc "github.com/ncecere/usage_console/internal/services/apikeys"
	budgetsvc "github.com/ncecere/usage_console/internal/services/budget"
	reportsvc "github.com/ncecere/usage_console/internal/services/reports"
	"github.com/ncecere/usage_console/internal/storage/blob"
	"github.com/ncecere/usage_console/internal/timeutil"
	"github.com/ncecere/usage_console/internal/upstream"
	"github.com/ncecere/usage_console/internal/usage"
)

var badRequestErrors = []error{
	timeutil.ErrInvalidPeriod,
	analytics.ErrInvalidScope,
	usage.ErrInvalidDimension,
	usage.ErrUnknownKind,
	apikeysvc.ErrNameRequired,
	apikeysvc.ErrNameTooLong,
	apikeysvc.ErrIDRequired,
	budgetsvc.ErrInvalidSettings,
	pricing.ErrUnknownFamily,
	pricing.ErrInvalidEntry,
	adminpricingsvc.ErrModelRequired,
	reportsvc.ErrInvalidID,
}

var notFoundErrors = []error{
	upstream.ErrNotFound,
	reportsvc.ErrNotFound,
	blob.ErrNotFound,
	adminpricingsvc.ErrEntryNotFound,
}

var unavailableErrors = []error{
	analytics.ErrServiceUnavailable,
	apikeysvc.ErrServiceUnavailable,
	budgetsvc.ErrServiceUnavailable,
	adminpricingsvc.ErrServiceUnavailable,
	reportsvc.ErrServiceUnavailable,
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, rbac.ErrForbidden), errors.Is(err, upstream.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, limits.ErrLimitExceeded):
		return fiber.StatusTooManyRequests
	case errors.Is(err, adminpricingsvc.ErrFallbackRemoval):
		return fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case matchesAny(err, badRequestErrors):
		return fiber.StatusBadRequest
	case matchesAny(err, notFoundErrors):
		return fiber.StatusNotFound
	case matchesAny(err, unavailableErrors):
		return fiber.StatusServiceUnavailable
	}
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeServiceError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.ErrorContext(userContext(c), "console request failed",
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	return httputil.WriteError(c, status, err.Error())
}
