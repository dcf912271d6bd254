package requestctx

import (
	"context"

	"github.com/ncecere/usage_console/internal/auth"
)

type contextKey string

const fiberLocalsKey = "principal"

// Key is the typed context key used for storing the authenticated principal.
var Key contextKey = "usage-console/principal"

// WithPrincipal embeds the principal into the parent context.
func WithPrincipal(parent context.Context, p *auth.Principal) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, p)
}

// PrincipalFromContext retrieves the principal if present.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(Key).(*auth.Principal)
	return p, ok && p != nil
}

// FiberLocalsKey returns the key used in fiber.Locals for principal storage.
func FiberLocalsKey() string {
	return fiberLocalsKey
}
