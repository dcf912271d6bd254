package auth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ncecere/usage_console/internal/rbac"
)

// Principal is the authenticated caller of a console request.
type Principal struct {
	Subject     string             `json:"subject"`
	Username    string             `json:"username"`
	Email       string             `json:"email"`
	Roles       []rbac.Role        `json:"roles"`
	Role        rbac.Role          `json:"role"`
	Permissions rbac.PermissionSet `json:"permissions"`
	AccessToken string             `json:"-"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

// NewPrincipal resolves groups to the caller's highest role and permissions.
func NewPrincipal(subject, username, email string, groups []string, accessToken string, expiresAt time.Time) *Principal {
	role := rbac.Highest(groups)
	roles := rbac.Known(groups)
	if len(roles) == 0 {
		roles = []rbac.Role{role}
	}
	if strings.TrimSpace(username) == "" {
		username = email
	}
	return &Principal{
		Subject:     subject,
		Username:    username,
		Email:       email,
		Roles:       roles,
		Role:        role,
		Permissions: rbac.PermissionsFor(role),
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}
}

// Can reports whether the principal holds p.
func (p *Principal) Can(perm rbac.Permission) bool {
	if p == nil {
		return false
	}
	return p.Permissions.Has(perm)
}

// Ensure returns rbac.ErrForbidden unless the principal holds perm.
func (p *Principal) Ensure(perm rbac.Permission) error {
	if p == nil {
		return rbac.ErrForbidden
	}
	return p.Permissions.Ensure(perm)
}

// CanViewAllUsage decides whether usage queries run org-wide or for the caller only.
func (p *Principal) CanViewAllUsage() bool {
	return p.Can(rbac.PermViewAdminUsage)
}

// TokenSource forwards the caller's bearer token to the upstream API.
func (p *Principal) TokenSource() oauth2.TokenSource {
	if p == nil {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: p.AccessToken,
		TokenType:   "Bearer",
		Expiry:      p.ExpiresAt,
	})
}
