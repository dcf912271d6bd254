package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"

	"github.com/ncecere/usage_console/internal/config"
)

// OIDCVerifier validates access tokens issued by the configured identity provider.
type OIDCVerifier struct {
	verifier   *oidc.IDTokenVerifier
	rolesClaim string
}

// NewOIDCVerifier discovers the issuer and prepares a token verifier.
func NewOIDCVerifier(ctx context.Context, cfg config.OIDCConfig) (*OIDCVerifier, error) {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	ctx = oidc.ClientContext(ctx, client)

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}
	return newOIDCVerifier(provider.Verifier(oidcConfig(cfg)), cfg.RolesClaim), nil
}

// NewOIDCVerifierWithKeySet skips discovery and checks signatures against keys.
func NewOIDCVerifierWithKeySet(cfg config.OIDCConfig, keys oidc.KeySet) *OIDCVerifier {
	return newOIDCVerifier(oidc.NewVerifier(cfg.Issuer, keys, oidcConfig(cfg)), cfg.RolesClaim)
}

func oidcConfig(cfg config.OIDCConfig) *oidc.Config {
	return &oidc.Config{
		ClientID:          cfg.ClientID,
		SkipClientIDCheck: cfg.SkipClientIDCheck,
	}
}

func newOIDCVerifier(v *oidc.IDTokenVerifier, rolesClaim string) *OIDCVerifier {
	rolesClaim = strings.TrimSpace(rolesClaim)
	if rolesClaim == "" {
		rolesClaim = "groups"
	}
	return &OIDCVerifier{verifier: v, rolesClaim: rolesClaim}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse token claims: %w", err)
	}
	var rawClaims map[string]any
	if err := token.Claims(&rawClaims); err != nil {
		return nil, fmt.Errorf("parse raw token claims: %w", err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Name
	}
	return NewPrincipal(
		token.Subject,
		username,
		claims.Email,
		extractRolesFromClaims(rawClaims, v.rolesClaim),
		rawToken,
		token.Expiry,
	), nil
}
