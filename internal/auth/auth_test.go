package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/usage_console/internal/config"
	"github.com/ncecere/usage_console/internal/rbac"
)

func newDevManager(t *testing.T) *DevTokenManager {
	t.Helper()
	tm, err := NewDevTokenManager(config.DevAuthConfig{
		Secret:   "0123456789abcdef0123",
		Issuer:   "console-test",
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)
	return tm
}

func TestDevTokenRoundTrip(t *testing.T) {
	tm := newDevManager(t)
	raw, exp, err := tm.Issue(DevIdentity{
		Subject:  "user-1",
		Username: "alice",
		Email:    "alice@example.test",
		Groups:   []string{"/api-stream", "/api-admin"},
	})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	principal, err := tm.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", principal.Subject)
	require.Equal(t, "alice", principal.Username)
	require.Equal(t, rbac.RoleAdmin, principal.Role)
	require.Equal(t, []rbac.Role{rbac.RoleAdmin, rbac.RoleStream}, principal.Roles)
	require.True(t, principal.CanViewAllUsage())
	require.Equal(t, raw, principal.AccessToken)

	tok, err := principal.TokenSource().Token()
	require.NoError(t, err)
	require.Equal(t, raw, tok.AccessToken)
}

func TestDevTokenRejectsTampering(t *testing.T) {
	tm := newDevManager(t)
	raw, _, err := tm.Issue(DevIdentity{Subject: "user-1"})
	require.NoError(t, err)

	other, err := NewDevTokenManager(config.DevAuthConfig{Secret: "another-secret-value", Issuer: "console-test", TokenTTL: time.Hour})
	require.NoError(t, err)
	_, err = other.Verify(context.Background(), raw)
	require.ErrorIs(t, err, ErrInvalidToken)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tm.Verify(context.Background(), raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPrincipalWithoutGroupsIsDefault(t *testing.T) {
	p := NewPrincipal("sub", "", "bob@example.test", nil, "tok", time.Time{})
	require.Equal(t, rbac.RoleDefault, p.Role)
	require.Equal(t, "bob@example.test", p.Username)
	require.False(t, p.CanViewAllUsage())
	require.True(t, p.Can(rbac.PermViewOwnUsage))
	require.ErrorIs(t, p.Ensure(rbac.PermManageUsers), rbac.ErrForbidden)

	var nilPrincipal *Principal
	require.False(t, nilPrincipal.CanViewAllUsage())
}

func TestOIDCVerifierWithStaticKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cfg := config.OIDCConfig{Issuer: "https://idp.example.test/realms/ai", ClientID: "console", RolesClaim: "groups"}
	verifier := NewOIDCVerifierWithKeySet(cfg, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}})

	claims := jwt.MapClaims{
		"iss":                cfg.Issuer,
		"aud":                "console",
		"sub":                "kc-123",
		"exp":                time.Now().Add(time.Hour).Unix(),
		"iat":                time.Now().Unix(),
		"preferred_username": "carol",
		"email":              "carol@example.test",
		"groups":             []string{"/api-stream", "/staff"},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	principal, err := verifier.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "kc-123", principal.Subject)
	require.Equal(t, "carol", principal.Username)
	require.Equal(t, rbac.RoleStream, principal.Role)

	claims["aud"] = "someone-else"
	wrongAud, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	_, err = verifier.Verify(context.Background(), wrongAud)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestChainVerifierFallsThrough(t *testing.T) {
	tm := newDevManager(t)
	raw, _, err := tm.Issue(DevIdentity{Subject: "user-2"})
	require.NoError(t, err)

	failing := NewOIDCVerifierWithKeySet(config.OIDCConfig{Issuer: "https://idp.example.test", ClientID: "x"}, &oidc.StaticKeySet{})
	chain := ChainVerifier{failing, tm}
	principal, err := chain.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "user-2", principal.Subject)

	_, err = chain.Verify(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = chain.Verify(context.Background(), " ")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestExtractBearer(t *testing.T) {
	tok, err := ExtractBearer("Bearer abc.def")
	require.NoError(t, err)
	require.Equal(t, "abc.def", tok)
	tok, err = ExtractBearer("bearer   xyz ")
	require.NoError(t, err)
	require.Equal(t, "xyz", tok)
	_, err = ExtractBearer("Basic abc")
	require.ErrorIs(t, err, ErrMissingToken)
	_, err = ExtractBearer("Bearer ")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestExtractRolesFromNestedClaim(t *testing.T) {
	claims := map[string]any{
		"realm_access": map[string]any{"roles": []any{"API-Admin", "api-admin", ""}},
	}
	require.Equal(t, []string{"api-admin"}, extractRolesFromClaims(claims, "realm_access.roles"))
	require.Nil(t, extractRolesFromClaims(claims, "groups"))
}
