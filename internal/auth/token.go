package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ncecere/usage_console/internal/config"
)

// DevTokenManager issues and verifies HS256 tokens for local development and
// tests, standing in for the identity provider.
type DevTokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// DevIdentity describes the caller a dev token is issued for.
type DevIdentity struct {
	Subject  string
	Username string
	Email    string
	Groups   []string
}

func NewDevTokenManager(cfg config.DevAuthConfig) (*DevTokenManager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret required")
	}
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("token ttl must be > 0")
	}
	return &DevTokenManager{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TokenTTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Issue signs a token for id and returns it with its expiry.
func (tm *DevTokenManager) Issue(id DevIdentity) (string, time.Time, error) {
	if id.Subject == "" {
		return "", time.Time{}, errors.New("subject required")
	}
	now := tm.now()
	exp := now.Add(tm.ttl)
	groups := make([]any, 0, len(id.Groups))
	for _, g := range id.Groups {
		groups = append(groups, g)
	}
	claims := jwt.MapClaims{
		"sub":                id.Subject,
		"email":              id.Email,
		"preferred_username": id.Username,
		"groups":             groups,
		"iat":                now.Unix(),
		"exp":                exp.Unix(),
		"iss":                tm.issuer,
		"typ":                "access",
		"jti":                uuid.NewString(),
	}
	signed, err := tm.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (tm *DevTokenManager) Verify(_ context.Context, rawToken string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (any, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	email, _ := claims["email"].(string)
	username, _ := claims["preferred_username"].(string)
	return NewPrincipal(sub, username, email, extractRolesFromClaims(claims, "groups"), rawToken, expiresAt), nil
}

func (tm *DevTokenManager) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
