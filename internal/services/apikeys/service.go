package apikeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/rbac"
	"github.com/ncecere/usage_console/internal/upstream"
)

// MaxNameLength bounds key names, counted in characters.
const MaxNameLength = 100

var (
	ErrServiceUnavailable = errors.New("api key service unavailable")
	ErrNameRequired       = errors.New("api key name is required")
	ErrNameTooLong        = fmt.Errorf("api key name exceeds %d characters", MaxNameLength)
	ErrIDRequired         = errors.New("api key id is required")
)

// KeySource is the upstream key API; *upstream.Client satisfies it.
type KeySource interface {
	ListAPIKeys(ctx context.Context, ts oauth2.TokenSource) ([]upstream.APIKey, error)
	GetAPIKey(ctx context.Context, ts oauth2.TokenSource, id string) (*upstream.APIKey, error)
	CreateAPIKey(ctx context.Context, ts oauth2.TokenSource, req upstream.APIKeyRequest) (*upstream.APIKeyWithSecret, error)
	RotateAPIKey(ctx context.Context, ts oauth2.TokenSource, id string, req upstream.APIKeyRequest) (*upstream.APIKeyWithSecret, error)
	DeactivateAPIKey(ctx context.Context, ts oauth2.TokenSource, id string) error
}

// Limiter throttles key mutations; *limits.RateLimiter satisfies it.
type Limiter interface {
	AllowPerMinute(ctx context.Context, key string, limit int) error
}

// Service manages the caller's own API keys on the AI platform.
type Service struct {
	source        KeySource
	limiter       Limiter
	mutationLimit int
}

func NewService(source KeySource, limiter Limiter, mutationsPerMinute int) *Service {
	return &Service{source: source, limiter: limiter, mutationLimit: mutationsPerMinute}
}

// Request is a create or rotate payload as sent by the console.
type Request struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Normalize trims the name and cleans up the permission list. The platform
// owns the permission vocabulary so values are not checked against a list.
func (r Request) Normalize() (upstream.APIKeyRequest, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return upstream.APIKeyRequest{}, ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return upstream.APIKeyRequest{}, ErrNameTooLong
	}
	perms := make([]string, 0, len(r.Permissions))
	seen := make(map[string]struct{}, len(r.Permissions))
	for _, p := range r.Permissions {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}
	return upstream.APIKeyRequest{Name: name, Permissions: perms}, nil
}

func (s *Service) List(ctx context.Context, viewer *auth.Principal) ([]upstream.APIKey, error) {
	if err := s.ready(viewer, rbac.PermViewOwnKeys); err != nil {
		return nil, err
	}
	return s.source.ListAPIKeys(ctx, viewer.TokenSource())
}

func (s *Service) Get(ctx context.Context, viewer *auth.Principal, id string) (*upstream.APIKey, error) {
	if err := s.ready(viewer, rbac.PermViewOwnKeys); err != nil {
		return nil, err
	}
	id, err := keyID(id)
	if err != nil {
		return nil, err
	}
	return s.source.GetAPIKey(ctx, viewer.TokenSource(), id)
}

// Create issues a new key. The secret is only ever returned here and by Rotate.
func (s *Service) Create(ctx context.Context, viewer *auth.Principal, req Request) (*upstream.APIKeyWithSecret, error) {
	if err := s.ready(viewer, rbac.PermCreateKeys); err != nil {
		return nil, err
	}
	body, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if err := s.throttle(ctx, viewer); err != nil {
		return nil, err
	}
	key, err := s.source.CreateAPIKey(ctx, viewer.TokenSource(), body)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "api key created",
		slog.String("subject", viewer.Subject),
		slog.String("key_id", key.ID),
	)
	return key, nil
}

// Rotate replaces id with a fresh key carrying req's name and permissions.
func (s *Service) Rotate(ctx context.Context, viewer *auth.Principal, id string, req Request) (*upstream.APIKeyWithSecret, error) {
	if err := s.ready(viewer, rbac.PermEditOwnKeys); err != nil {
		return nil, err
	}
	id, err := keyID(id)
	if err != nil {
		return nil, err
	}
	body, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if err := s.throttle(ctx, viewer); err != nil {
		return nil, err
	}
	key, err := s.source.RotateAPIKey(ctx, viewer.TokenSource(), id, body)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "api key rotated",
		slog.String("subject", viewer.Subject),
		slog.String("previous_key_id", id),
		slog.String("key_id", key.ID),
	)
	return key, nil
}

func (s *Service) Deactivate(ctx context.Context, viewer *auth.Principal, id string) error {
	if err := s.ready(viewer, rbac.PermDeactivateOwnKeys); err != nil {
		return err
	}
	id, err := keyID(id)
	if err != nil {
		return err
	}
	if err := s.source.DeactivateAPIKey(ctx, viewer.TokenSource(), id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "api key deactivated",
		slog.String("subject", viewer.Subject),
		slog.String("key_id", id),
	)
	return nil
}

func (s *Service) ready(viewer *auth.Principal, perm rbac.Permission) error {
	if s == nil || s.source == nil {
		return ErrServiceUnavailable
	}
	return viewer.Ensure(perm)
}

func (s *Service) throttle(ctx context.Context, viewer *auth.Principal) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.AllowPerMinute(ctx, "apikeys:"+viewer.Subject, s.mutationLimit)
}

func keyID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrIDRequired
	}
	return id, nil
}
