package upstream

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// APIKey is an upstream API key without its secret.
type APIKey struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at"`
	ExpiresAt   *string  `json:"expires_at"`
	IsActive    bool     `json:"is_active"`
}

// APIKeyWithSecret is returned once, on create and rotate.
type APIKeyWithSecret struct {
	APIKey
	Secret string `json:"secret"`
}

// APIKeyRequest is the body of create and rotate calls.
type APIKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func keyPath(id string) string {
	return "/apikeys/" + url.PathEscape(id)
}

func (c *Client) ListAPIKeys(ctx context.Context, ts oauth2.TokenSource) ([]APIKey, error) {
	var keys []APIKey
	if err := c.do(ctx, ts, http.MethodGet, "/apikeys", nil, nil, &keys); err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []APIKey{}
	}
	return keys, nil
}

func (c *Client) GetAPIKey(ctx context.Context, ts oauth2.TokenSource, id string) (*APIKey, error) {
	var key APIKey
	if err := c.do(ctx, ts, http.MethodGet, keyPath(id), nil, nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func (c *Client) CreateAPIKey(ctx context.Context, ts oauth2.TokenSource, req APIKeyRequest) (*APIKeyWithSecret, error) {
	var key APIKeyWithSecret
	if err := c.do(ctx, ts, http.MethodPost, "/apikeys", nil, req, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// RotateAPIKey deactivates id upstream and returns its replacement.
func (c *Client) RotateAPIKey(ctx context.Context, ts oauth2.TokenSource, id string, req APIKeyRequest) (*APIKeyWithSecret, error) {
	var key APIKeyWithSecret
	if err := c.do(ctx, ts, http.MethodPost, keyPath(id)+"/rotate", nil, req, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func (c *Client) DeactivateAPIKey(ctx context.Context, ts oauth2.TokenSource, id string) error {
	return c.do(ctx, ts, http.MethodPut, keyPath(id)+"/deactivate", nil, nil, nil)
}
