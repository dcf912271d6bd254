package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ncecere/usage_console/internal/config"
)

const maxResponseBytes = 32 << 20

var (
	ErrPermissionDenied = errors.New("upstream permission denied")
	ErrNotFound         = errors.New("upstream resource not found")
	ErrMissingToken     = errors.New("upstream token source required")
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream %s returned %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Is maps 401/403 to ErrPermissionDenied and 404 to ErrNotFound.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Observer receives one call per upstream round trip.
type Observer interface {
	RecordUpstreamRequest(endpoint string, status int, elapsed time.Duration)
}

// Client talks to the AI platform's usage and API key endpoints on behalf of
// a caller whose token is supplied per call.
type Client struct {
	baseURL  string
	timeout  time.Duration
	base     http.RoundTripper
	observer Observer
}

type Option func(*Client)

// WithTransport overrides the base round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// WithObserver records request latency and status.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

func New(cfg config.UpstreamConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("upstream base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{baseURL: base, timeout: timeout, base: http.DefaultTransport}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ServiceTokenSource returns a client-credentials token source for background jobs.
func ServiceTokenSource(ctx context.Context, cfg config.ServiceAccountConfig) (oauth2.TokenSource, error) {
	if !cfg.Configured() {
		return nil, errors.New("upstream service account not configured")
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return cc.TokenSource(ctx), nil
}

func (c *Client) do(ctx context.Context, ts oauth2.TokenSource, method, endpoint string, query url.Values, body any, out any) error {
	if ts == nil {
		return ErrMissingToken
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{
		Timeout:   c.timeout,
		Transport: &oauth2.Transport{Source: ts, Base: c.base},
	}
	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.observe(endpoint, 0, started)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token refresh failed: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	c.observe(endpoint, resp.StatusCode, started)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if dec, ok := out.(interface{ decode([]byte) error }); ok {
		return dec.decode(data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) observe(endpoint string, status int, started time.Time) {
	if c.observer != nil {
		c.observer.RecordUpstreamRequest(endpoint, status, time.Since(started))
	}
}

func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.Message, payload.Error, payload.Detail} {
			if s != "" {
				return s
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
