package budget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ncecere/usage_console/internal/config"
)

// WebhookSink posts alerts as JSON to every webhook on the payload.
type WebhookSink struct {
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

func NewWebhookSink(cfg config.WebhookConfig, logger *slog.Logger) *WebhookSink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &WebhookSink{
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    250 * time.Millisecond,
		logger:     logger,
	}
}

func (s *WebhookSink) Notify(ctx context.Context, payload AlertPayload) error {
	if s == nil || len(payload.Webhooks) == 0 {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Subject:   payload.Subject,
		Level:     string(payload.Level),
		Window:    string(payload.Window.Window),
		Spent:     payload.Window.Spent.StringFixed(2),
		Limit:     payload.Window.Limit.StringFixed(2),
		Ratio:     payload.Window.Ratio,
		Currency:  payload.Currency,
		Timestamp: payload.Timestamp.UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, target := range payload.Webhooks {
		if strings.TrimSpace(target) == "" {
			continue
		}
		if err := s.postWithRetries(ctx, target, body); err != nil {
			s.logger.WarnContext(ctx, "budget webhook failed",
				slog.String("url", target),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
		}
	}
	return errors.Join(errs...)
}

func (s *WebhookSink) postWithRetries(ctx context.Context, url string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.post(ctx, url, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == s.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return lastErr
}

func (s *WebhookSink) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

type webhookPayload struct {
	Subject   string    `json:"subject"`
	Level     string    `json:"level"`
	Window    string    `json:"window"`
	Spent     string    `json:"spent"`
	Limit     string    `json:"limit"`
	Ratio     float64   `json:"ratio"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}
