package budget

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type AlertLevel string

const (
	AlertLevelNone     AlertLevel = "none"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelExceeded AlertLevel = "exceeded"
)

func alertSeverity(level AlertLevel) int {
	switch level {
	case AlertLevelExceeded:
		return 2
	case AlertLevelWarning:
		return 1
	default:
		return 0
	}
}

// AlertPayload describes one window crossing its warning or hard limit.
type AlertPayload struct {
	Subject   string
	Level     AlertLevel
	Window    WindowStatus
	Currency  string
	Webhooks  []string
	Timestamp time.Time
}

type AlertSink interface {
	Notify(ctx context.Context, payload AlertPayload) error
}

type LogAlertSink struct {
	logger *slog.Logger
}

func NewLogAlertSink(logger *slog.Logger) *LogAlertSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAlertSink{logger: logger}
}

func (s *LogAlertSink) Notify(ctx context.Context, payload AlertPayload) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "budget alert",
		slog.String("subject", payload.Subject),
		slog.String("level", string(payload.Level)),
		slog.String("window", string(payload.Window.Window)),
		slog.String("spent", payload.Window.Spent.StringFixed(2)),
		slog.String("limit", payload.Window.Limit.StringFixed(2)),
		slog.String("currency", payload.Currency),
		slog.Any("webhooks", payload.Webhooks),
		slog.Time("timestamp", payload.Timestamp.UTC()),
	)
	return nil
}

// CompositeSink fans out notifications to multiple sinks.
type CompositeSink struct {
	sinks []AlertSink
}

// NewCompositeSink drops nil sinks and returns nil when none remain.
func NewCompositeSink(sinks ...AlertSink) AlertSink {
	filtered := make([]AlertSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		filtered = append(filtered, sink)
	}
	if len(filtered) == 0 {
		return nil
	}
	return &CompositeSink{sinks: filtered}
}

func (c *CompositeSink) Notify(ctx context.Context, payload AlertPayload) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, sink := range c.sinks {
		if err := sink.Notify(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
