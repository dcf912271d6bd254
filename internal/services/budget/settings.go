package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	decimal "github.com/shopspring/decimal"

	"github.com/ncecere/usage_console/internal/config"
	"github.com/ncecere/usage_console/internal/db"
	"github.com/ncecere/usage_console/internal/timeutil"
	"github.com/ncecere/usage_console/internal/usage"
)

// OrganizationSubject holds the organization-wide limits evaluated by the
// monitor.
const OrganizationSubject = "organization"

var (
	ErrServiceUnavailable = errors.New("budget service unavailable")
	ErrInvalidSettings    = errors.New("invalid budget settings")
)

// Settings are the limits for one subject, in Currency.
type Settings struct {
	Subject          string          `json:"subject"`
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
	WeeklyLimit      decimal.Decimal `json:"weekly_limit"`
	DailyLimit       decimal.Decimal `json:"daily_limit"`
	Currency         string          `json:"currency"`
	WarningThreshold float64         `json:"warning_threshold"`
	UpdatedAt        *time.Time      `json:"updated_at,omitempty"`
	Default          bool            `json:"default"`
}

// DefaultSettings builds the configured defaults for subject.
func DefaultSettings(cfg config.BudgetConfig, subject string) Settings {
	return Settings{
		Subject:          subject,
		MonthlyLimit:     decimal.NewFromFloat(cfg.DefaultMonthly),
		WeeklyLimit:      decimal.NewFromFloat(cfg.DefaultWeekly),
		DailyLimit:       decimal.NewFromFloat(cfg.DefaultDaily),
		Currency:         cfg.Currency,
		WarningThreshold: cfg.WarningThreshold,
		Default:          true,
	}
}

// Validate normalizes s in place.
func (s *Settings) Validate() error {
	s.Subject = strings.TrimSpace(s.Subject)
	if s.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidSettings)
	}
	for name, v := range map[string]decimal.Decimal{
		"monthly_limit": s.MonthlyLimit,
		"weekly_limit":  s.WeeklyLimit,
		"daily_limit":   s.DailyLimit,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidSettings, name)
		}
	}
	if s.WarningThreshold <= 0 || s.WarningThreshold >= 1 {
		return fmt.Errorf("%w: warning_threshold must be between 0 and 1", ErrInvalidSettings)
	}
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if len(s.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3 letter code", ErrInvalidSettings)
	}
	return nil
}

// SettingsStore is satisfied by *db.Queries.
type SettingsStore interface {
	GetBudgetSettings(ctx context.Context, subject string) (db.BudgetSetting, error)
	UpsertBudgetSettings(ctx context.Context, arg db.UpsertBudgetSettingsParams) (db.BudgetSetting, error)
	ListBudgetAlertEvents(ctx context.Context, arg db.ListBudgetAlertEventsParams) ([]db.BudgetAlertEvent, error)
}

// Service reads and writes budget settings and evaluates spend against them.
type Service struct {
	store    SettingsStore
	defaults config.BudgetConfig
	loc      *time.Location
	now      func() time.Time
}

func NewService(store SettingsStore, defaults config.BudgetConfig, loc *time.Location) *Service {
	return &Service{store: store, defaults: defaults, loc: loc, now: time.Now}
}

// Get returns the stored settings for subject, or the defaults when none are
// stored.
func (s *Service) Get(ctx context.Context, subject string) (Settings, error) {
	if s == nil {
		return Settings{}, ErrServiceUnavailable
	}
	subject = strings.TrimSpace(subject)
	if s.store == nil {
		return DefaultSettings(s.defaults, subject), nil
	}
	row, err := s.store.GetBudgetSettings(ctx, subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultSettings(s.defaults, subject), nil
		}
		return Settings{}, fmt.Errorf("load budget settings: %w", err)
	}
	return settingsFromRow(row), nil
}

// Put persists settings after validation.
func (s *Service) Put(ctx context.Context, settings Settings) (Settings, error) {
	if s == nil || s.store == nil {
		return Settings{}, ErrServiceUnavailable
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	row, err := s.store.UpsertBudgetSettings(ctx, db.UpsertBudgetSettingsParams{
		Subject:          settings.Subject,
		MonthlyLimit:     db.NumericFromDecimal(settings.MonthlyLimit),
		WeeklyLimit:      db.NumericFromDecimal(settings.WeeklyLimit),
		DailyLimit:       db.NumericFromDecimal(settings.DailyLimit),
		Currency:         settings.Currency,
		WarningThreshold: settings.WarningThreshold,
	})
	if err != nil {
		return Settings{}, fmt.Errorf("store budget settings: %w", err)
	}
	slog.InfoContext(ctx, "budget settings updated",
		slog.String("subject", settings.Subject),
		slog.String("monthly_limit", settings.MonthlyLimit.String()),
		slog.String("currency", settings.Currency),
	)
	return settingsFromRow(row), nil
}

// Status evaluates records against the subject's settings.
func (s *Service) Status(ctx context.Context, subject string, records []usage.EnhancedRecord) (Status, error) {
	settings, err := s.Get(ctx, subject)
	if err != nil {
		return Status{}, err
	}
	return Evaluate(records, settings, s.now(), s.loc), nil
}

// AlertEvent is one persisted alert delivery attempt.
type AlertEvent struct {
	ID        string          `json:"id"`
	Window    Window          `json:"window"`
	Level     AlertLevel      `json:"level"`
	Spent     decimal.Decimal `json:"spent"`
	Limit     decimal.Decimal `json:"limit"`
	Webhooks  []string        `json:"webhooks"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RecentAlerts lists the newest alert events for subject.
func (s *Service) RecentAlerts(ctx context.Context, subject string, limit int) ([]AlertEvent, error) {
	if s == nil || s.store == nil {
		return nil, ErrServiceUnavailable
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.store.ListBudgetAlertEvents(ctx, db.ListBudgetAlertEventsParams{
		Subject: strings.TrimSpace(subject),
		Limit:   int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list budget alerts: %w", err)
	}
	out := make([]AlertEvent, 0, len(rows))
	for _, row := range rows {
		ev := AlertEvent{
			Window:    Window(row.BudgetWindow),
			Level:     AlertLevel(row.Level),
			Spent:     db.DecimalFromNumeric(row.Spent),
			Limit:     db.DecimalFromNumeric(row.LimitAmount),
			Webhooks:  row.Webhooks,
			Success:   row.Success,
			Error:     row.Error.String,
			CreatedAt: row.CreatedAt.Time,
		}
		if row.ID.Valid {
			ev.ID = uuid.UUID(row.ID.Bytes).String()
		}
		out = append(out, ev)
	}
	return out, nil
}

// FetchRange is the first and last day of usage needed to evaluate every
// window. Early in a month the ISO week starts in the previous month.
func (s *Service) FetchRange() (time.Time, time.Time) {
	loc := timeutil.EnsureLocation(s.loc)
	today := timeutil.TruncateToDay(s.now(), loc)
	from := timeutil.StartOfMonth(today)
	if week := timeutil.StartOfISOWeek(today); week.Before(from) {
		from = week
	}
	return from, today
}

func settingsFromRow(row db.BudgetSetting) Settings {
	out := Settings{
		Subject:          row.Subject,
		MonthlyLimit:     db.DecimalFromNumeric(row.MonthlyLimit),
		WeeklyLimit:      db.DecimalFromNumeric(row.WeeklyLimit),
		DailyLimit:       db.DecimalFromNumeric(row.DailyLimit),
		Currency:         row.Currency,
		WarningThreshold: row.WarningThreshold,
	}
	if row.UpdatedAt.Valid {
		ts := row.UpdatedAt.Time
		out.UpdatedAt = &ts
	}
	return out
}

// Location is the zone budget windows are computed in.
func (s *Service) Location() *time.Location {
	if s == nil {
		return time.UTC
	}
	return timeutil.EnsureLocation(s.loc)
}
