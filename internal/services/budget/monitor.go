package budget

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/ncecere/usage_console/internal/timeutil"
	"github.com/ncecere/usage_console/internal/upstream"
	"github.com/ncecere/usage_console/internal/usage"
)

// SummarySource fetches organization-wide usage; *upstream.Client satisfies it.
type SummarySource interface {
	AdminSummary(ctx context.Context, ts oauth2.TokenSource, q upstream.Query) (*upstream.Report, error)
}

// Monitor periodically evaluates organization spend and dispatches alerts.
type Monitor struct {
	budgets    *Service
	source     SummarySource
	tokens     oauth2.TokenSource
	normalizer *usage.Normalizer
	dispatcher *AlertDispatcher
	interval   time.Duration
	logger     *slog.Logger
}

type MonitorOptions struct {
	Budgets    *Service
	Source     SummarySource
	Tokens     oauth2.TokenSource
	Normalizer *usage.Normalizer
	Dispatcher *AlertDispatcher
	Interval   time.Duration
	Logger     *slog.Logger
}

func NewMonitor(opts MonitorOptions) (*Monitor, error) {
	if opts.Budgets == nil || opts.Source == nil || opts.Tokens == nil {
		return nil, errors.New("budget monitor requires budgets, usage source and service token")
	}
	if opts.Normalizer == nil {
		opts.Normalizer = usage.NewNormalizer(nil)
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Monitor{
		budgets:    opts.Budgets,
		source:     opts.Source,
		tokens:     opts.Tokens,
		normalizer: opts.Normalizer,
		dispatcher: opts.Dispatcher,
		interval:   opts.Interval,
		logger:     opts.Logger,
	}, nil
}

// Run evaluates once immediately, then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Check(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("budget check failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check fetches organization usage for the budget windows and evaluates it.
func (m *Monitor) Check(ctx context.Context) (Status, error) {
	from, to := m.budgets.FetchRange()
	report, err := m.source.AdminSummary(ctx, m.tokens, upstream.Query{
		FromDate: from.Format(timeutil.DateLayout),
		ToDate:   to.Format(timeutil.DateLayout),
		By:       "day",
	})
	if err != nil {
		return Status{}, err
	}
	records, err := m.normalizer.NormalizeAll(report.Records)
	if err != nil {
		return Status{}, err
	}
	status, err := m.budgets.Status(ctx, OrganizationSubject, records)
	if err != nil {
		return Status{}, err
	}
	m.logger.Debug("budget evaluated",
		slog.String("level", string(status.Level)),
		slog.Int("records", len(records)),
	)
	if _, err := m.dispatcher.Dispatch(ctx, status); err != nil {
		return status, err
	}
	return status, nil
}
