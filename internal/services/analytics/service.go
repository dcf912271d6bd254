package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/cache"
	"github.com/ncecere/usage_console/internal/rbac"
	"github.com/ncecere/usage_console/internal/timeutil"
	"github.com/ncecere/usage_console/internal/upstream"
	"github.com/ncecere/usage_console/internal/usage"
)

var (
	ErrServiceUnavailable = errors.New("analytics service unavailable")
	ErrInvalidScope       = errors.New("invalid usage scope")
)

// Scope selects whose usage a snapshot covers.
type Scope string

const (
	ScopeAll Scope = "all"
	ScopeOwn Scope = "own"
)

// ParseScope accepts "", "all" and "own". Empty lets the caller's permissions decide.
func ParseScope(value string) (Scope, error) {
	switch s := Scope(strings.ToLower(strings.TrimSpace(value))); s {
	case "", ScopeAll, ScopeOwn:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, value)
	}
}

// UsageSource is the upstream usage API; *upstream.Client satisfies it.
type UsageSource interface {
	OwnUsage(ctx context.Context, ts oauth2.TokenSource, q upstream.Query) (*upstream.Report, error)
	OwnSummary(ctx context.Context, ts oauth2.TokenSource, q upstream.Query) (*upstream.Report, error)
	AdminSummary(ctx context.Context, ts oauth2.TokenSource, q upstream.Query) (*upstream.Report, error)
}

// Metrics receives snapshot counters; *observability.Provider satisfies it.
type Metrics interface {
	RecordNormalized(kind string, estimated bool, count int)
	RecordCacheLookup(hit bool)
	RecordDegradedSnapshot()
}

// Query describes a dashboard request.
type Query struct {
	Preset string
	From   string
	To     string
	Model  string
	User   string
	Scope  Scope
}

// Snapshot is the normalized, filtered usage for one range and scope.
type Snapshot struct {
	Scope     Scope                  `json:"scope"`
	Degraded  bool                   `json:"degraded"`
	Preset    string                 `json:"preset"`
	FromDate  string                 `json:"from_date"`
	ToDate    string                 `json:"to_date"`
	Timezone  string                 `json:"timezone"`
	Cached    bool                   `json:"cached"`
	FetchedAt time.Time              `json:"fetched_at"`
	Records   []usage.EnhancedRecord `json:"-"`

	window timeutil.Window
}

// Window is the resolved date range of the snapshot.
func (s *Snapshot) Window() timeutil.Window { return s.window }

type cachedReport struct {
	Scope     Scope          `json:"scope"`
	Degraded  bool           `json:"degraded"`
	FetchedAt time.Time      `json:"fetched_at"`
	Records   []usage.Record `json:"records"`
}

// Service builds usage snapshots for console viewers.
type Service struct {
	source     UsageSource
	normalizer *usage.Normalizer
	cache      cache.SnapshotCache
	metrics    Metrics
	loc        *time.Location
	now        func() time.Time
}

type Options struct {
	Source     UsageSource
	Normalizer *usage.Normalizer
	Cache      cache.SnapshotCache
	Metrics    Metrics
	Location   *time.Location
}

func NewService(opts Options) *Service {
	if opts.Normalizer == nil {
		opts.Normalizer = usage.NewNormalizer(nil)
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopSnapshotCache{}
	}
	return &Service{
		source:     opts.Source,
		normalizer: opts.Normalizer,
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		loc:        timeutil.EnsureLocation(opts.Location),
		now:        time.Now,
	}
}

// Location is the reporting timezone.
func (s *Service) Location() *time.Location {
	if s == nil {
		return time.UTC
	}
	return s.loc
}

// Snapshot resolves the range, picks the scope, fetches (or reuses) raw
// records, prices them with the live pricing table and applies the model and
// user filters.
func (s *Service) Snapshot(ctx context.Context, viewer *auth.Principal, q Query) (*Snapshot, error) {
	if s == nil || s.source == nil {
		return nil, ErrServiceUnavailable
	}
	if err := viewer.Ensure(rbac.PermViewOwnUsage); err != nil {
		return nil, err
	}
	window, err := timeutil.ResolveRange(q.Preset, q.From, q.To, s.now(), s.loc)
	if err != nil {
		return nil, err
	}

	scope := ScopeOwn
	if viewer.CanViewAllUsage() && q.Scope != ScopeOwn {
		scope = ScopeAll
	}

	report, cached, err := s.load(ctx, viewer, scope, window)
	if err != nil {
		return nil, err
	}

	records, err := s.normalizer.NormalizeAll(report.Records)
	if err != nil {
		return nil, err
	}
	s.recordNormalized(records)

	records = usage.FilterByModel(records, q.Model)
	records = usage.FilterByUser(records, q.User)

	return &Snapshot{
		Scope:     report.Scope,
		Degraded:  report.Degraded,
		Preset:    window.Period(),
		FromDate:  window.FromDate(),
		ToDate:    window.ToDate(),
		Timezone:  window.Timezone(),
		Cached:    cached,
		FetchedAt: report.FetchedAt,
		Records:   records,
		window:    window,
	}, nil
}

// Invalidate drops cached reports for the viewer's own and organization scopes.
func (s *Service) Invalidate(ctx context.Context, viewer *auth.Principal, q Query) error {
	if s == nil {
		return ErrServiceUnavailable
	}
	window, err := timeutil.ResolveRange(q.Preset, q.From, q.To, s.now(), s.loc)
	if err != nil {
		return err
	}
	s.cache.Delete(ctx, cacheKey(ScopeOwn, viewer, window))
	if viewer.CanViewAllUsage() {
		s.cache.Delete(ctx, cacheKey(ScopeAll, viewer, window))
	}
	return nil
}

func (s *Service) load(ctx context.Context, viewer *auth.Principal, scope Scope, window timeutil.Window) (cachedReport, bool, error) {
	key := cacheKey(scope, viewer, window)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var report cachedReport
		if err := json.Unmarshal(raw, &report); err == nil {
			s.recordCache(true)
			return report, true, nil
		}
		s.cache.Delete(ctx, key)
	}
	s.recordCache(false)

	report, err := s.fetch(ctx, viewer, scope, window)
	if err != nil {
		return cachedReport{}, false, err
	}
	// A degraded fallback stays under the requested scope's key so explicit
	// own-scope reads never see the degraded flag.
	if payload, err := json.Marshal(report); err == nil {
		s.cache.Set(ctx, key, payload)
	}
	return report, false, nil
}

func (s *Service) fetch(ctx context.Context, viewer *auth.Principal, scope Scope, window timeutil.Window) (cachedReport, error) {
	ts := viewer.TokenSource()
	q := upstream.Query{FromDate: window.FromDate(), ToDate: window.ToDate()}

	if scope == ScopeAll {
		adminQuery := q
		adminQuery.By = "user"
		report, err := s.source.AdminSummary(ctx, ts, adminQuery)
		switch {
		case err == nil:
			return cachedReport{Scope: ScopeAll, FetchedAt: s.now(), Records: report.Records}, nil
		case errors.Is(err, upstream.ErrPermissionDenied):
			slog.WarnContext(ctx, "organization usage denied, serving own usage",
				slog.String("subject", viewer.Subject),
			)
			if s.metrics != nil {
				s.metrics.RecordDegradedSnapshot()
			}
			own, err := s.fetchOwn(ctx, ts, q)
			if err != nil {
				return cachedReport{}, err
			}
			own.Degraded = true
			return own, nil
		default:
			return cachedReport{}, fmt.Errorf("fetch organization usage: %w", err)
		}
	}
	return s.fetchOwn(ctx, ts, q)
}

// fetchOwn prefers detailed records and falls back to the per-day summary
// when the detailed endpoint fails for any reason other than denial.
func (s *Service) fetchOwn(ctx context.Context, ts oauth2.TokenSource, q upstream.Query) (cachedReport, error) {
	report, err := s.source.OwnUsage(ctx, ts, q)
	if err == nil {
		return cachedReport{Scope: ScopeOwn, FetchedAt: s.now(), Records: report.Records}, nil
	}
	if errors.Is(err, upstream.ErrPermissionDenied) || ctx.Err() != nil {
		return cachedReport{}, err
	}
	slog.WarnContext(ctx, "detailed usage failed, using summary", slog.String("error", err.Error()))

	summaryQuery := q
	summaryQuery.By = "day"
	summary, err := s.source.OwnSummary(ctx, ts, summaryQuery)
	if err != nil {
		return cachedReport{}, fmt.Errorf("fetch own usage: %w", err)
	}
	return cachedReport{Scope: ScopeOwn, FetchedAt: s.now(), Records: summary.Records}, nil
}

func (s *Service) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(hit)
	}
}

func (s *Service) recordNormalized(records []usage.EnhancedRecord) {
	if s.metrics == nil {
		return
	}
	type bucket struct {
		kind      usage.Kind
		estimated bool
	}
	counts := make(map[bucket]int)
	for _, rec := range records {
		counts[bucket{rec.Kind, rec.Estimated}]++
	}
	for b, n := range counts {
		s.metrics.RecordNormalized(string(b.kind), b.estimated, n)
	}
}

func cacheKey(scope Scope, viewer *auth.Principal, window timeutil.Window) string {
	owner := "org"
	if scope == ScopeOwn {
		owner = "sub:" + viewer.Subject
	}
	return fmt.Sprintf("usage:%s:%s:%s:%s", owner, window.FromDate(), window.ToDate(), window.Timezone())
}
