package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/cache"
	"github.com/ncecere/usage_console/internal/rbac"
	"github.com/ncecere/usage_console/internal/upstream"
	"github.com/ncecere/usage_console/internal/usage"
)

type stubSource struct {
	admin    []usage.Record
	own      []usage.Record
	summary  []usage.Record
	adminErr error
	ownErr   error
	sumErr   error

	adminCalls   int
	ownCalls     int
	summaryCalls int
	lastQuery    upstream.Query
	tokens       []string
}

func (s *stubSource) token(ts oauth2.TokenSource) {
	if tok, err := ts.Token(); err == nil {
		s.tokens = append(s.tokens, tok.AccessToken)
	}
}

func (s *stubSource) OwnUsage(_ context.Context, ts oauth2.TokenSource, q upstream.Query) (*upstream.Report, error) {
	s.ownCalls++
	s.lastQuery = q
	s.token(ts)
	if s.ownErr != nil {
		return nil, s.ownErr
	}
	return &upstream.Report{Records: s.own}, nil
}

func (s *stubSource) OwnSummary(_ context.Context, ts oauth2.TokenSource, q upstream.Query) (*upstream.Report, error) {
	s.summaryCalls++
	s.lastQuery = q
	if s.sumErr != nil {
		return nil, s.sumErr
	}
	return &upstream.Report{Records: s.summary}, nil
}

func (s *stubSource) AdminSummary(_ context.Context, ts oauth2.TokenSource, q upstream.Query) (*upstream.Report, error) {
	s.adminCalls++
	s.lastQuery = q
	s.token(ts)
	if s.adminErr != nil {
		return nil, s.adminErr
	}
	return &upstream.Report{Records: s.admin}, nil
}

type stubMetrics struct {
	hits, misses, degraded int
	normalized             map[string]int
}

func (m *stubMetrics) RecordNormalized(kind string, estimated bool, count int) {
	if m.normalized == nil {
		m.normalized = map[string]int{}
	}
	if estimated {
		kind += "/estimated"
	}
	m.normalized[kind] += count
}

func (m *stubMetrics) RecordCacheLookup(hit bool) {
	if hit {
		m.hits++
		return
	}
	m.misses++
}

func (m *stubMetrics) RecordDegradedSnapshot() { m.degraded++ }

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func rec(user, model string, requests int64, day int) usage.Record {
	return usage.Record{
		Kind:         usage.KindCompletion,
		Model:        model,
		UserID:       user,
		RequestCount: requests,
		InputTokens:  int64Ptr(1000 * requests),
		OutputTokens: int64Ptr(500 * requests),
		Period:       usage.Period{Year: intPtr(2025), Month: intPtr(3), Day: intPtr(day)},
	}
}

func admin() *auth.Principal {
	return auth.NewPrincipal("admin-1", "admin", "admin@example.com", []string{string(rbac.RoleAdmin)}, "admin-token", time.Now().Add(time.Hour))
}

func member() *auth.Principal {
	return auth.NewPrincipal("user-1", "user", "user@example.com", nil, "user-token", time.Now().Add(time.Hour))
}

func newTestService(source UsageSource, c cache.SnapshotCache, m Metrics) *Service {
	svc := NewService(Options{Source: source, Cache: c, Metrics: m, Location: time.UTC})
	svc.now = func() time.Time { return time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestSnapshotAdminScopeAll(t *testing.T) {
	source := &stubSource{admin: []usage.Record{
		rec("u1", "gpt-4o", 3, 10),
		rec("u2", "gpt-4o-mini", 5, 11),
		rec("u1", "gpt-4o-mini", 1, 12),
	}}
	svc := newTestService(source, nil, nil)

	snap, err := svc.Snapshot(context.Background(), admin(), Query{Preset: "7d"})
	require.NoError(t, err)
	require.Equal(t, ScopeAll, snap.Scope)
	require.False(t, snap.Degraded)
	require.Equal(t, "2025-03-06", snap.FromDate)
	require.Equal(t, "2025-03-12", snap.ToDate)
	require.Len(t, snap.Records, 3)
	require.Equal(t, 1, source.adminCalls)
	require.Equal(t, "user", source.lastQuery.By)
	require.Equal(t, []string{"admin-token"}, source.tokens)

	overview := snap.Overview()
	require.EqualValues(t, 9, overview.Aggregation.TotalRequests)
	require.Equal(t, 2, overview.Aggregation.UniqueUsers)
	require.Equal(t, "u2", overview.TopUsers[0].Key)
	require.Len(t, overview.Series.Points, 7)
}

func TestSnapshotForcedOwnScope(t *testing.T) {
	source := &stubSource{own: []usage.Record{rec("admin-1", "gpt-4o", 2, 12)}}
	svc := newTestService(source, nil, nil)

	snap, err := svc.Snapshot(context.Background(), admin(), Query{Scope: ScopeOwn})
	require.NoError(t, err)
	require.Equal(t, ScopeOwn, snap.Scope)
	require.Zero(t, source.adminCalls)
	require.Equal(t, 1, source.ownCalls)
}

func TestSnapshotMemberNeverRequestsOrganization(t *testing.T) {
	source := &stubSource{own: []usage.Record{rec("user-1", "gpt-4o", 2, 12)}}
	svc := newTestService(source, nil, nil)

	snap, err := svc.Snapshot(context.Background(), member(), Query{Scope: ScopeAll})
	require.NoError(t, err)
	require.Equal(t, ScopeOwn, snap.Scope)
	require.Zero(t, source.adminCalls)
}

func TestSnapshotDegradesWhenOrganizationDenied(t *testing.T) {
	source := &stubSource{
		adminErr: &upstream.StatusError{Endpoint: "/admin/usage/ai/summarize", StatusCode: 403},
		own:      []usage.Record{rec("admin-1", "gpt-4o", 2, 12)},
	}
	metrics := &stubMetrics{}
	svc := newTestService(source, nil, metrics)

	snap, err := svc.Snapshot(context.Background(), admin(), Query{})
	require.NoError(t, err)
	require.Equal(t, ScopeOwn, snap.Scope)
	require.True(t, snap.Degraded)
	require.Len(t, snap.Records, 1)
	require.Equal(t, 1, metrics.degraded)
}

func TestSnapshotOwnDenialSurfaces(t *testing.T) {
	source := &stubSource{ownErr: &upstream.StatusError{Endpoint: "/usage/ai", StatusCode: 401}}
	svc := newTestService(source, nil, nil)

	_, err := svc.Snapshot(context.Background(), member(), Query{})
	require.ErrorIs(t, err, upstream.ErrPermissionDenied)
	require.Zero(t, source.summaryCalls)
}

func TestSnapshotFallsBackToSummary(t *testing.T) {
	source := &stubSource{
		ownErr:  &upstream.StatusError{Endpoint: "/usage/ai", StatusCode: 502},
		summary: []usage.Record{rec("user-1", "gpt-4o", 4, 12)},
	}
	svc := newTestService(source, nil, nil)

	snap, err := svc.Snapshot(context.Background(), member(), Query{})
	require.NoError(t, err)
	require.Equal(t, 1, source.summaryCalls)
	require.Equal(t, "day", source.lastQuery.By)
	require.EqualValues(t, 4, snap.Records[0].RequestCount)

	source.sumErr = errors.New("unreachable")
	_, err = newTestService(source, nil, nil).Snapshot(context.Background(), member(), Query{})
	require.ErrorContains(t, err, "unreachable")
}

func TestSnapshotFiltersAfterNormalizing(t *testing.T) {
	source := &stubSource{admin: []usage.Record{
		rec("u1", "gpt-4o", 3, 10),
		rec("u2", "gpt-4o-mini", 5, 11),
		rec("u1", "gpt-4o-mini", 1, 12),
	}}
	svc := newTestService(source, nil, nil)

	snap, err := svc.Snapshot(context.Background(), admin(), Query{Model: "GPT-4O-MINI", User: "u1"})
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	require.EqualValues(t, 1, snap.Records[0].RequestCount)
}

func TestSnapshotUsesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &stubSource{admin: []usage.Record{rec("u1", "gpt-4o", 3, 10)}}
	metrics := &stubMetrics{}
	svc := newTestService(source, cache.NewRedisSnapshotCache(client, time.Minute), metrics)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx, admin(), Query{Preset: "thisMonth"})
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := svc.Snapshot(ctx, admin(), Query{Preset: "thisMonth"})
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Len(t, second.Records, len(first.Records))
	require.Equal(t, first.Records[0].Cost.String(), second.Records[0].Cost.String())
	require.Equal(t, 1, source.adminCalls)
	require.Equal(t, 1, metrics.hits)
	require.Equal(t, 1, metrics.misses)
	require.Equal(t, 2, metrics.normalized[string(usage.KindCompletion)])

	require.NoError(t, svc.Invalidate(ctx, admin(), Query{Preset: "thisMonth"}))
	_, err = svc.Snapshot(ctx, admin(), Query{Preset: "thisMonth"})
	require.NoError(t, err)
	require.Equal(t, 2, source.adminCalls)
}

func TestDegradedSnapshotCachedUnderOrganizationKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &stubSource{
		adminErr: &upstream.StatusError{Endpoint: "/admin/usage/ai/summarize", StatusCode: 403},
		own:      []usage.Record{rec("admin-1", "gpt-4o", 2, 12)},
	}
	svc := newTestService(source, cache.NewRedisSnapshotCache(client, time.Minute), nil)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx, admin(), Query{})
	require.NoError(t, err)
	require.True(t, first.Degraded)

	retry, err := svc.Snapshot(ctx, admin(), Query{})
	require.NoError(t, err)
	require.True(t, retry.Cached)
	require.True(t, retry.Degraded)
	require.Equal(t, 1, source.adminCalls)
	require.Equal(t, 1, source.ownCalls)

	own, err := svc.Snapshot(ctx, admin(), Query{Scope: ScopeOwn})
	require.NoError(t, err)
	require.False(t, own.Cached)
	require.False(t, own.Degraded)
	require.Equal(t, ScopeOwn, own.Scope)
	require.Equal(t, 2, source.ownCalls)
}

func TestSnapshotRejectsBadRange(t *testing.T) {
	svc := newTestService(&stubSource{}, nil, nil)
	_, err := svc.Snapshot(context.Background(), member(), Query{Preset: "fortnight"})
	require.Error(t, err)
}

func TestSnapshotRequiresPrincipal(t *testing.T) {
	svc := newTestService(&stubSource{}, nil, nil)
	_, err := svc.Snapshot(context.Background(), nil, Query{})
	require.ErrorIs(t, err, rbac.ErrForbidden)
}

func TestViews(t *testing.T) {
	source := &stubSource{admin: []usage.Record{
		rec("u1", "gpt-4o", 3, 10),
		rec("u2", "gpt-4o-mini", 5, 11),
		rec("u1", "gpt-4o-mini", 1, 11),
		{Kind: usage.KindCompletion, Model: "gpt-4o", UserID: "u3", RequestCount: 1},
	}}
	svc := newTestService(source, nil, nil)
	snap, err := svc.Snapshot(context.Background(), admin(), Query{Preset: "7d"})
	require.NoError(t, err)

	users := snap.Users(2)
	require.Len(t, users.Items, 2)
	require.Equal(t, "u2", users.Items[0].Key)

	models := snap.Models(0)
	require.Len(t, models.Items, 2)
	require.Equal(t, "gpt-4o-mini", models.Items[0].Key)

	grouped, err := snap.Groups(usage.DimensionDay)
	require.NoError(t, err)
	keys := make([]string, 0, len(grouped.Groups))
	for _, g := range grouped.Groups {
		keys = append(keys, g.Key)
	}
	require.Equal(t, []string{"2025-03-10", "2025-03-11", usage.UnknownBucket}, keys)
	require.EqualValues(t, 6, grouped.Groups[1].Aggregation.TotalRequests)

	_, err = snap.Groups(usage.Dimension("week"))
	require.ErrorIs(t, err, usage.ErrInvalidDimension)

	series := snap.Series()
	require.Len(t, series.Series.Points, 7)
	require.EqualValues(t, 1, series.Series.UndatedRequests)

	page := snap.Page(1, 2)
	require.Equal(t, 4, page.Total)
	require.Len(t, page.Records, 2)
	require.Len(t, snap.Page(10, 5).Records, 0)
}
