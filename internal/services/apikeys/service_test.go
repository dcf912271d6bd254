package apikeys

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/limits"
	"github.com/ncecere/usage_console/internal/rbac"
	"github.com/ncecere/usage_console/internal/upstream"
)

type fakeSource struct {
	keys        map[string]upstream.APIKey
	lastRequest upstream.APIKeyRequest
	tokens      []string
	seq         int
}

func newFakeSource() *fakeSource {
	return &fakeSource{keys: map[string]upstream.APIKey{}}
}

func (f *fakeSource) record(ts oauth2.TokenSource) {
	if tok, err := ts.Token(); err == nil {
		f.tokens = append(f.tokens, tok.AccessToken)
	}
}

func (f *fakeSource) ListAPIKeys(_ context.Context, ts oauth2.TokenSource) ([]upstream.APIKey, error) {
	f.record(ts)
	out := make([]upstream.APIKey, 0, len(f.keys))
	for _, k := range f.keys {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeSource) GetAPIKey(_ context.Context, ts oauth2.TokenSource, id string) (*upstream.APIKey, error) {
	f.record(ts)
	k, ok := f.keys[id]
	if !ok {
		return nil, &upstream.StatusError{Endpoint: "/apikeys/" + id, StatusCode: 404}
	}
	return &k, nil
}

func (f *fakeSource) issue(req upstream.APIKeyRequest) *upstream.APIKeyWithSecret {
	f.seq++
	f.lastRequest = req
	key := upstream.APIKey{ID: "key-" + strings.Repeat("x", f.seq), Name: req.Name, Permissions: req.Permissions, IsActive: true}
	f.keys[key.ID] = key
	return &upstream.APIKeyWithSecret{APIKey: key, Secret: "sk-" + key.ID}
}

func (f *fakeSource) CreateAPIKey(_ context.Context, ts oauth2.TokenSource, req upstream.APIKeyRequest) (*upstream.APIKeyWithSecret, error) {
	f.record(ts)
	return f.issue(req), nil
}

func (f *fakeSource) RotateAPIKey(_ context.Context, ts oauth2.TokenSource, id string, req upstream.APIKeyRequest) (*upstream.APIKeyWithSecret, error) {
	f.record(ts)
	old, ok := f.keys[id]
	if !ok {
		return nil, &upstream.StatusError{Endpoint: "/apikeys/" + id + "/rotate", StatusCode: 404}
	}
	old.IsActive = false
	f.keys[id] = old
	return f.issue(req), nil
}

func (f *fakeSource) DeactivateAPIKey(_ context.Context, ts oauth2.TokenSource, id string) error {
	f.record(ts)
	k, ok := f.keys[id]
	if !ok {
		return &upstream.StatusError{Endpoint: "/apikeys/" + id + "/deactivate", StatusCode: 404}
	}
	k.IsActive = false
	f.keys[id] = k
	return nil
}

func principal() *auth.Principal {
	return auth.NewPrincipal("user-1", "user", "user@example.com", []string{"api-stream"}, "user-token", time.Now().Add(time.Hour))
}

func TestRequestNormalize(t *testing.T) {
	body, err := Request{Name: "  ci pipeline ", Permissions: []string{" Read", "read", "", "WRITE "}}.Normalize()
	require.NoError(t, err)
	require.Equal(t, "ci pipeline", body.Name)
	require.Equal(t, []string{"read", "write"}, body.Permissions)

	_, err = Request{Name: "   "}.Normalize()
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = Request{Name: strings.Repeat("ä", MaxNameLength)}.Normalize()
	require.NoError(t, err)

	_, err = Request{Name: strings.Repeat("a", MaxNameLength+1)}.Normalize()
	require.ErrorIs(t, err, ErrNameTooLong)
}

func TestKeyLifecycle(t *testing.T) {
	source := newFakeSource()
	svc := NewService(source, nil, 0)
	ctx := context.Background()
	viewer := principal()

	created, err := svc.Create(ctx, viewer, Request{Name: "laptop", Permissions: []string{"Chat"}})
	require.NoError(t, err)
	require.NotEmpty(t, created.Secret)
	require.Equal(t, []string{"chat"}, created.Permissions)

	keys, err := svc.List(ctx, viewer)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	got, err := svc.Get(ctx, viewer, created.ID)
	require.NoError(t, err)
	require.Equal(t, "laptop", got.Name)

	rotated, err := svc.Rotate(ctx, viewer, created.ID, Request{Name: "laptop", Permissions: []string{"chat"}})
	require.NoError(t, err)
	require.NotEqual(t, created.ID, rotated.ID)
	require.False(t, source.keys[created.ID].IsActive)

	require.NoError(t, svc.Deactivate(ctx, viewer, rotated.ID))
	require.False(t, source.keys[rotated.ID].IsActive)

	_, err = svc.Get(ctx, viewer, "missing")
	require.ErrorIs(t, err, upstream.ErrNotFound)

	_, err = svc.Get(ctx, viewer, "  ")
	require.ErrorIs(t, err, ErrIDRequired)

	for _, tok := range source.tokens {
		require.Equal(t, "user-token", tok)
	}
}

func TestCreateValidatesBeforeCallingUpstream(t *testing.T) {
	source := newFakeSource()
	svc := NewService(source, nil, 0)

	_, err := svc.Create(context.Background(), principal(), Request{Name: ""})
	require.ErrorIs(t, err, ErrNameRequired)
	require.Empty(t, source.tokens)
}

func TestPermissionsEnforced(t *testing.T) {
	svc := NewService(newFakeSource(), nil, 0)

	_, err := svc.List(context.Background(), nil)
	require.ErrorIs(t, err, rbac.ErrForbidden)

	var nilSvc *Service
	_, err = nilSvc.List(context.Background(), principal())
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestMutationsAreRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := newFakeSource()
	svc := NewService(source, limits.NewRateLimiter(client), 2)
	ctx := context.Background()
	viewer := principal()

	_, err := svc.Create(ctx, viewer, Request{Name: "one"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, viewer, Request{Name: "two"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, viewer, Request{Name: "three"})
	require.ErrorIs(t, err, limits.ErrLimitExceeded)
	require.Len(t, source.keys, 2)

	// reads are not throttled
	_, err = svc.List(ctx, viewer)
	require.NoError(t, err)

	other := auth.NewPrincipal("user-2", "other", "", nil, "other-token", time.Now().Add(time.Hour))
	_, err = svc.Create(ctx, other, Request{Name: "mine"})
	require.NoError(t, err)
}
