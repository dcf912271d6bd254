package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" /API-Admin ")
	require.True(t, ok)
	require.Equal(t, RoleAdmin, role)

	_, ok = ParseRole("offline_access")
	require.False(t, ok)
}

func TestHighest(t *testing.T) {
	require.Equal(t, RoleDefault, Highest(nil))
	require.Equal(t, RoleDefault, Highest([]string{"offline_access"}))
	require.Equal(t, RoleStream, Highest([]string{"api-default", "/api-stream"}))
	require.Equal(t, RoleAdmin, Highest([]string{"api-stream", "api-admin", "api-default"}))
}

func TestKnownOrdersByRank(t *testing.T) {
	got := Known([]string{"api-default", "other", "api-admin", "/api-default"})
	require.Equal(t, []Role{RoleAdmin, RoleDefault}, got)
}

func TestPermissionsFor(t *testing.T) {
	for _, role := range []Role{RoleDefault, RoleStream, RoleAdmin} {
		set := PermissionsFor(role)
		require.Len(t, set, len(AllPermissions()))
		require.True(t, set.Has(PermViewOwnUsage), role)
		require.True(t, set.Has(PermCreateKeys), role)
		require.False(t, set.Has(PermManageUsers), role)
	}
	require.False(t, PermissionsFor(RoleStream).Has(PermViewAdminUsage))
	require.True(t, PermissionsFor(RoleAdmin).Has(PermViewAdminUsage))
	require.False(t, PermissionsFor(RoleDefault).Has(PermViewAdminUsage))
}

func TestEnsure(t *testing.T) {
	set := PermissionsFor(RoleDefault)
	require.NoError(t, set.Ensure(PermViewOwnKeys))
	require.ErrorIs(t, set.Ensure(PermViewAdminUsage), ErrForbidden)
	require.True(t, AtLeast(RoleAdmin, RoleStream))
	require.False(t, AtLeast(RoleDefault, RoleStream))
}
