package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Role is a console role carried in the identity provider's group claim.
type Role string

const (
	RoleDefault Role = "api-default"
	RoleStream  Role = "api-stream"
	RoleAdmin   Role = "api-admin"
)

type RoleRank int

var roleOrder = map[Role]RoleRank{
	RoleAdmin:   3,
	RoleStream:  2,
	RoleDefault: 1,
}

// Permission names one capability checked by services before acting.
type Permission string

const (
	PermViewOwnKeys       Permission = "canViewOwnKeys"
	PermCreateKeys        Permission = "canCreateKeys"
	PermEditOwnKeys       Permission = "canEditOwnKeys"
	PermDeactivateOwnKeys Permission = "canDeactivateOwnKeys"
	PermViewOwnUsage      Permission = "canViewOwnUsage"
	PermViewAdminUsage    Permission = "canViewAdminUsage"
	PermManageUsers       Permission = "canManageUsers"
)

// AllPermissions lists every permission in display order.
func AllPermissions() []Permission {
	return []Permission{
		PermViewOwnKeys, PermCreateKeys, PermEditOwnKeys, PermDeactivateOwnKeys,
		PermViewOwnUsage, PermViewAdminUsage, PermManageUsers,
	}
}

var basePermissions = []Permission{
	PermViewOwnKeys, PermCreateKeys, PermEditOwnKeys, PermDeactivateOwnKeys, PermViewOwnUsage,
}

var rolePermissions = map[Role][]Permission{
	RoleDefault: basePermissions,
	RoleStream:  basePermissions,
	RoleAdmin:   append(append([]Permission{}, basePermissions...), PermViewAdminUsage),
}

var ErrForbidden = errors.New("forbidden")

// ParseRole converts a group name to a Role. Keycloak-style paths ("/api-admin")
// are accepted.
func ParseRole(value string) (Role, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, "/")
	switch Role(value) {
	case RoleDefault, RoleStream, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// AtLeast returns true if current role is >= required role.
func AtLeast(current, required Role) bool {
	return roleOrder[current] >= roleOrder[required]
}

// Highest picks the strongest known role among groups. Callers without any
// console group get RoleDefault.
func Highest(groups []string) Role {
	best := RoleDefault
	for _, g := range groups {
		if role, ok := ParseRole(g); ok && roleOrder[role] > roleOrder[best] {
			best = role
		}
	}
	return best
}

// Known filters groups down to recognized console roles, strongest first.
func Known(groups []string) []Role {
	seen := make(map[Role]struct{}, len(groups))
	var roles []Role
	for _, g := range groups {
		role, ok := ParseRole(g)
		if !ok {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	sort.SliceStable(roles, func(i, j int) bool { return roleOrder[roles[i]] > roleOrder[roles[j]] })
	return roles
}

// PermissionSet is the resolved capability map for one role.
type PermissionSet map[Permission]bool

// PermissionsFor returns the full capability map for role. Every permission is
// present, granted or not.
func PermissionsFor(role Role) PermissionSet {
	set := make(PermissionSet, len(AllPermissions()))
	for _, p := range AllPermissions() {
		set[p] = false
	}
	for _, p := range rolePermissions[role] {
		set[p] = true
	}
	return set
}

// Has reports whether p is granted.
func (s PermissionSet) Has(p Permission) bool {
	return s[p]
}

// Ensure returns ErrForbidden when p is not granted.
func (s PermissionSet) Ensure(p Permission) error {
	if !s.Has(p) {
		return fmt.Errorf("%w: missing %s", ErrForbidden, p)
	}
	return nil
}
