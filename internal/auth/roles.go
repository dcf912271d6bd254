package auth

import "strings"

// extractRolesFromClaims reads a role claim that may be a string, a list, or
// a map of role name to bool. Dotted names walk nested objects, so Keycloak's
// "realm_access.roles" works.
func extractRolesFromClaims(claims map[string]any, field string) []string {
	field = strings.TrimSpace(field)
	if len(claims) == 0 || field == "" {
		return nil
	}
	value, ok := lookupClaim(claims, field)
	if !ok || value == nil {
		return nil
	}
	var roles []string
	switch v := value.(type) {
	case string:
		if role := normalizeRole(v); role != "" {
			roles = append(roles, role)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if role := normalizeRole(s); role != "" {
					roles = append(roles, role)
				}
			}
		}
	case []string:
		for _, s := range v {
			if role := normalizeRole(s); role != "" {
				roles = append(roles, role)
			}
		}
	case map[string]any:
		for key, raw := range v {
			if b, ok := raw.(bool); ok && b {
				if role := normalizeRole(key); role != "" {
					roles = append(roles, role)
				}
			}
		}
	}
	return dedupeRoles(roles)
}

func lookupClaim(claims map[string]any, field string) (any, bool) {
	if v, ok := claims[field]; ok {
		return v, true
	}
	var current any = claims
	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

func normalizeRole(role string) string {
	role = strings.TrimPrefix(strings.TrimSpace(role), "/")
	if role == "" {
		return ""
	}
	return strings.ToLower(role)
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return roles
	}
	seen := make(map[string]struct{}, len(roles))
	result := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		result = append(result, r)
	}
	return result
}
