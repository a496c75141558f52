package rbac

import "strings"

// HasPermission reports whether perms grants p.
//
// A grant matches when it is the bare wildcard, when it equals p, or when it is
// "<resource>:*" for the resource before the first colon of p. Action-level
// wildcards such as "*:read" are not supported.
func HasPermission(perms []string, p string) bool {
	resource, _, _ := strings.Cut(p, ":")
	for _, grant := range perms {
		if grant == Wildcard || grant == p {
			return true
		}
		if isResourceWildcard(grant, resource) {
			return true
		}
	}
	return false
}

// HasPermissions reports whether perms grants at least one of ps.
// An empty request list is never granted.
func HasPermissions(perms []string, ps []string) bool {
	for _, p := range ps {
		if HasPermission(perms, p) {
			return true
		}
	}
	return false
}

// isResourceWildcard matches "<resource>:*" without allocating
func isResourceWildcard(grant, resource string) bool {
	return len(grant) == len(resource)+2 &&
		grant[len(grant)-2:] == ":*" &&
		grant[:len(resource)] == resource
}

// PermissionSet is the set of permissions granted in the active organization
type PermissionSet []string

// Has reports whether the set grants p
func (s PermissionSet) Has(p string) bool {
	return HasPermission(s, p)
}

// HasAny reports whether the set grants at least one of ps
func (s PermissionSet) HasAny(ps ...string) bool {
	return HasPermissions(s, ps)
}

// Check evaluates ps as an any-of request and describes the outcome
func (s PermissionSet) Check(ps ...string) PermissionCheckResult {
	result := PermissionCheckResult{Requested: ps}
	if HasPermissions(s, ps) {
		result.Allowed = true
		return result
	}
	if len(ps) == 0 {
		result.Reason = "no permission requested"
	} else {
		result.Reason = "no grant matches " + strings.Join(ps, ", ")
	}
	return result
}
