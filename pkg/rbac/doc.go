// Package rbac evaluates organization-scoped permissions.
//
// # Permissions
//
// A permission is a "resource:action" string. A member's grants in the
// active organization come from their role through the role policy:
//
//	OWNER   *
//	ADMIN   organization:*, members:*, projects:*, audit:read
//	MEMBER  organization:read, members:read, projects:read, projects:write
//	VIEWER  organization:read, members:read, projects:read
//
// A grant matches a requested permission when it is "*", when it is equal to
// it, or when it is "<resource>:*" for the requested resource. There are no
// action-level wildcards.
//
//	rbac.HasPermission(perms, "projects:delete")
//	rbac.HasPermissions(perms, []string{"members:update", "members:remove"}) // any of
//
// # Policy
//
// The built-in matrix can be overridden per role with a YAML file:
//
//	roles:
//	  MEMBER: ["organization:read", "members:read", "projects:*"]
//
// PolicyWatcher reloads the file on change; a file that fails to parse leaves
// the previous policy in place.
//
// # HTTP
//
// PermissionMiddleware runs after the tenant middleware and answers 403 with
// an access-denied audit event when no grant matches.
//
//	r.Handle("/projects/{project_id}", pm.RequirePermission(rbac.PermProjectsDelete)(h)).Methods("DELETE")
package rbac
