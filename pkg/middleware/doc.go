// Package middleware holds the HTTP middleware that turns a request into a
// tenant-scoped call.
//
// The chain for organization routes is:
//
//	RequestID -> audit.Middleware -> AuthMiddleware -> TenantMiddleware -> rbac.RequirePermission
//
// AuthMiddleware validates "Authorization: Bearer fdy_..." and stores the
// auth.Principal. TenantMiddleware reads {org_id} from the route, resolves the
// principal's membership role and stores a tenancy.TenantContext together
// with the role's permission set. Callers that are not members get 404.
package middleware
