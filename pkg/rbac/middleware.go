package rbac

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/contextkeys"
	"github.com/platinummonkey/foundry/pkg/httputil"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// PermissionMiddleware gates handlers on the permission set of the request's
// tenant context. It must run after the tenant middleware.
type PermissionMiddleware struct {
	policies *PolicyStore
	metrics  *observability.Metrics
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(policies *PolicyStore, metrics *observability.Metrics) *PermissionMiddleware {
	return &PermissionMiddleware{
		policies: policies,
		metrics:  metrics,
	}
}

// RequirePermission creates middleware that requires a specific permission
func (pm *PermissionMiddleware) RequirePermission(p string) func(http.Handler) http.Handler {
	return pm.RequireAnyPermission(p)
}

// RequireAnyPermission creates middleware that requires any of the specified permissions
func (pm *PermissionMiddleware) RequireAnyPermission(ps ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tc, err := tenancy.TenantContextFrom(ctx)
			if err != nil {
				httputil.WriteUnauthorized(w, "organization context required")
				return
			}

			perms := PermissionSet(contextkeys.GetPermissions(ctx))
			if perms == nil {
				perms = pm.policies.PermissionsFor(tc.Role)
			}

			result := perms.Check(ps...)
			pm.metrics.RecordPermissionCheck(result.Allowed)
			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			if err := audit.LogDenied(ctx, r, audit.ResourceTypePermission, strings.Join(ps, ","), result.Reason); err != nil {
				observability.FromContext(ctx).WithError(err).Error("Failed to record access denial")
			}
			httputil.WriteForbidden(w, "insufficient permissions")
		})
	}
}
