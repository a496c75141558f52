package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/foundry/pkg/auth"
	"github.com/platinummonkey/foundry/pkg/contextkeys"
	"github.com/platinummonkey/foundry/pkg/httputil"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/rbac"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// OrgIDVar is the route variable naming the active organization
const OrgIDVar = "org_id"

// PermissionResolver returns the caller's role in an organization and the
// permissions it grants
type PermissionResolver interface {
	Permissions(ctx context.Context, userID, orgID string) (tenancy.Role, rbac.PermissionSet, error)
}

// TenantMiddleware binds the request to the organization named in the route.
// Downstream handlers find a validated tenancy.TenantContext and the caller's
// permission set in the request context.
type TenantMiddleware struct {
	resolver PermissionResolver
}

// NewTenantMiddleware creates a new tenant middleware
func NewTenantMiddleware(resolver PermissionResolver) *TenantMiddleware {
	return &TenantMiddleware{resolver: resolver}
}

// Handler wraps an HTTP handler with tenant resolution
func (m *TenantMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principal, ok := auth.PrincipalFrom(ctx)
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		orgID, err := uuid.Parse(mux.Vars(r)[OrgIDVar])
		if err != nil {
			httputil.WriteBadRequest(w, "invalid organization ID")
			return
		}

		role, perms, err := m.resolver.Permissions(ctx, principal.UserID, orgID.String())
		if err != nil {
			// Non-members cannot tell a foreign organization from a missing one
			if errors.Is(err, tenancy.ErrNotMember) {
				httputil.WriteNotFound(w, "not found")
				return
			}
			observability.FromContext(ctx).WithError(err).Error("Failed to resolve membership")
			httputil.WriteInternalError(w)
			return
		}

		tc, err := tenancy.NewTenantContext(orgID.String(), principal.UserID, role)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Error("Resolved membership is not a valid tenant context")
			httputil.WriteInternalError(w)
			return
		}

		ctx = tenancy.WithTenantContext(ctx, tc)
		ctx = contextkeys.WithOrgID(ctx, tc.OrgID)
		ctx = contextkeys.WithPermissions(ctx, []string(perms))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
