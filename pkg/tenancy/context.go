package tenancy

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/foundry/pkg/contextkeys"
)

// Role is a member's role within one organization
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleViewer Role = "VIEWER"
)

// Roles lists every role from most to least privileged
var Roles = []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// String returns the role name
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role name case-insensitively
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// DatabaseContext is the access context of one unit of database work.
// It is implemented only by TenantContext and ServiceContext.
type DatabaseContext interface {
	isDatabaseContext()
}

// TenantContext scopes a unit of work to one organization, acting user and role
type TenantContext struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (TenantContext) isDatabaseContext() {}

// String renders the context for logs
func (c TenantContext) String() string {
	return fmt.Sprintf("tenant(org=%s user=%s role=%s)", c.OrgID, c.UserID, c.Role)
}

// ServiceContext is an elevated unit of work that bypasses row-level security.
// BypassRLS must be true and Reason must be non-empty.
type ServiceContext struct {
	BypassRLS bool   `json:"bypass_rls"`
	Reason    string `json:"reason"`
}

func (ServiceContext) isDatabaseContext() {}

// String renders the context for logs
func (c ServiceContext) String() string {
	return fmt.Sprintf("service(reason=%q)", c.Reason)
}

// NewTenantContext builds a validated tenant context
func NewTenantContext(orgID, userID string, role Role) (TenantContext, error) {
	tc := TenantContext{OrgID: orgID, UserID: userID, Role: role}
	if !IsTenantContext(tc) {
		return TenantContext{}, fmt.Errorf("%w: org, user and a valid role are required", ErrInvalidContext)
	}
	return tc, nil
}

// NewServiceContext builds a service context with the given audit reason
func NewServiceContext(reason string) (ServiceContext, error) {
	if strings.TrimSpace(reason) == "" {
		return ServiceContext{}, ErrMissingReason
	}
	return ServiceContext{BypassRLS: true, Reason: reason}, nil
}

// WithTenantContext stores the tenant context of the current request
func WithTenantContext(ctx context.Context, tc TenantContext) context.Context {
	return contextkeys.WithTenant(ctx, tc)
}

// TenantContextFrom returns the tenant context of the current request.
// A stored value that is not a valid tenant context is treated as absent.
func TenantContextFrom(ctx context.Context) (TenantContext, error) {
	tc, ok := ctx.Value(contextkeys.TenantKey).(TenantContext)
	if !ok || !IsTenantContext(tc) {
		return TenantContext{}, ErrNoTenantContext
	}
	return tc, nil
}
