package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// RoleResolver returns a user's role in an organization, or
// tenancy.ErrNotMember when the user holds none
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID, orgID string) (tenancy.Role, error)
}

// PermissionChecker derives permission sets from membership roles
type PermissionChecker struct {
	resolver RoleResolver
	policies *PolicyStore
	metrics  *observability.Metrics
}

// NewPermissionChecker creates a new permission checker
func NewPermissionChecker(resolver RoleResolver, policies *PolicyStore, metrics *observability.Metrics) *PermissionChecker {
	return &PermissionChecker{
		resolver: resolver,
		policies: policies,
		metrics:  metrics,
	}
}

// Permissions resolves the user's role in orgID and the permissions it grants
func (pc *PermissionChecker) Permissions(ctx context.Context, userID, orgID string) (tenancy.Role, PermissionSet, error) {
	role, err := pc.resolver.ResolveRole(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, tenancy.ErrNotMember) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("failed to resolve role: %w", err)
	}
	return role, pc.policies.PermissionsFor(role), nil
}

// CheckPermission evaluates ps as an any-of request for userID in orgID.
// Non-members are denied without error.
func (pc *PermissionChecker) CheckPermission(ctx context.Context, userID, orgID string, ps ...string) (PermissionCheckResult, error) {
	_, perms, err := pc.Permissions(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, tenancy.ErrNotMember) {
			pc.metrics.RecordPermissionCheck(false)
			return PermissionCheckResult{Requested: ps, Reason: "not a member of the organization"}, nil
		}
		return PermissionCheckResult{}, err
	}

	result := perms.Check(ps...)
	pc.metrics.RecordPermissionCheck(result.Allowed)
	return result, nil
}
