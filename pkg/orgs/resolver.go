package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/foundry/pkg/cache"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// MembershipResolver resolves a user's role in an organization. It runs
// before any tenant context exists, through the app_member_role lookup
// function, and is fronted by a role cache.
type MembershipResolver struct {
	db     *sql.DB
	roles  cache.RoleCache
	logger *observability.Logger
}

// NewMembershipResolver creates a resolver. roles may be nil to disable caching.
func NewMembershipResolver(db *sql.DB, roles cache.RoleCache, logger *observability.Logger) *MembershipResolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &MembershipResolver{db: db, roles: roles, logger: logger.WithField("component", "membership")}
}

// ResolveRole returns the role of userID in orgID, or tenancy.ErrNotMember
func (r *MembershipResolver) ResolveRole(ctx context.Context, userID, orgID string) (tenancy.Role, error) {
	if r.roles != nil {
		role, err := r.roles.Get(ctx, userID, orgID)
		if err == nil {
			return role, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.WithError(err).Warn("Role cache lookup failed")
		}
	}

	var raw sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT app_member_role($1, $2)`, userID, orgID).Scan(&raw); err != nil {
		return "", fmt.Errorf("failed to resolve membership: %w", err)
	}
	if !raw.Valid {
		return "", tenancy.ErrNotMember
	}

	role, err := tenancy.ParseRole(raw.String)
	if err != nil {
		return "", err
	}

	if r.roles != nil {
		if err := r.roles.Set(ctx, userID, orgID, role); err != nil {
			r.logger.WithError(err).Warn("Failed to cache membership role")
		}
	}
	return role, nil
}
