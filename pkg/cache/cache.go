// Package cache caches organization membership roles.
//
// Resolving a member's role is the first query of every org-scoped request, so
// the role is cached in process (MemoryRoleCache), in Redis shared by all API
// instances (RedisRoleCache), or in both (TieredRoleCache). Only positive
// lookups are cached; role changes and removals must be invalidated by the
// writer.
package cache

import (
	"context"
	"errors"

	"github.com/platinummonkey/foundry/pkg/tenancy"
)

var (
	// ErrCacheMiss is returned when no role is cached for the key
	ErrCacheMiss = errors.New("cache: miss")

	// ErrInvalidKey is returned for an empty user or organization ID
	ErrInvalidKey = errors.New("cache: user and organization IDs are required")
)

// RoleCache caches the role of a user within an organization
type RoleCache interface {
	Get(ctx context.Context, userID, orgID string) (tenancy.Role, error)
	Set(ctx context.Context, userID, orgID string, role tenancy.Role) error
	Invalidate(ctx context.Context, userID, orgID string) error
	InvalidateOrg(ctx context.Context, orgID string) error
}

func validKey(userID, orgID string) error {
	if userID == "" || orgID == "" {
		return ErrInvalidKey
	}
	return nil
}
