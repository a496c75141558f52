package cache

import (
	"context"
	"errors"

	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// TieredRoleCache checks a local cache before a shared one.
// Shared cache failures are logged and treated as misses.
type TieredRoleCache struct {
	local   RoleCache
	shared  RoleCache
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewTieredRoleCache creates a two-level cache. shared may be nil.
func NewTieredRoleCache(local, shared RoleCache, metrics *observability.Metrics, logger *observability.Logger) *TieredRoleCache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &TieredRoleCache{
		local:   local,
		shared:  shared,
		metrics: metrics,
		logger:  logger.WithField("component", "role_cache"),
	}
}

// Get checks the local tier, then the shared tier, backfilling local on a shared hit
func (c *TieredRoleCache) Get(ctx context.Context, userID, orgID string) (tenancy.Role, error) {
	role, err := c.local.Get(ctx, userID, orgID)
	if err == nil {
		c.metrics.RecordCacheHit("local")
		return role, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return "", err
	}
	c.metrics.RecordCacheMiss("local")

	if c.shared == nil {
		return "", ErrCacheMiss
	}

	role, err = c.shared.Get(ctx, userID, orgID)
	switch {
	case err == nil:
		c.metrics.RecordCacheHit("shared")
		_ = c.local.Set(ctx, userID, orgID, role)
		return role, nil
	case errors.Is(err, ErrCacheMiss):
		c.metrics.RecordCacheMiss("shared")
	default:
		c.logger.WithError(err).Warn("Shared role cache lookup failed")
		c.metrics.RecordCacheMiss("shared")
	}
	return "", ErrCacheMiss
}

// Set writes both tiers
func (c *TieredRoleCache) Set(ctx context.Context, userID, orgID string, role tenancy.Role) error {
	if err := c.local.Set(ctx, userID, orgID, role); err != nil {
		return err
	}
	if c.shared != nil {
		if err := c.shared.Set(ctx, userID, orgID, role); err != nil {
			c.logger.WithError(err).Warn("Shared role cache write failed")
		}
	}
	return nil
}

// Invalidate drops one membership from both tiers
func (c *TieredRoleCache) Invalidate(ctx context.Context, userID, orgID string) error {
	_ = c.local.Invalidate(ctx, userID, orgID)
	if c.shared != nil {
		return c.shared.Invalidate(ctx, userID, orgID)
	}
	return nil
}

// InvalidateOrg drops every membership of orgID from both tiers
func (c *TieredRoleCache) InvalidateOrg(ctx context.Context, orgID string) error {
	_ = c.local.InvalidateOrg(ctx, orgID)
	if c.shared != nil {
		return c.shared.InvalidateOrg(ctx, orgID)
	}
	return nil
}
