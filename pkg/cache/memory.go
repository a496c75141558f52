package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// MemoryRoleCache is an in-process LRU role cache with a TTL
type MemoryRoleCache struct {
	cache *lru.LRU[string, tenancy.Role]
}

// NewMemoryRoleCache creates a cache holding up to size entries for ttl each
func NewMemoryRoleCache(size int, ttl time.Duration) *MemoryRoleCache {
	if size < 10 {
		size = 10
	}
	return &MemoryRoleCache{
		cache: lru.NewLRU[string, tenancy.Role](size, nil, ttl),
	}
}

func memoryKey(userID, orgID string) string {
	return orgID + "|" + userID
}

// Get returns the cached role or ErrCacheMiss
func (c *MemoryRoleCache) Get(ctx context.Context, userID, orgID string) (tenancy.Role, error) {
	if err := validKey(userID, orgID); err != nil {
		return "", err
	}
	role, ok := c.cache.Get(memoryKey(userID, orgID))
	if !ok {
		return "", ErrCacheMiss
	}
	return role, nil
}

// Set caches role
func (c *MemoryRoleCache) Set(ctx context.Context, userID, orgID string, role tenancy.Role) error {
	if err := validKey(userID, orgID); err != nil {
		return err
	}
	c.cache.Add(memoryKey(userID, orgID), role)
	return nil
}

// Invalidate drops one membership
func (c *MemoryRoleCache) Invalidate(ctx context.Context, userID, orgID string) error {
	c.cache.Remove(memoryKey(userID, orgID))
	return nil
}

// InvalidateOrg drops every membership of orgID
func (c *MemoryRoleCache) InvalidateOrg(ctx context.Context, orgID string) error {
	prefix := orgID + "|"
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
	return nil
}

// Len returns the number of live entries
func (c *MemoryRoleCache) Len() int {
	return c.cache.Len()
}
