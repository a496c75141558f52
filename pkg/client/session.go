package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/foundry/pkg/orgs"
	"github.com/platinummonkey/foundry/pkg/rbac"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// ErrNoActiveOrganization is returned when a session has not selected an organization
var ErrNoActiveOrganization = errors.New("no active organization")

// Session tracks the caller's active organization and the permission set
// the server computed for it. Permission checks are answered locally.
type Session struct {
	client *Client

	mu          sync.RWMutex
	org         *orgs.Organization
	permissions rbac.PermissionSet
}

// NewSession creates a session with no active organization
func NewSession(c *Client) *Session {
	return &Session{client: c}
}

// SwitchOrganization makes orgID the active organization. The permission set
// is always refetched; on failure the previous organization stays active.
func (s *Session) SwitchOrganization(ctx context.Context, orgID string) (*orgs.Organization, error) {
	org, err := s.client.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to switch to organization %s: %w", orgID, err)
	}

	perms := make(rbac.PermissionSet, len(org.Permissions))
	copy(perms, org.Permissions)

	s.mu.Lock()
	s.org = org
	s.permissions = perms
	s.mu.Unlock()
	return org, nil
}

// Refresh recomputes the permission set of the active organization
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	org := s.org
	s.mu.RUnlock()
	if org == nil {
		return ErrNoActiveOrganization
	}
	_, err := s.SwitchOrganization(ctx, org.ID)
	return err
}

// Clear drops the active organization
func (s *Session) Clear() {
	s.mu.Lock()
	s.org = nil
	s.permissions = nil
	s.mu.Unlock()
}

// Organization returns the active organization, or nil
func (s *Session) Organization() *orgs.Organization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.org
}

// OrgID returns the active organization ID
func (s *Session) OrgID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.org == nil {
		return "", ErrNoActiveOrganization
	}
	return s.org.ID, nil
}

// Role returns the caller's role in the active organization
func (s *Session) Role() tenancy.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.org == nil {
		return ""
	}
	return s.org.Role
}

// Permissions returns a copy of the active permission set
func (s *Session) Permissions() rbac.PermissionSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(rbac.PermissionSet, len(s.permissions))
	copy(out, s.permissions)
	return out
}

// Can reports whether the active permission set grants p.
// Without an active organization nothing is granted.
func (s *Session) Can(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rbac.HasPermission(s.permissions, p)
}

// CanAny reports whether any of ps is granted
func (s *Session) CanAny(ps ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rbac.HasPermissions(s.permissions, ps)
}
