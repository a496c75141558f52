package rbac

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/platinummonkey/foundry/pkg/tenancy"
	"gopkg.in/yaml.v3"
)

// Policy maps each organization role to the permissions it grants
type Policy struct {
	Roles map[tenancy.Role][]string `yaml:"roles" json:"roles"`
}

// DefaultPolicy returns the built-in role matrix
func DefaultPolicy() *Policy {
	return &Policy{
		Roles: map[tenancy.Role][]string{
			tenancy.RoleOwner: {Wildcard},
			tenancy.RoleAdmin: {
				"organization:*",
				"members:*",
				"projects:*",
				PermAuditRead,
			},
			tenancy.RoleMember: {
				PermOrganizationRead,
				PermMembersRead,
				PermProjectsRead,
				PermProjectsWrite,
			},
			tenancy.RoleViewer: {
				PermOrganizationRead,
				PermMembersRead,
				PermProjectsRead,
			},
		},
	}
}

// ParsePolicy decodes a YAML policy document of the form
//
//	roles:
//	  ADMIN: ["organization:*", "members:*"]
//
// Roles missing from the document keep their built-in grants.
func ParsePolicy(data []byte) (*Policy, error) {
	var doc struct {
		Roles map[string][]string `yaml:"roles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	policy := DefaultPolicy()
	for name, perms := range doc.Roles {
		role, err := tenancy.ParseRole(name)
		if err != nil {
			return nil, err
		}
		policy.Roles[role] = perms
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// LoadPolicyFile reads and parses a YAML policy file
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// Validate checks that every grant is a well-formed permission string
func (p *Policy) Validate() error {
	for role, perms := range p.Roles {
		if !role.Valid() {
			return fmt.Errorf("policy: %w: %q", tenancy.ErrInvalidRole, role)
		}
		for _, perm := range perms {
			if _, err := ParsePermission(perm); err != nil {
				return fmt.Errorf("policy role %s: %w", role, err)
			}
		}
	}
	return nil
}

// PermissionsFor returns a copy of the grants of role, sorted.
// Unknown roles grant nothing.
func (p *Policy) PermissionsFor(role tenancy.Role) PermissionSet {
	perms := p.Roles[role]
	out := make(PermissionSet, len(perms))
	copy(out, perms)
	sort.Strings(out)
	return out
}

// PolicyStore holds the active policy and lets it be swapped at runtime
type PolicyStore struct {
	mu     sync.RWMutex
	policy *Policy
}

// NewPolicyStore creates a store holding policy, or the default policy when nil
func NewPolicyStore(policy *Policy) *PolicyStore {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &PolicyStore{policy: policy}
}

// Policy returns the active policy
func (s *PolicyStore) Policy() *Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Replace swaps the active policy
func (s *PolicyStore) Replace(policy *Policy) {
	s.mu.Lock()
	s.policy = policy
	s.mu.Unlock()
}

// PermissionsFor returns the grants of role under the active policy
func (s *PolicyStore) PermissionsFor(role tenancy.Role) PermissionSet {
	return s.Policy().PermissionsFor(role)
}
