package rbac

import (
	"fmt"
	"strings"
)

// Resource represents a resource type in the system
type Resource string

const (
	ResourceOrganization Resource = "organization"
	ResourceMembers      Resource = "members"
	ResourceProjects     Resource = "projects"
	ResourceAudit        Resource = "audit"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionInvite Action = "invite"
	ActionRemove Action = "remove"
	ActionAll    Action = "*"
)

// Wildcard grants every permission
const Wildcard = "*"

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource" yaml:"resource"`
	Action   Action   `json:"action" yaml:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// ParsePermission splits a "resource:action" string. The bare wildcard parses
// to a permission with both fields set to "*".
func ParsePermission(s string) (Permission, error) {
	if s == Wildcard {
		return Permission{Resource: Wildcard, Action: ActionAll}, nil
	}
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("invalid permission %q: expected resource:action", s)
	}
	return Permission{Resource: Resource(resource), Action: Action(action)}, nil
}

// Common permissions checked by the HTTP layer
var (
	PermOrganizationRead   = Permission{ResourceOrganization, ActionRead}.String()
	PermOrganizationUpdate = Permission{ResourceOrganization, ActionUpdate}.String()
	PermMembersRead        = Permission{ResourceMembers, ActionRead}.String()
	PermMembersInvite      = Permission{ResourceMembers, ActionInvite}.String()
	PermMembersUpdate      = Permission{ResourceMembers, ActionUpdate}.String()
	PermMembersRemove      = Permission{ResourceMembers, ActionRemove}.String()
	PermProjectsRead       = Permission{ResourceProjects, ActionRead}.String()
	PermProjectsWrite      = Permission{ResourceProjects, ActionWrite}.String()
	PermProjectsDelete     = Permission{ResourceProjects, ActionDelete}.String()
	PermAuditRead          = Permission{ResourceAudit, ActionRead}.String()
)

// PermissionCheckResult represents the result of a permission check
type PermissionCheckResult struct {
	Allowed   bool     `json:"allowed"`
	Requested []string `json:"requested"`
	Reason    string   `json:"reason,omitempty"`
}
