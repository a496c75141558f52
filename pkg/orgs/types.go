package orgs

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/platinummonkey/foundry/pkg/storage/postgres"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

var (
	// ErrOrganizationNotFound is returned when the organization is not visible to the caller
	ErrOrganizationNotFound = fmt.Errorf("organization %w", postgres.ErrNotFound)

	// ErrMemberNotFound is returned when the user is not a member of the active organization
	ErrMemberNotFound = fmt.Errorf("member %w", postgres.ErrNotFound)

	// ErrLastOwner is returned when a change would leave an organization without an owner
	ErrLastOwner = errors.New("organization must keep at least one owner")

	// ErrOwnerRequired is returned when a non-owner grants, changes or removes the OWNER role
	ErrOwnerRequired = errors.New("only an owner can grant, change or remove the owner role")
)

// ValidationError reports an invalid request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Organization is a tenant. Role and Permissions describe the caller's
// membership and are only set on values returned to that caller.
type Organization struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	CreatedBy   string       `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at,omitempty"`
	Role        tenancy.Role `json:"role,omitempty"`
	Permissions []string     `json:"permissions,omitempty"`
}

// Member is a user's membership in an organization
type Member struct {
	OrgID       string       `json:"org_id"`
	UserID      string       `json:"user_id"`
	Email       string       `json:"email,omitempty"`
	DisplayName string       `json:"display_name,omitempty"`
	Role        tenancy.Role `json:"role"`
	InvitedBy   string       `json:"invited_by,omitempty"`
	JoinedAt    time.Time    `json:"joined_at"`
}

// CreateOrganizationRequest is the body of POST /v1/organizations
type CreateOrganizationRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// UpdateOrganizationRequest is the body of PATCH /v1/orgs/{org_id}
type UpdateOrganizationRequest struct {
	Name string `json:"name"`
}

// AddMemberRequest is the body of POST /v1/orgs/{org_id}/members
type AddMemberRequest struct {
	UserID string       `json:"user_id"`
	Role   tenancy.Role `json:"role"`
}

// UpdateMemberRoleRequest is the body of PATCH /v1/orgs/{org_id}/members/{user_id}
type UpdateMemberRoleRequest struct {
	Role tenancy.Role `json:"role"`
}

const maxNameLength = 100

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate normalizes the request and derives a slug from the name when none is given
func (r *CreateOrganizationRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if err := validateName(r.Name); err != nil {
		return err
	}
	if r.Slug == "" {
		r.Slug = generateSlug(r.Name)
	}
	if len(r.Slug) < 3 || len(r.Slug) > 63 || !slugPattern.MatchString(r.Slug) {
		return &ValidationError{Field: "slug", Message: "must be 3-63 lowercase letters, digits or single hyphens"}
	}
	return nil
}

// Validate normalizes the request
func (r *UpdateOrganizationRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	return validateName(r.Name)
}

func validateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}
	return nil
}

func validateRole(role tenancy.Role) (tenancy.Role, error) {
	parsed, err := tenancy.ParseRole(string(role))
	if err != nil {
		return "", &ValidationError{Field: "role", Message: "must be one of OWNER, ADMIN, MEMBER, VIEWER"}
	}
	return parsed, nil
}

// generateSlug lowercases name, joins words with hyphens and drops everything else
func generateSlug(name string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(name), "-"))
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
