package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/cache"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/rbac"
	"github.com/platinummonkey/foundry/pkg/storage/postgres"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// Service manages organizations and their members.
//
// Every read and write runs in a unit of work scoped to the caller's tenant
// context; no request path here uses a service context.
type Service struct {
	scoper   *postgres.Scoper
	db       *sql.DB
	policies *rbac.PolicyStore
	roles    cache.RoleCache
	logger   *observability.Logger
	newID    func() string
}

// NewService creates an organization service. db is only used for the
// membership lookup functions that run before a tenant context exists.
// roles may be nil.
func NewService(scoper *postgres.Scoper, db *sql.DB, policies *rbac.PolicyStore, roles cache.RoleCache, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if policies == nil {
		policies = rbac.NewPolicyStore(nil)
	}
	return &Service{
		scoper:   scoper,
		db:       db,
		policies: policies,
		roles:    roles,
		logger:   logger.WithField("component", "orgs"),
		newID:    uuid.NewString,
	}
}

// CreateOrganization creates an organization owned by userID.
//
// The organization ID is generated up front so that the insert runs under a
// tenant context for the new organization with the creator as OWNER, which
// is exactly what the insert policies admit.
func (s *Service) CreateOrganization(ctx context.Context, userID string, req CreateOrganizationRequest) (*Organization, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tc, err := tenancy.NewTenantContext(s.newID(), userID, tenancy.RoleOwner)
	if err != nil {
		return nil, err
	}

	org, err := postgres.WithResult(ctx, s.scoper, tc, func(ctx context.Context, q postgres.Querier) (*Organization, error) {
		org := &Organization{ID: tc.OrgID, Name: req.Name, Slug: req.Slug, CreatedBy: userID}
		err := q.QueryRowContext(ctx, `
			INSERT INTO organizations (id, name, slug, created_by)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at`,
			org.ID, org.Name, org.Slug, userID,
		).Scan(&org.CreatedAt, &org.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create organization: %w", err)
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO organization_members (org_id, user_id, role)
			VALUES ($1, $2, $3)`,
			org.ID, userID, tenancy.RoleOwner.String(),
		); err != nil {
			return nil, fmt.Errorf("failed to add owner: %w", err)
		}
		return org, nil
	})
	if err != nil {
		return nil, err
	}

	s.cacheRole(ctx, userID, org.ID, tenancy.RoleOwner)
	s.withCallerMembership(org, tenancy.RoleOwner)
	s.audit(ctx, tc, audit.EventTypeOrgCreate, audit.ResourceTypeOrganization, org.ID, "organization created", map[string]interface{}{"slug": org.Slug})

	return org, nil
}

// GetOrganization returns the active organization with the caller's role and permissions
func (s *Service) GetOrganization(ctx context.Context, tc tenancy.TenantContext) (*Organization, error) {
	var org *Organization
	err := s.scoper.RunReadOnly(ctx, tc, func(ctx context.Context, q postgres.Querier) error {
		org = &Organization{}
		err := q.QueryRowContext(ctx, `
			SELECT id, name, slug, created_by, created_at, updated_at
			FROM organizations
			WHERE id = $1`,
			tc.OrgID,
		).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedBy, &org.CreatedAt, &org.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrganizationNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.withCallerMembership(org, tc.Role)
	return org, nil
}

// UpdateOrganization renames the active organization
func (s *Service) UpdateOrganization(ctx context.Context, tc tenancy.TenantContext, req UpdateOrganizationRequest) (*Organization, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	org, err := postgres.WithResult(ctx, s.scoper, tc, func(ctx context.Context, q postgres.Querier) (*Organization, error) {
		org := &Organization{}
		err := q.QueryRowContext(ctx, `
			UPDATE organizations SET name = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING id, name, slug, created_by, created_at, updated_at`,
			tc.OrgID, req.Name,
		).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedBy, &org.CreatedAt, &org.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update organization: %w", err)
		}
		return org, nil
	})
	if err != nil {
		return nil, err
	}

	s.withCallerMembership(org, tc.Role)
	return org, nil
}

// ListOrganizations returns every organization userID belongs to, each with
// the user's role and permissions in it
func (s *Service) ListOrganizations(ctx context.Context, userID string) ([]*Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT org_id, name, slug, role, created_at FROM app_user_organizations($1)`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*Organization, 0)
	for rows.Next() {
		org := &Organization{}
		var role string
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &role, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		parsed, err := tenancy.ParseRole(role)
		if err != nil {
			s.logger.WithField("org_id", org.ID).WithError(err).Warn("Skipping membership with unknown role")
			continue
		}
		s.withCallerMembership(org, parsed)
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

func (s *Service) withCallerMembership(org *Organization, role tenancy.Role) {
	org.Role = role
	org.Permissions = []string(s.policies.PermissionsFor(role))
}

func (s *Service) cacheRole(ctx context.Context, userID, orgID string, role tenancy.Role) {
	if s.roles == nil {
		return
	}
	if err := s.roles.Set(ctx, userID, orgID, role); err != nil {
		s.logger.WithError(err).Warn("Failed to cache membership role")
	}
}

func (s *Service) invalidateRole(ctx context.Context, userID, orgID string) {
	if s.roles == nil {
		return
	}
	if err := s.roles.Invalidate(ctx, userID, orgID); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id": userID,
			"org_id":  orgID,
		}).Error("Failed to invalidate membership role")
	}
}

// audit records a committed change. The change is already durable, so a
// failed audit write is logged rather than returned.
func (s *Service) audit(ctx context.Context, tc tenancy.TenantContext, eventType audit.EventType, resourceType audit.ResourceType, resourceID, message string, metadata map[string]interface{}) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	event.ContextKind = tenancy.KindTenant.String()
	event.OrgID = tc.OrgID
	event.UserID = tc.UserID
	event.Role = tc.Role.String()
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	event.Metadata = metadata

	if err := audit.FromContext(ctx).Log(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", string(eventType)).Error("Failed to write audit event")
	}
}
