package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/storage/postgres"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// ListMembers returns the members of the active organization
func (s *Service) ListMembers(ctx context.Context, tc tenancy.TenantContext) ([]*Member, error) {
	var members []*Member
	err := s.scoper.RunReadOnly(ctx, tc, func(ctx context.Context, q postgres.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT m.org_id, m.user_id, u.email, u.display_name, m.role,
			       COALESCE(m.invited_by::text, ''), m.joined_at
			FROM organization_members m
			JOIN users u ON u.id = m.user_id
			WHERE m.org_id = $1
			ORDER BY m.joined_at, m.user_id`,
			tc.OrgID)
		if err != nil {
			return fmt.Errorf("failed to list members: %w", err)
		}
		defer rows.Close()

		members = make([]*Member, 0)
		for rows.Next() {
			m := &Member{}
			if err := rows.Scan(&m.OrgID, &m.UserID, &m.Email, &m.DisplayName, &m.Role, &m.InvitedBy, &m.JoinedAt); err != nil {
				return fmt.Errorf("failed to scan member: %w", err)
			}
			members = append(members, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// AddMember adds a user to the active organization
func (s *Service) AddMember(ctx context.Context, tc tenancy.TenantContext, req AddMemberRequest) (*Member, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, &ValidationError{Field: "user_id", Message: "must be a UUID"}
	}
	role, err := validateRole(req.Role)
	if err != nil {
		return nil, err
	}
	if role == tenancy.RoleOwner && tc.Role != tenancy.RoleOwner {
		return nil, ErrOwnerRequired
	}

	member, err := postgres.WithResult(ctx, s.scoper, tc, func(ctx context.Context, q postgres.Querier) (*Member, error) {
		m := &Member{OrgID: tc.OrgID, UserID: userID.String(), Role: role, InvitedBy: tc.UserID}
		err := q.QueryRowContext(ctx, `
			INSERT INTO organization_members (org_id, user_id, role, invited_by)
			VALUES ($1, $2, $3, $4)
			RETURNING joined_at`,
			m.OrgID, m.UserID, role.String(), tc.UserID,
		).Scan(&m.JoinedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to add member: %w", err)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRole(ctx, member.UserID, tc.OrgID)
	s.audit(ctx, tc, audit.EventTypeOrgMemberAdd, audit.ResourceTypeMember, member.UserID, "member added",
		map[string]interface{}{"role": role.String()})

	return member, nil
}

// UpdateMemberRole changes a member's role in the active organization
func (s *Service) UpdateMemberRole(ctx context.Context, tc tenancy.TenantContext, userID string, req UpdateMemberRoleRequest) (*Member, error) {
	role, err := validateRole(req.Role)
	if err != nil {
		return nil, err
	}

	var previous tenancy.Role
	member, err := postgres.WithResult(ctx, s.scoper, tc, func(ctx context.Context, q postgres.Querier) (*Member, error) {
		owners, err := lockOwners(ctx, q, tc.OrgID)
		if err != nil {
			return nil, err
		}

		previous, err = currentRole(ctx, q, tc.OrgID, userID)
		if err != nil {
			return nil, err
		}

		if (previous == tenancy.RoleOwner || role == tenancy.RoleOwner) && tc.Role != tenancy.RoleOwner {
			return nil, ErrOwnerRequired
		}
		if previous == tenancy.RoleOwner && role != tenancy.RoleOwner && owners <= 1 {
			return nil, ErrLastOwner
		}

		m := &Member{OrgID: tc.OrgID, UserID: userID, Role: role}
		err = q.QueryRowContext(ctx, `
			UPDATE organization_members SET role = $3
			WHERE org_id = $1 AND user_id = $2
			RETURNING COALESCE(invited_by::text, ''), joined_at`,
			tc.OrgID, userID, role.String(),
		).Scan(&m.InvitedBy, &m.JoinedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to update member role: %w", err)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRole(ctx, userID, tc.OrgID)
	s.audit(ctx, tc, audit.EventTypeOrgMemberRoleChange, audit.ResourceTypeMember, userID, "member role changed",
		map[string]interface{}{"old_role": previous.String(), "new_role": role.String()})

	return member, nil
}

// RemoveMember removes a user from the active organization
func (s *Service) RemoveMember(ctx context.Context, tc tenancy.TenantContext, userID string) error {
	var removed tenancy.Role
	err := s.scoper.Run(ctx, tc, func(ctx context.Context, q postgres.Querier) error {
		owners, err := lockOwners(ctx, q, tc.OrgID)
		if err != nil {
			return err
		}

		removed, err = currentRole(ctx, q, tc.OrgID, userID)
		if err != nil {
			return err
		}

		if removed == tenancy.RoleOwner {
			if tc.Role != tenancy.RoleOwner {
				return ErrOwnerRequired
			}
			if owners <= 1 {
				return ErrLastOwner
			}
		}

		if _, err := q.ExecContext(ctx,
			`DELETE FROM organization_members WHERE org_id = $1 AND user_id = $2`,
			tc.OrgID, userID,
		); err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateRole(ctx, userID, tc.OrgID)
	s.audit(ctx, tc, audit.EventTypeOrgMemberRemove, audit.ResourceTypeMember, userID, "member removed",
		map[string]interface{}{"role": removed.String()})

	return nil
}

// lockOwners locks the owner rows of orgID until the unit ends and returns how many there are.
// Concurrent demotions and removals serialize on these locks.
func lockOwners(ctx context.Context, q postgres.Querier, orgID string) (int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id FROM organization_members
		WHERE org_id = $1 AND role = 'OWNER'
		FOR UPDATE`,
		orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func currentRole(ctx context.Context, q postgres.Querier, orgID, userID string) (tenancy.Role, error) {
	var role string
	err := q.QueryRowContext(ctx, `
		SELECT role FROM organization_members
		WHERE org_id = $1 AND user_id = $2`,
		orgID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMemberNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get member: %w", err)
	}
	return tenancy.Role(role), nil
}
