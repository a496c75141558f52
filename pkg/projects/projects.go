// Package projects is a tenant-owned resource kept apart by row-level
// security. The service never filters by organization on its own behalf
// beyond what the active tenant context already enforces.
package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/storage/postgres"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// ErrProjectNotFound is returned when a project does not exist in the active organization
var ErrProjectNotFound = fmt.Errorf("project %w", postgres.ErrNotFound)

// ValidationError reports an invalid request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Project belongs to exactly one organization
type Project struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest is the body of POST /v1/orgs/{org_id}/projects
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateRequest is the body of PATCH /v1/orgs/{org_id}/projects/{project_id}.
// Nil fields are left unchanged.
type UpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

const (
	maxNameLength        = 100
	maxDescriptionLength = 2000
)

func validateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}
	return nil
}

func validateDescription(description string) error {
	if len(description) > maxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)}
	}
	return nil
}

const projectColumns = `id, org_id, name, description, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*Project, error) {
	p := &Project{}
	if err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// Service reads and writes projects of the caller's active organization
type Service struct {
	scoper *postgres.Scoper
	logger *observability.Logger
}

// NewService creates a project service
func NewService(scoper *postgres.Scoper, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{scoper: scoper, logger: logger.WithField("component", "projects")}
}

// List returns the projects of the active organization ordered by name
func (s *Service) List(ctx context.Context, tc tenancy.TenantContext) ([]*Project, error) {
	var projects []*Project
	err := s.scoper.RunReadOnly(ctx, tc, func(ctx context.Context, q postgres.Querier) error {
		rows, err := q.QueryContext(ctx,
			`SELECT `+projectColumns+` FROM projects WHERE org_id = $1 ORDER BY name`, tc.OrgID)
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}
		defer rows.Close()

		projects = make([]*Project, 0)
		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return fmt.Errorf("failed to scan project: %w", err)
			}
			projects = append(projects, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// Get returns one project of the active organization
func (s *Service) Get(ctx context.Context, tc tenancy.TenantContext, id string) (*Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrProjectNotFound
	}

	var project *Project
	err := s.scoper.RunReadOnly(ctx, tc, func(ctx context.Context, q postgres.Querier) error {
		var err error
		project, err = scanProject(q.QueryRowContext(ctx,
			`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProjectNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// Create adds a project to the active organization
func (s *Service) Create(ctx context.Context, tc tenancy.TenantContext, req CreateRequest) (*Project, error) {
	name := strings.TrimSpace(req.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}

	project, err := postgres.WithResult(ctx, s.scoper, tc, func(ctx context.Context, q postgres.Querier) (*Project, error) {
		p, err := scanProject(q.QueryRowContext(ctx, `
			INSERT INTO projects (org_id, name, description, created_by)
			VALUES ($1, $2, $3, $4)
			RETURNING `+projectColumns,
			tc.OrgID, name, req.Description, tc.UserID))
		if err != nil {
			return nil, fmt.Errorf("failed to create project: %w", err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, audit.EventTypeProjectCreate, project.ID, "project created")
	return project, nil
}

// Update changes the name or description of a project
func (s *Service) Update(ctx context.Context, tc tenancy.TenantContext, id string, req UpdateRequest) (*Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrProjectNotFound
	}

	var sets []string
	args := []interface{}{id}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		args = append(args, name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return nil, err
		}
		args = append(args, *req.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil, &ValidationError{Field: "body", Message: "nothing to update"}
	}
	sets = append(sets, "updated_at = NOW()")

	query := `UPDATE projects SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + projectColumns

	project, err := postgres.WithResult(ctx, s.scoper, tc, func(ctx context.Context, q postgres.Querier) (*Project, error) {
		p, err := scanProject(q.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update project: %w", err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, audit.EventTypeProjectUpdate, project.ID, "project updated")
	return project, nil
}

// Delete removes a project of the active organization
func (s *Service) Delete(ctx context.Context, tc tenancy.TenantContext, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrProjectNotFound
	}

	err := s.scoper.Run(ctx, tc, func(ctx context.Context, q postgres.Querier) error {
		res, err := q.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		if n == 0 {
			return ErrProjectNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit(ctx, audit.EventTypeProjectDelete, id, "project deleted")
	return nil
}

func (s *Service) audit(ctx context.Context, eventType audit.EventType, projectID, message string) {
	if err := audit.LogSuccess(ctx, eventType, audit.ResourceTypeProject, projectID, message); err != nil {
		s.logger.WithError(err).WithField("event_type", string(eventType)).Error("Failed to write audit event")
	}
}
