package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrationLockKey serializes concurrent migrators through pg_advisory_xact_lock
const migrationLockKey = 4_120_731

// Migrations returns the ordered schema migrations
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create row-level security helper functions",
			SQL: `
				CREATE OR REPLACE FUNCTION app_current_org_id() RETURNS uuid
					LANGUAGE sql STABLE
					AS $$ SELECT NULLIF(current_setting('app.current_org_id', true), '')::uuid $$;

				CREATE OR REPLACE FUNCTION app_current_user_id() RETURNS uuid
					LANGUAGE sql STABLE
					AS $$ SELECT NULLIF(current_setting('app.current_user_id', true), '')::uuid $$;

				CREATE OR REPLACE FUNCTION app_current_role() RETURNS text
					LANGUAGE sql STABLE
					AS $$ SELECT NULLIF(current_setting('app.current_role', true), '') $$;

				CREATE OR REPLACE FUNCTION app_bypass_rls() RETURNS boolean
					LANGUAGE sql STABLE
					AS $$ SELECT COALESCE(current_setting('app.bypass_rls', true), '') = 'on' $$;
			`,
		},
		{
			Version:     2,
			Description: "Create users and api_tokens tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					email TEXT NOT NULL UNIQUE,
					display_name TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS api_tokens (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash TEXT NOT NULL UNIQUE,
					token_prefix TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					expires_at TIMESTAMPTZ,
					last_used_at TIMESTAMPTZ,
					revoked_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create organizations and organization_members with isolation policies",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id UUID PRIMARY KEY,
					name TEXT NOT NULL,
					slug TEXT NOT NULL UNIQUE,
					created_by UUID NOT NULL REFERENCES users(id),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS organization_members (
					org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role TEXT NOT NULL CHECK (role IN ('OWNER', 'ADMIN', 'MEMBER', 'VIEWER')),
					invited_by UUID REFERENCES users(id) ON DELETE SET NULL,
					joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (org_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_organization_members_user_id ON organization_members(user_id);

				ALTER TABLE organizations ENABLE ROW LEVEL SECURITY;
				ALTER TABLE organizations FORCE ROW LEVEL SECURITY;

				CREATE POLICY organizations_select ON organizations FOR SELECT
					USING (app_bypass_rls() OR id = app_current_org_id());
				CREATE POLICY organizations_insert ON organizations FOR INSERT
					WITH CHECK (app_bypass_rls() OR (id = app_current_org_id() AND app_current_role() = 'OWNER'));
				CREATE POLICY organizations_update ON organizations FOR UPDATE
					USING (app_bypass_rls() OR (id = app_current_org_id() AND app_current_role() IN ('OWNER', 'ADMIN')))
					WITH CHECK (app_bypass_rls() OR id = app_current_org_id());
				CREATE POLICY organizations_delete ON organizations FOR DELETE
					USING (app_bypass_rls() OR (id = app_current_org_id() AND app_current_role() = 'OWNER'));

				ALTER TABLE organization_members ENABLE ROW LEVEL SECURITY;
				ALTER TABLE organization_members FORCE ROW LEVEL SECURITY;

				CREATE POLICY organization_members_select ON organization_members FOR SELECT
					USING (app_bypass_rls() OR org_id = app_current_org_id());
				CREATE POLICY organization_members_insert ON organization_members FOR INSERT
					WITH CHECK (app_bypass_rls() OR (org_id = app_current_org_id() AND app_current_role() IN ('OWNER', 'ADMIN')));
				CREATE POLICY organization_members_update ON organization_members FOR UPDATE
					USING (app_bypass_rls() OR (org_id = app_current_org_id() AND app_current_role() IN ('OWNER', 'ADMIN')))
					WITH CHECK (app_bypass_rls() OR org_id = app_current_org_id());
				CREATE POLICY organization_members_delete ON organization_members FOR DELETE
					USING (app_bypass_rls() OR (org_id = app_current_org_id() AND app_current_role() IN ('OWNER', 'ADMIN')));
			`,
		},
		{
			Version:     4,
			Description: "Create membership lookup functions",
			// These run before any tenant context exists, so they lift isolation
			// for their own duration only and expose nothing but the caller's rows.
			SQL: `
				CREATE OR REPLACE FUNCTION app_member_role(p_user_id uuid, p_org_id uuid) RETURNS text
					LANGUAGE sql STABLE SECURITY DEFINER
					SET search_path = public
					SET app.bypass_rls = 'on'
					AS $$
						SELECT role FROM organization_members
						WHERE user_id = p_user_id AND org_id = p_org_id
					$$;

				CREATE OR REPLACE FUNCTION app_user_organizations(p_user_id uuid)
					RETURNS TABLE (org_id uuid, name text, slug text, role text, created_at timestamptz)
					LANGUAGE sql STABLE SECURITY DEFINER
					SET search_path = public
					SET app.bypass_rls = 'on'
					AS $$
						SELECT o.id, o.name, o.slug, m.role, o.created_at
						FROM organizations o
						JOIN organization_members m ON m.org_id = o.id
						WHERE m.user_id = p_user_id
						ORDER BY o.name
					$$;
			`,
		},
		{
			Version:     5,
			Description: "Create projects with isolation policies",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_by UUID NOT NULL REFERENCES users(id),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (org_id, name)
				);

				ALTER TABLE projects ENABLE ROW LEVEL SECURITY;
				ALTER TABLE projects FORCE ROW LEVEL SECURITY;

				CREATE POLICY projects_select ON projects FOR SELECT
					USING (app_bypass_rls() OR org_id = app_current_org_id());
				CREATE POLICY projects_insert ON projects FOR INSERT
					WITH CHECK (app_bypass_rls() OR (org_id = app_current_org_id() AND app_current_role() IN ('OWNER', 'ADMIN', 'MEMBER')));
				CREATE POLICY projects_update ON projects FOR UPDATE
					USING (app_bypass_rls() OR (org_id = app_current_org_id() AND app_current_role() IN ('OWNER', 'ADMIN', 'MEMBER')))
					WITH CHECK (app_bypass_rls() OR org_id = app_current_org_id());
				CREATE POLICY projects_delete ON projects FOR DELETE
					USING (app_bypass_rls() OR (org_id = app_current_org_id() AND app_current_role() IN ('OWNER', 'ADMIN')));
			`,
		},
		{
			Version:     6,
			Description: "Create audit_logs",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					event_type TEXT NOT NULL,
					status TEXT NOT NULL,
					context_kind TEXT NOT NULL DEFAULT '',
					reason TEXT NOT NULL DEFAULT '',
					org_id UUID,
					user_id UUID,
					role TEXT NOT NULL DEFAULT '',
					resource_type TEXT NOT NULL DEFAULT '',
					resource_id TEXT NOT NULL DEFAULT '',
					ip_address TEXT NOT NULL DEFAULT '',
					user_agent TEXT NOT NULL DEFAULT '',
					request_id TEXT NOT NULL DEFAULT '',
					method TEXT NOT NULL DEFAULT '',
					path TEXT NOT NULL DEFAULT '',
					status_code INTEGER NOT NULL DEFAULT 0,
					message TEXT NOT NULL DEFAULT '',
					error_message TEXT NOT NULL DEFAULT '',
					metadata JSONB NOT NULL DEFAULT '{}'
				);

				CREATE INDEX IF NOT EXISTS idx_audit_logs_org_timestamp ON audit_logs(org_id, timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);

				ALTER TABLE audit_logs ENABLE ROW LEVEL SECURITY;
				ALTER TABLE audit_logs FORCE ROW LEVEL SECURITY;

				-- Append-only from any context; reads are tenant scoped; only service contexts purge.
				CREATE POLICY audit_logs_insert ON audit_logs FOR INSERT WITH CHECK (true);
				CREATE POLICY audit_logs_select ON audit_logs FOR SELECT
					USING (app_bypass_rls() OR org_id = app_current_org_id());
				CREATE POLICY audit_logs_delete ON audit_logs FOR DELETE
					USING (app_bypass_rls());
			`,
		},
		{
			Version:     7,
			Description: "Create org_usage_snapshots",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_usage_snapshots (
					org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					taken_at TIMESTAMPTZ NOT NULL,
					member_count INTEGER NOT NULL,
					project_count INTEGER NOT NULL,
					PRIMARY KEY (org_id, taken_at)
				);

				ALTER TABLE org_usage_snapshots ENABLE ROW LEVEL SECURITY;
				ALTER TABLE org_usage_snapshots FORCE ROW LEVEL SECURITY;

				CREATE POLICY org_usage_snapshots_select ON org_usage_snapshots FOR SELECT
					USING (app_bypass_rls() OR org_id = app_current_org_id());
				CREATE POLICY org_usage_snapshots_insert ON org_usage_snapshots FOR INSERT
					WITH CHECK (app_bypass_rls());
			`,
		},
	}
}

// Migrator applies Migrations under a service context, one transaction per migration
type Migrator struct {
	scoper     *Scoper
	migrations []Migration
	logger     *observability.Logger
}

// NewMigrator creates a migrator over db. The audit trail does not exist until
// the schema does, so migrations are recorded in the structured log only.
func NewMigrator(db *sql.DB, logger *observability.Logger) *Migrator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Migrator{
		scoper:     NewScoper(db, ScopeConfig{Logger: logger}),
		migrations: Migrations(),
		logger:     logger.WithField("component", "migrator"),
	}
}

// Up applies every migration not yet recorded in schema_migrations and returns how many ran
func (m *Migrator) Up(ctx context.Context) (int, error) {
	sc, err := tenancy.NewServiceContext("schema migration: create ledger")
	if err != nil {
		return 0, err
	}
	err = m.scoper.Run(ctx, sc, func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				description TEXT NOT NULL,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := 0
	for _, migration := range m.migrations {
		ran, err := m.apply(ctx, migration)
		if err != nil {
			return applied, err
		}
		if ran {
			applied++
		}
	}

	m.logger.WithField("applied", applied).Info("Schema migrations complete")
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, migration Migration) (bool, error) {
	sc, err := tenancy.NewServiceContext(fmt.Sprintf("schema migration %d: %s", migration.Version, migration.Description))
	if err != nil {
		return false, err
	}

	return WithResult(ctx, m.scoper, sc, func(ctx context.Context, q Querier) (bool, error) {
		if _, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return false, fmt.Errorf("failed to acquire migration lock: %w", err)
		}

		var exists bool
		if err := q.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			migration.Version,
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check migration %d: %w", migration.Version, err)
		}
		if exists {
			return false, nil
		}

		if _, err := q.ExecContext(ctx, migration.SQL); err != nil {
			return false, fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := q.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			return false, fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		m.logger.WithField("version", migration.Version).Infof("Applied migration: %s", migration.Description)
		return true, nil
	})
}
