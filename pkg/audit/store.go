package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/foundry/pkg/storage/postgres"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// ErrEventNotFound is returned when an event is not visible to the caller
var ErrEventNotFound = fmt.Errorf("audit event %w", postgres.ErrNotFound)

// Store reads and purges audit logs. Reads run under the caller's tenant
// context, so row-level security limits them to the caller's organization.
type Store interface {
	Search(ctx context.Context, tc tenancy.TenantContext, filter SearchFilter) ([]*AuditEvent, error)
	Get(ctx context.Context, tc tenancy.TenantContext, id int64) (*AuditEvent, error)
	PurgeBefore(ctx context.Context, sc tenancy.ServiceContext, cutoff time.Time) (int64, error)
}

// DBStore implements Store on PostgreSQL through a postgres.Scoper
type DBStore struct {
	scoper *postgres.Scoper
}

// NewDBStore creates a new database-backed audit store
func NewDBStore(scoper *postgres.Scoper) *DBStore {
	return &DBStore{scoper: scoper}
}

const selectEventColumns = `
	SELECT
		id, timestamp, event_type, status,
		context_kind, reason,
		COALESCE(org_id::text, ''), COALESCE(user_id::text, ''), role,
		resource_type, resource_id,
		ip_address, user_agent, request_id,
		method, path, status_code,
		message, error_message, metadata
	FROM audit_logs
`

// buildSearchQuery renders filter into SQL for one organization
func buildSearchQuery(orgID string, filter SearchFilter) (string, []interface{}) {
	filter.normalize()

	query := selectEventColumns + " WHERE org_id = $1"
	args := []interface{}{orgID}
	argCount := 2

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, filter.UserID)
		argCount++
	}

	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		eventTypeStrs := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypeStrs[i] = string(et)
		}
		args = append(args, pq.Array(eventTypeStrs))
		argCount++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(filter.Status))
		argCount++
	}

	if filter.ResourceType != "" {
		query += fmt.Sprintf(" AND resource_type = $%d", argCount)
		args = append(args, string(filter.ResourceType))
		argCount++
	}

	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, filter.ResourceID)
		argCount++
	}

	query += " ORDER BY timestamp DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, filter.Limit, filter.Offset)

	return query, args
}

// Search searches the audit log of tc's organization
func (s *DBStore) Search(ctx context.Context, tc tenancy.TenantContext, filter SearchFilter) ([]*AuditEvent, error) {
	query, args := buildSearchQuery(tc.OrgID, filter)

	var events []*AuditEvent
	err := s.scoper.RunReadOnly(ctx, tc, func(ctx context.Context, q postgres.Querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to search audit logs: %w", err)
		}
		defer rows.Close()

		events = make([]*AuditEvent, 0)
		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating audit logs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Get retrieves one audit event visible to tc
func (s *DBStore) Get(ctx context.Context, tc tenancy.TenantContext, id int64) (*AuditEvent, error) {
	var event *AuditEvent
	err := s.scoper.RunReadOnly(ctx, tc, func(ctx context.Context, q postgres.Querier) error {
		row := q.QueryRowContext(ctx, selectEventColumns+" WHERE id = $1", id)
		var err error
		event, err = scanEvent(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// PurgeBefore deletes every event older than cutoff across all organizations.
// It runs under the caller's service context.
func (s *DBStore) PurgeBefore(ctx context.Context, sc tenancy.ServiceContext, cutoff time.Time) (int64, error) {
	return postgres.WithResult(ctx, s.scoper, sc, func(ctx context.Context, q postgres.Querier) (int64, error) {
		result, err := q.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to purge audit logs: %w", err)
		}
		return result.RowsAffected()
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*AuditEvent, error) {
	event := &AuditEvent{}
	var metadataJSON []byte

	err := row.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&event.ContextKind, &event.Reason,
		&event.OrgID, &event.UserID, &event.Role,
		&event.ResourceType, &event.ResourceID,
		&event.IPAddress, &event.UserAgent, &event.RequestID,
		&event.Method, &event.Path, &event.StatusCode,
		&event.Message, &event.ErrorMessage, &metadataJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if len(metadataJSON) > 0 && string(metadataJSON) != "{}" {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return event, nil
}
