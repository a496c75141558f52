package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger writes audit events to the audit_logs table.
//
// Inserts run on the plain pool: the table's insert policy admits rows from
// any database context, so recording an event never needs a scoped unit.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

const insertEventSQL = `
	INSERT INTO audit_logs (
		timestamp, event_type, status,
		context_kind, reason,
		org_id, user_id, role,
		resource_type, resource_id,
		ip_address, user_agent, request_id,
		method, path, status_code,
		message, error_message, metadata
	) VALUES (
		$1, $2, $3,
		$4, $5,
		$6, $7, $8,
		$9, $10,
		$11, $12, $13,
		$14, $15, $16,
		$17, $18, $19
	) RETURNING id
`

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	metadataJSON := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	err := l.db.QueryRowContext(ctx, insertEventSQL,
		event.Timestamp, string(event.EventType), string(event.Status),
		event.ContextKind, event.Reason,
		nullUUID(event.OrgID), nullUUID(event.UserID), event.Role,
		string(event.ResourceType), event.ResourceID,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Close is a no-op; the pool is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}

// nullUUID maps an empty identifier to SQL NULL
func nullUUID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
