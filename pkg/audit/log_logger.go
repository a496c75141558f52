package audit

import (
	"context"

	"github.com/platinummonkey/foundry/pkg/observability"
)

// LogLogger writes audit events to the structured application log.
// It is the sink used when no database is configured and a secondary
// sink next to DBLogger otherwise.
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates a logger-backed audit sink
func NewLogLogger(logger *observability.Logger) *LogLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogLogger{logger: logger.WithField("component", "audit")}
}

// Log logs an audit event
func (l *LogLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
		"timestamp":  event.Timestamp,
	}
	optional := map[string]string{
		"context_kind":  event.ContextKind,
		"reason":        event.Reason,
		"org_id":        event.OrgID,
		"user_id":       event.UserID,
		"role":          event.Role,
		"resource_type": string(event.ResourceType),
		"resource_id":   event.ResourceID,
		"request_id":    event.RequestID,
		"method":        event.Method,
		"path":          event.Path,
		"error":         event.ErrorMessage,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	if event.StatusCode != 0 {
		fields["status_code"] = event.StatusCode
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields)
	switch event.Status {
	case EventStatusDenied, EventStatusFailure:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}

// Close is a no-op
func (l *LogLogger) Close() error {
	return nil
}
