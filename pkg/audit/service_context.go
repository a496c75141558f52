package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// ServiceContextAuditor records every use of a service context.
// It implements postgres.ServiceAuditor.
type ServiceContextAuditor struct {
	logger Logger
}

// NewServiceContextAuditor creates an auditor writing to logger
func NewServiceContextAuditor(logger Logger) *ServiceContextAuditor {
	return &ServiceContextAuditor{logger: logger}
}

// AuditServiceContext logs the context kind, the reason and the timestamp
func (a *ServiceContextAuditor) AuditServiceContext(ctx context.Context, sc tenancy.ServiceContext, at time.Time) error {
	event := NewEvent(ctx, EventTypeServiceContext, EventStatusSuccess)
	event.Timestamp = at
	event.ContextKind = tenancy.KindService.String()
	event.Reason = sc.Reason
	event.Role = ""
	event.OrgID = ""
	event.ResourceType = ResourceTypeDatabase
	event.Message = "row-level security bypassed"
	return a.logger.Log(ctx, event)
}
