// Package audit records security-relevant events for compliance and forensics.
//
// # Overview
//
// Every use of a service context (row-level security bypass) is recorded
// before its unit of work runs, together with authorization denials, token
// lifecycle events and organization, membership and project mutations.
//
// # Sinks
//
//	DBLogger    appends to the audit_logs table
//	LogLogger   writes to the structured application log
//	MultiLogger fans out to several sinks
//
// # Service Context Auditing
//
// ServiceContextAuditor adapts a Logger to postgres.ServiceAuditor:
//
//	auditor := audit.NewServiceContextAuditor(audit.NewMultiLogger(dbSink, logSink))
//	scoper := postgres.NewScoper(db, postgres.ScopeConfig{Auditor: auditor})
//
// A failed audit write aborts the unit of work.
//
// # Querying
//
// DBStore reads under the caller's tenant context, so an organization only
// ever sees its own events:
//
//	events, err := store.Search(ctx, tc, audit.SearchFilter{
//		EventTypes: []audit.EventType{audit.EventTypeAuthzAccessDenied},
//		Limit:      50,
//	})
//
// PurgeBefore deletes expired events under a service context and is driven
// by the retention job.
package audit
