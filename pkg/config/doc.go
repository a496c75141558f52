// Package config loads Foundry configuration from FOUNDRY_* environment
// variables and validates it.
//
// Server:
//
//	FOUNDRY_HOST="0.0.0.0"
//	FOUNDRY_PORT="8080"
//	FOUNDRY_HEALTH_PORT="9090"
//	FOUNDRY_SHUTDOWN_TIMEOUT="30s"
//
// Database:
//
//	FOUNDRY_DATABASE_URL="postgres://foundry_app@localhost/foundry"
//	FOUNDRY_DATABASE_REPLICA_URLS="postgres://replica-1/foundry,postgres://replica-2/foundry"
//	FOUNDRY_DATABASE_MAX_CONNS="20"
//	FOUNDRY_DATABASE_UNIT_TIMEOUT="30s"
//	FOUNDRY_DATABASE_STATEMENT_TIMEOUT="10s"
//	FOUNDRY_DATABASE_ISOLATION="read committed"
//	FOUNDRY_DATABASE_SERVICE_ROLE="foundry_service"
//
// Role cache and policy:
//
//	FOUNDRY_REDIS_URL="redis://localhost:6379/0"   # empty keeps the cache in process
//	FOUNDRY_ROLE_CACHE_TTL="30s"
//	FOUNDRY_RBAC_POLICY_PATH="/etc/foundry/rbac.yaml"
//
// Audit and worker:
//
//	FOUNDRY_AUDIT_RETENTION="2160h"
//	FOUNDRY_JOB_AUDIT_RETENTION_SCHEDULE="0 3 * * *"
//	FOUNDRY_JOB_TOKEN_CLEANUP_SCHEDULE="0 * * * *"
//	FOUNDRY_JOB_USAGE_SNAPSHOT_SCHEDULE="off"   # disables the job
//
// Observability:
//
//	FOUNDRY_LOG_LEVEL="info"
//	FOUNDRY_METRICS_ENABLED="true"
//	FOUNDRY_OTEL_ENABLED="false"
//	FOUNDRY_OTEL_ENDPOINT="localhost:4317"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	scoper := postgres.NewScoperFromManager(cm, cfg.ScopeConfig())
package config
