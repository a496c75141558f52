// Package api provides the Foundry HTTP API.
//
// # Routes
//
//	GET    /healthz, /readyz, /metrics
//	GET    /v1/organizations                               organizations of the caller
//	POST   /v1/organizations                               create; caller becomes OWNER
//	GET    /v1/tokens, POST /v1/tokens, DELETE /v1/tokens/{token_id}
//	GET    /v1/orgs/{org_id}                               organization:read
//	PATCH  /v1/orgs/{org_id}                               organization:update
//	GET    /v1/orgs/{org_id}/members                       members:read
//	POST   /v1/orgs/{org_id}/members                       members:invite
//	PATCH  /v1/orgs/{org_id}/members/{user_id}             members:update
//	DELETE /v1/orgs/{org_id}/members/{user_id}             members:remove
//	GET    /v1/orgs/{org_id}/projects[/{project_id}]       projects:read
//	POST   /v1/orgs/{org_id}/projects                      projects:write
//	PATCH  /v1/orgs/{org_id}/projects/{project_id}         projects:write
//	DELETE /v1/orgs/{org_id}/projects/{project_id}         projects:delete
//	GET    /v1/orgs/{org_id}/audit[/export|/{event_id}]    audit:read
//
// Every /v1 route requires a bearer token. Routes under /v1/orgs/{org_id}
// run with the caller's tenant context for that organization; handlers pass
// it to the services, which run each operation as one scoped unit of work.
//
// # Errors
//
// Errors are JSON objects with an "error" field. Storage failures are mapped
// by httputil.WriteStorageError, so a row-level security rejection becomes
// 403 and a constraint violation 409 or 400 without exposing database detail.
package api
