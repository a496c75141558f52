// Package httputil provides helpers shared by the HTTP handlers.
//
// Responses are JSON. Errors use a single envelope:
//
//	{"error": "not found", "details": {"field": "reason"}}
//
// WriteStorageError maps errors returned from scoped units of work onto
// statuses without echoing storage messages to the client:
//
//	postgres.ErrNotFound          404
//	insufficient_privilege 42501  403
//	unique_violation 23505        409
//	foreign_key / check           400
//	statement timeout, deadline   504
//	tenancy.ErrInvalidContext     500
//
// Request helpers parse path and query parameters registered on a gorilla/mux
// route and write a 400 when a value is malformed.
package httputil
