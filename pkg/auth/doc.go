// Package auth authenticates API callers with bearer tokens.
//
// Tokens look like fdy_<base64url(32 random bytes)>. Only the SHA-256 hash and
// a short display prefix are stored; the token itself is shown once at
// creation.
//
//	record, token, err := store.CreateToken(ctx, userID, "ci", nil)
//	principal, err := store.ValidateToken(ctx, token)
//
// A Principal names a user and nothing else. Which organization a request
// acts on, and with which role, is decided per request by the tenant
// middleware from the org_id path parameter.
package auth
