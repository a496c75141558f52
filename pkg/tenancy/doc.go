// Package tenancy defines the database access context carried by every unit of work.
//
// # Overview
//
// Every database operation in Foundry runs under exactly one DatabaseContext. The context is
// either a TenantContext, scoped to one organization, one user and that user's role in the
// organization, or a ServiceContext, an elevated operation that bypasses row-level security
// and must carry a human-readable reason for the audit log.
//
// DatabaseContext is a sealed interface: only the two types in this package implement it, so a
// type switch over a DatabaseContext is exhaustive.
//
// # Usage
//
// Request handlers build a TenantContext from the authenticated principal and the membership
// row of the organization in the URL:
//
//	tc, err := tenancy.NewTenantContext(orgID, userID, tenancy.RoleMember)
//	if err != nil {
//		return err
//	}
//	ctx = tenancy.WithTenantContext(ctx, tc)
//
// Migrations, scheduled jobs and admin tooling build a ServiceContext instead:
//
//	sc, err := tenancy.NewServiceContext("nightly audit retention")
//
// Handlers never construct a ServiceContext.
//
// # Discrimination
//
// IsTenantContext and IsServiceContext are mutually exclusive. Resolve is the fail-fast form
// used by the storage layer: a value satisfying neither predicate returns ErrInvalidContext and
// is never treated as either access level.
package tenancy
