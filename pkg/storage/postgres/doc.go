// Package postgres is the PostgreSQL storage layer.
//
// Every statement runs inside a unit of work opened by a Scoper. A unit is one
// transaction bound to exactly one tenancy.DatabaseContext:
//
//	err := scoper.Run(ctx, tc, func(ctx context.Context, q postgres.Querier) error {
//		_, err := q.ExecContext(ctx, `UPDATE projects SET name = $1 WHERE id = $2`, name, id)
//		return err
//	})
//
// The context is written with set_config(..., true) before the callback runs,
// so it is discarded with the transaction and a pooled connection never
// carries it into the next unit. Row-level security policies created by
// Migrations read it back through app_current_org_id(), app_current_role()
// and app_bypass_rls(). A unit with no context sees no tenant rows.
//
// Service contexts bypass those policies. Each one is logged and handed to the
// configured ServiceAuditor before its transaction begins; when the audit
// write fails the unit does not run.
//
// Errors returned by the callback come back unchanged. Use IsInsufficientPrivilege
// and friends to classify storage rejections.
package postgres
