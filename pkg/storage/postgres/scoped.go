package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/foundry/pkg/contextkeys"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// Querier is the database handle passed to a scoped unit of work.
// *sql.Tx satisfies it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ServiceAuditor records the use of a service context before its unit of work runs
type ServiceAuditor interface {
	AuditServiceContext(ctx context.Context, sc tenancy.ServiceContext, at time.Time) error
}

// Transaction-local settings read by the row-level security helpers.
// set_config(..., true) scopes each value to the current transaction.
const establishContextSQL = `SELECT set_config('app.current_org_id', $1, true),
       set_config('app.current_user_id', $2, true),
       set_config('app.current_role', $3, true),
       set_config('app.bypass_rls', $4, true),
       set_config('app.service_reason', $5, true)`

const statementTimeoutSQL = `SELECT set_config('statement_timeout', $1, true)`

// Scoped unit outcomes used as metric labels
const (
	outcomeCommitted   = "committed"
	outcomeRolledBack  = "rolled_back"
	outcomePanic       = "panic"
	outcomeAuditFailed = "audit_failed"
	outcomeBeginFailed = "begin_failed"
	outcomeSetupFailed = "setup_failed"
	outcomeCommitFail  = "commit_failed"
)

// ScopeConfig configures a Scoper
type ScopeConfig struct {
	// UnitTimeout bounds each unit of work; the transaction rolls back when it expires. Zero disables it.
	UnitTimeout time.Duration

	// StatementTimeout is applied with a transaction-local statement_timeout. Zero disables it.
	StatementTimeout time.Duration

	// Isolation is the transaction isolation level. Zero uses the server default.
	Isolation sql.IsolationLevel

	// ServiceRole, when set, is assumed with SET LOCAL ROLE for service contexts.
	ServiceRole string

	// Auditor receives every service context before execution. A failed audit write aborts the unit.
	Auditor ServiceAuditor

	Metrics *observability.Metrics
	Logger  *observability.Logger

	// Now is the clock used for audit timestamps
	Now func() time.Time
}

// Scoper runs units of database work under exactly one tenancy.DatabaseContext
type Scoper struct {
	primary *sql.DB
	replica func() *sql.DB
	cfg     ScopeConfig
}

// NewScoper creates a scoper over a single pool
func NewScoper(db *sql.DB, cfg ScopeConfig) *Scoper {
	return newScoper(db, func() *sql.DB { return db }, cfg)
}

// NewScoperFromManager creates a scoper that writes to the primary and
// runs read-only units on replicas
func NewScoperFromManager(cm *ConnectionManager, cfg ScopeConfig) *Scoper {
	return newScoper(cm.Primary(), cm.Replica, cfg)
}

func newScoper(primary *sql.DB, replica func() *sql.DB, cfg ScopeConfig) *Scoper {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scoper{primary: primary, replica: replica, cfg: cfg}
}

// Run executes fn inside one transaction scoped to dbCtx.
//
// The context is validated before any connection is borrowed, established with
// transaction-local settings before fn runs, and discarded with the transaction
// on commit, rollback or panic. The error returned by fn is returned unchanged.
func (s *Scoper) Run(ctx context.Context, dbCtx tenancy.DatabaseContext, fn func(ctx context.Context, q Querier) error) error {
	return s.run(ctx, s.primary, false, dbCtx, fn)
}

// RunReadOnly is Run in a read-only transaction, on a replica when one is available
func (s *Scoper) RunReadOnly(ctx context.Context, dbCtx tenancy.DatabaseContext, fn func(ctx context.Context, q Querier) error) error {
	return s.run(ctx, s.replica(), true, dbCtx, fn)
}

// WithResult runs fn through s.Run and returns its value
func WithResult[T any](ctx context.Context, s *Scoper, dbCtx tenancy.DatabaseContext, fn func(ctx context.Context, q Querier) (T, error)) (T, error) {
	var result T
	err := s.Run(ctx, dbCtx, func(ctx context.Context, q Querier) error {
		var err error
		result, err = fn(ctx, q)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (s *Scoper) run(ctx context.Context, db *sql.DB, readOnly bool, dbCtx tenancy.DatabaseContext, fn func(ctx context.Context, q Querier) error) (err error) {
	logger := s.logger(ctx)

	kind, err := tenancy.Resolve(dbCtx)
	if err != nil {
		s.cfg.Metrics.RecordInvalidContext()
		logger.WithError(err).Error("Rejected unit of work with invalid database context")
		return err
	}

	start := time.Now()
	outcome := outcomeCommitted

	ctx, span := observability.Tracer().Start(ctx, "postgres.scoped_unit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("foundry.context_kind", kind.String()),
			attribute.Bool("db.read_only", readOnly),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		s.cfg.Metrics.RecordScopedUnit(kind.String(), outcome, time.Since(start))
	}()

	if kind == tenancy.KindService {
		sc, _ := tenancy.AsService(dbCtx)
		logger.WithField("reason", sc.Reason).Warn("Service context bypasses row-level security")
		if s.cfg.Auditor != nil {
			if auditErr := s.cfg.Auditor.AuditServiceContext(ctx, sc, s.cfg.Now().UTC()); auditErr != nil {
				outcome = outcomeAuditFailed
				return fmt.Errorf("failed to audit service context: %w", auditErr)
			}
		}
	} else {
		tc, _ := tenancy.AsTenant(dbCtx)
		span.SetAttributes(attribute.String("foundry.org_id", tc.OrgID))
	}

	if s.cfg.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.UnitTimeout)
		defer cancel()
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: s.cfg.Isolation, ReadOnly: readOnly})
	if err != nil {
		outcome = outcomeBeginFailed
		return fmt.Errorf("failed to begin scoped transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			outcome = outcomePanic
			s.rollback(tx, logger)
			panic(p)
		}
	}()

	if err := s.establish(ctx, tx, kind, dbCtx); err != nil {
		outcome = outcomeSetupFailed
		s.rollback(tx, logger)
		return err
	}

	if err := fn(ctx, tx); err != nil {
		outcome = outcomeRolledBack
		s.rollback(tx, logger)
		return err
	}

	if err := tx.Commit(); err != nil {
		outcome = outcomeCommitFail
		return fmt.Errorf("failed to commit scoped transaction: %w", err)
	}

	return nil
}

// establish binds dbCtx to tx before any caller statement runs
func (s *Scoper) establish(ctx context.Context, tx *sql.Tx, kind tenancy.Kind, dbCtx tenancy.DatabaseContext) error {
	var orgID, userID, role, bypass, reason string
	switch kind {
	case tenancy.KindTenant:
		tc, _ := tenancy.AsTenant(dbCtx)
		orgID, userID, role, bypass = tc.OrgID, tc.UserID, tc.Role.String(), "off"
	case tenancy.KindService:
		sc, _ := tenancy.AsService(dbCtx)
		bypass, reason = "on", sc.Reason
	default:
		return tenancy.ErrInvalidContext
	}

	if _, err := tx.ExecContext(ctx, establishContextSQL, orgID, userID, role, bypass, reason); err != nil {
		return fmt.Errorf("failed to establish database context: %w", err)
	}

	if s.cfg.StatementTimeout > 0 {
		ms := strconv.FormatInt(s.cfg.StatementTimeout.Milliseconds(), 10)
		if _, err := tx.ExecContext(ctx, statementTimeoutSQL, ms); err != nil {
			return fmt.Errorf("failed to set statement timeout: %w", err)
		}
	}

	if kind == tenancy.KindService && s.cfg.ServiceRole != "" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL ROLE "+pq.QuoteIdentifier(s.cfg.ServiceRole)); err != nil {
			return fmt.Errorf("failed to assume service role: %w", err)
		}
	}

	return nil
}

func (s *Scoper) rollback(tx *sql.Tx, logger *observability.Logger) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.WithError(err).Error("Failed to roll back scoped transaction")
	}
}

func (s *Scoper) logger(ctx context.Context) *observability.Logger {
	logger := s.cfg.Logger
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	return logger
}
