package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/foundry/pkg/storage/postgres"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// AuditPurger deletes audit events older than a cutoff
type AuditPurger interface {
	PurgeBefore(ctx context.Context, sc tenancy.ServiceContext, cutoff time.Time) (int64, error)
}

// AuditRetentionJob deletes audit events older than Retention
type AuditRetentionJob struct {
	Store     AuditPurger
	Retention time.Duration
	Cron      string
	Log       logrus.FieldLogger
	Now       func() time.Time
}

func (j *AuditRetentionJob) Name() string     { return "audit-retention" }
func (j *AuditRetentionJob) Schedule() string { return j.Cron }

func (j *AuditRetentionJob) Run(ctx context.Context, sc tenancy.ServiceContext) error {
	if j.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}
	cutoff := now(j.Now).Add(-j.Retention)

	n, err := j.Store.PurgeBefore(ctx, sc, cutoff)
	if err != nil {
		return err
	}
	logger(j.Log).WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff}).Info("Purged audit events")
	return nil
}

// TokenCleaner deletes expired and long-revoked API tokens
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context, sc tenancy.ServiceContext) (int64, error)
}

// TokenCleanupJob removes dead API tokens
type TokenCleanupJob struct {
	Tokens TokenCleaner
	Cron   string
	Log    logrus.FieldLogger
}

func (j *TokenCleanupJob) Name() string     { return "token-cleanup" }
func (j *TokenCleanupJob) Schedule() string { return j.Cron }

func (j *TokenCleanupJob) Run(ctx context.Context, sc tenancy.ServiceContext) error {
	n, err := j.Tokens.CleanupExpiredTokens(ctx, sc)
	if err != nil {
		return err
	}
	logger(j.Log).WithField("deleted", n).Info("Cleaned up API tokens")
	return nil
}

// UsageSnapshotJob records member and project counts for every organization.
// It is the one job that reads across tenants.
type UsageSnapshotJob struct {
	Scoper *postgres.Scoper
	Cron   string
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func (j *UsageSnapshotJob) Name() string     { return "usage-snapshot" }
func (j *UsageSnapshotJob) Schedule() string { return j.Cron }

func (j *UsageSnapshotJob) Run(ctx context.Context, sc tenancy.ServiceContext) error {
	takenAt := now(j.Now).UTC().Truncate(time.Minute)

	n, err := postgres.WithResult(ctx, j.Scoper, sc, func(ctx context.Context, q postgres.Querier) (int64, error) {
		res, err := q.ExecContext(ctx, `
			INSERT INTO org_usage_snapshots (org_id, taken_at, member_count, project_count)
			SELECT o.id, $1,
				(SELECT COUNT(*) FROM organization_members m WHERE m.org_id = o.id),
				(SELECT COUNT(*) FROM projects p WHERE p.org_id = o.id)
			FROM organizations o
			ON CONFLICT (org_id, taken_at) DO NOTHING`,
			takenAt)
		if err != nil {
			return 0, fmt.Errorf("failed to record usage snapshot: %w", err)
		}
		return res.RowsAffected()
	})
	if err != nil {
		return err
	}
	logger(j.Log).WithFields(logrus.Fields{"organizations": n, "taken_at": takenAt}).Info("Recorded usage snapshot")
	return nil
}

func now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock()
}

func logger(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
