package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/foundry/pkg/async"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// Job is a unit of background maintenance. Every run gets its own service
// context, so a job never inherits a tenant and is always audited by name.
type Job interface {
	Name() string
	// Schedule is a standard cron expression; empty disables scheduled runs
	Schedule() string
	Run(ctx context.Context, sc tenancy.ServiceContext) error
}

// Runner schedules jobs with cron
type Runner struct {
	cron    *cron.Cron
	jobs    []Job
	log     *logrus.Logger
	metrics *observability.Metrics
	timeout time.Duration
}

// NewRunner creates a runner. Each run is bounded by timeout when positive.
func NewRunner(log *logrus.Logger, metrics *observability.Metrics, timeout time.Duration) *Runner {
	if log == nil {
		log = logrus.New()
	}
	cronLog := cron.PrintfLogger(log)
	return &Runner{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		log:     log,
		metrics: metrics,
		timeout: timeout,
	}
}

// Register adds a job. Jobs without a schedule only run through RunOnce.
func (r *Runner) Register(job Job) error {
	r.jobs = append(r.jobs, job)

	if job.Schedule() == "" {
		r.log.WithField("job", job.Name()).Info("Job has no schedule; run-once only")
		return nil
	}

	_, err := r.cron.AddFunc(job.Schedule(), func() {
		// errors are logged and counted by run
		_ = r.run(context.Background(), job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name(), err)
	}
	r.log.WithFields(logrus.Fields{"job": job.Name(), "schedule": job.Schedule()}).Info("Job scheduled")
	return nil
}

// Start starts the scheduler in the background
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop stops the scheduler. The returned context is done once running jobs finish.
func (r *Runner) Stop() context.Context {
	return r.cron.Stop()
}

// RunOnce runs every registered job concurrently and returns their joined errors
func (r *Runner) RunOnce(ctx context.Context) error {
	errs := make([]error, len(r.jobs))

	var g errgroup.Group
	for i, job := range r.jobs {
		g.Go(func() error {
			errs[i] = r.run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (r *Runner) run(ctx context.Context, job Job) (err error) {
	entry := r.log.WithField("job", job.Name())

	sc, err := tenancy.NewServiceContext("worker job " + job.Name())
	if err != nil {
		return err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		duration := time.Since(start)
		r.metrics.RecordJobRun(job.Name(), err, duration)
		if err != nil {
			entry.WithError(err).WithField("duration", duration).Error("Job failed")
			return
		}
		entry.WithField("duration", duration).Info("Job completed")
	}()

	entry.Info("Job started")
	if err := runJob(ctx, job, sc); err != nil {
		return fmt.Errorf("job %s: %w", job.Name(), err)
	}
	return nil
}

func runJob(ctx context.Context, job Job, sc tenancy.ServiceContext) (err error) {
	defer async.Recover(&err)
	return job.Run(ctx, sc)
}
