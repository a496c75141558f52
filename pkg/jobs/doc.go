// Package jobs runs background maintenance for Foundry.
//
// A Runner schedules Jobs with cron. Each run receives a fresh
// tenancy.ServiceContext whose reason names the job, so every cross-tenant
// write the worker makes is attributable in the audit log:
//
//	runner := jobs.NewRunner(log, metrics, 10*time.Minute)
//	runner.Register(&jobs.TokenCleanupJob{Tokens: tokenStore, Cron: "0 * * * *"})
//	runner.Start()
//	defer runner.Stop()
//
// RunOnce runs all registered jobs concurrently and is used by the worker's
// -run-once flag.
package jobs
