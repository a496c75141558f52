package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/auth"
	"github.com/platinummonkey/foundry/pkg/config"
	"github.com/platinummonkey/foundry/pkg/jobs"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/storage/postgres"
)

var version = "dev"

var runOnce = flag.Bool("run-once", false, "Run every job once and exit")

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
		log.SetLevel(level)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Worker exited with error")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Library components log through the structured application logger
	appLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "foundry-worker").
		WithField("version", version)

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	conns, err := postgres.NewConnectionManager(cfg.ConnectionConfig(), appLogger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conns.Close()
	db := conns.Primary()

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	auditLogger := audit.NewMultiLogger(dbAudit, audit.NewLogLogger(appLogger.WithField("component", "audit")))
	defer auditLogger.Close()

	scopeCfg := cfg.ScopeConfig()
	scopeCfg.Auditor = audit.NewServiceContextAuditor(auditLogger)
	scopeCfg.Metrics = metrics
	scopeCfg.Logger = appLogger.WithField("component", "scoper")
	scoper := postgres.NewScoperFromManager(conns, scopeCfg)

	runner := jobs.NewRunner(log, metrics, cfg.Worker.JobTimeout)
	registered := []jobs.Job{
		&jobs.AuditRetentionJob{
			Store:     audit.NewDBStore(scoper),
			Retention: cfg.Audit.Retention,
			Cron:      cfg.Worker.AuditRetentionSchedule,
			Log:       log.WithField("job", "audit-retention"),
		},
		&jobs.TokenCleanupJob{
			Tokens: auth.NewTokenStore(db, scoper, appLogger.WithField("component", "auth")),
			Cron:   cfg.Worker.TokenCleanupSchedule,
			Log:    log.WithField("job", "token-cleanup"),
		},
		&jobs.UsageSnapshotJob{
			Scoper: scoper,
			Cron:   cfg.Worker.UsageSnapshotSchedule,
			Log:    log.WithField("job", "usage-snapshot"),
		},
	}
	for _, job := range registered {
		if err := runner.Register(job); err != nil {
			return err
		}
	}

	if *runOnce {
		log.Info("Running all jobs once")
		if err := runner.RunOnce(ctx); err != nil {
			return err
		}
		log.Info("All jobs completed")
		return nil
	}

	health := observability.NewHealthChecker(conns, nil, version)
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, health)
	if registry != nil {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods("GET")
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Health server failed")
		}
	}()

	runner.Start()
	log.WithFields(logrus.Fields{
		"audit_retention": cfg.Worker.AuditRetentionSchedule,
		"token_cleanup":   cfg.Worker.TokenCleanupSchedule,
		"usage_snapshot":  cfg.Worker.UsageSnapshotSchedule,
	}).Info("Foundry worker started")

	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Health server shutdown failed")
	}

	select {
	case <-runner.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("Timed out waiting for running jobs")
	}

	log.Info("Worker stopped")
	return nil
}
