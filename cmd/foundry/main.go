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

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/foundry/pkg/api"
	"github.com/platinummonkey/foundry/pkg/async"
	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/auth"
	"github.com/platinummonkey/foundry/pkg/cache"
	"github.com/platinummonkey/foundry/pkg/config"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/orgs"
	"github.com/platinummonkey/foundry/pkg/projects"
	"github.com/platinummonkey/foundry/pkg/rbac"
	"github.com/platinummonkey/foundry/pkg/storage/postgres"
)

var version = "dev"

var (
	migrate        = flag.Bool("migrate", false, "Apply database migrations before serving")
	migrateOnly    = flag.Bool("migrate-only", false, "Apply database migrations and exit")
	bootstrapEmail = flag.String("bootstrap-user", "", "Create a user with this email, print an API token for it and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "foundry").
		WithField("version", version)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Foundry exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, cfg.OTelConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	conns, err := postgres.NewConnectionManager(cfg.ConnectionConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db := conns.Primary()

	if *migrate || *migrateOnly {
		applied, err := postgres.NewMigrator(db, logger).Up(ctx)
		if err != nil {
			conns.Close()
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		logger.WithField("applied", applied).Info("Database migrations complete")
		if *migrateOnly {
			return conns.Close()
		}
	}

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		conns.Close()
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	// Synchronous: a failed service-context audit write must abort the unit
	auditLogger := audit.NewMultiLogger(dbAudit, audit.NewLogLogger(logger.WithField("component", "audit")))

	scopeCfg := cfg.ScopeConfig()
	scopeCfg.Auditor = audit.NewServiceContextAuditor(auditLogger)
	scopeCfg.Metrics = metrics
	scopeCfg.Logger = logger.WithField("component", "scoper")
	scoper := postgres.NewScoperFromManager(conns, scopeCfg)

	tokens := auth.NewTokenStore(db, scoper, logger.WithField("component", "auth"))

	if *bootstrapEmail != "" {
		defer conns.Close()
		return bootstrap(ctx, tokens, *bootstrapEmail)
	}

	var redisClient *redis.Client
	roles := cache.RoleCache(cache.NewMemoryRoleCache(cfg.Redis.LocalSize, cfg.Redis.RoleCacheTTL))
	if cfg.Redis.URL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisClientConfig())
		if err != nil {
			conns.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		shared := cache.NewRedisRoleCache(redisClient, cfg.Redis.RoleCacheTTL)
		roles = cache.NewTieredRoleCache(roles, shared, metrics, logger.WithField("component", "role-cache"))
		logger.Info("Shared role cache enabled")
	}

	policy := rbac.DefaultPolicy()
	if cfg.RBAC.PolicyPath != "" {
		policy, err = rbac.LoadPolicyFile(cfg.RBAC.PolicyPath)
		if err != nil {
			conns.Close()
			return fmt.Errorf("failed to load RBAC policy: %w", err)
		}
	}
	policies := rbac.NewPolicyStore(policy)

	resolver := orgs.NewMembershipResolver(db, roles, logger.WithField("component", "membership"))
	checker := rbac.NewPermissionChecker(resolver, policies, metrics)
	orgService := orgs.NewService(scoper, db, policies, roles, logger.WithField("component", "orgs"))
	projectService := projects.NewService(scoper, logger.WithField("component", "projects"))

	health := observability.NewHealthChecker(conns, redisClient, version)

	apiServer := api.NewServer(api.Deps{
		Orgs:           orgService,
		Projects:       projectService,
		Tokens:         tokens,
		Permissions:    checker,
		Policies:       policies,
		AuditStore:     audit.NewDBStore(scoper),
		AuditLogger:    auditLogger,
		Health:         health,
		Metrics:        metrics,
		Registry:       registry,
		Logger:         logger,
		LogAllRequests: cfg.Audit.LogAllRequests,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, health)
	if registry != nil {
		healthRouter.Handle("/metrics", observability.MetricsHandler(registry)).Methods("GET")
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("database", func(context.Context) error { return conns.Close() })
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.RegisterShutdownFunc("audit", func(context.Context) error { return auditLogger.Close() })
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.RegisterShutdownFunc("health-server", healthServer.Shutdown)

	if cfg.RBAC.PolicyPath != "" && cfg.RBAC.Watch {
		watcher, err := rbac.NewPolicyWatcher(cfg.RBAC.PolicyPath, policies, logger.WithField("component", "rbac"))
		if err != nil {
			conns.Close()
			return fmt.Errorf("failed to watch RBAC policy: %w", err)
		}
		async.SafeGo(ctx, logger, "policy-watcher", func(ctx context.Context) {
			if err := watcher.Run(ctx); err != nil {
				logger.WithError(err).Error("Policy watcher stopped")
			}
		})
	}

	conns.StartHealthCheckRoutine(ctx, 30*time.Second)
	if metrics != nil {
		async.SafeGo(ctx, logger, "db-stats", func(ctx context.Context) {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					metrics.UpdateDBStats(conns.Stats().Primary)
				case <-ctx.Done():
					return
				}
			}
		})
	}

	serveErr := make(chan error, 2)
	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		logger.Infof("API server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case err := <-serveErr:
		stop()
		return errors.Join(err, shutdown.Shutdown())
	case <-ctx.Done():
	}
	return shutdown.WaitForShutdown(ctx)
}

func bootstrap(ctx context.Context, tokens *auth.TokenStore, email string) error {
	user, err := tokens.CreateUser(ctx, email, email)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	_, token, err := tokens.CreateToken(ctx, user.ID, "bootstrap", nil)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	fmt.Printf("user_id=%s\ntoken=%s\n", user.ID, token)
	return nil
}
