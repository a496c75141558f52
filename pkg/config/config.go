package config

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/foundry/pkg/cache"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	RBAC          RBACConfig
	Audit         AuditConfig
	Worker        WorkerConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection and unit-of-work settings
type DatabaseConfig struct {
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	ConnTimeout time.Duration

	UnitTimeout      time.Duration
	StatementTimeout time.Duration
	Isolation        sql.IsolationLevel

	// ServiceRole is assumed for service contexts when set
	ServiceRole string
}

// RedisConfig holds the shared role cache settings. An empty URL disables it.
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	RoleCacheTTL time.Duration
	LocalSize    int
}

// RBACConfig holds the role policy file location. An empty path uses the built-in policy.
type RBACConfig struct {
	PolicyPath string
	Watch      bool
}

// AuditConfig holds audit logging settings
type AuditConfig struct {
	LogAllRequests bool
	Retention      time.Duration
}

// WorkerConfig holds cron schedules for background jobs. An empty schedule disables the job.
type WorkerConfig struct {
	AuditRetentionSchedule string
	TokenCleanupSchedule   string
	UsageSnapshotSchedule  string
	JobTimeout             time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		RBAC:          loadRBACConfig(),
		Audit:         loadAuditConfig(),
		Worker:        loadWorkerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FOUNDRY_HOST", "0.0.0.0"),
		Port:            getEnv("FOUNDRY_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FOUNDRY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FOUNDRY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FOUNDRY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FOUNDRY_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FOUNDRY_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:              getEnv("FOUNDRY_DATABASE_URL", ""),
		ReplicaURLs:      postgres.ParseReplicaURLs(getEnv("FOUNDRY_DATABASE_REPLICA_URLS", "")),
		MaxConns:         getEnvInt("FOUNDRY_DATABASE_MAX_CONNS", 20),
		MinConns:         getEnvInt("FOUNDRY_DATABASE_MIN_CONNS", 5),
		ConnTimeout:      getEnvDuration("FOUNDRY_DATABASE_TIMEOUT", 10*time.Second),
		UnitTimeout:      getEnvDuration("FOUNDRY_DATABASE_UNIT_TIMEOUT", 30*time.Second),
		StatementTimeout: getEnvDuration("FOUNDRY_DATABASE_STATEMENT_TIMEOUT", 10*time.Second),
		Isolation:        parseIsolation(getEnv("FOUNDRY_DATABASE_ISOLATION", "")),
		ServiceRole:      getEnv("FOUNDRY_DATABASE_SERVICE_ROLE", ""),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          getEnv("FOUNDRY_REDIS_URL", ""),
		Password:     getEnv("FOUNDRY_REDIS_PASSWORD", ""),
		DB:           getEnvInt("FOUNDRY_REDIS_DB", 0),
		PoolSize:     getEnvInt("FOUNDRY_REDIS_POOL_SIZE", 10),
		RoleCacheTTL: getEnvDuration("FOUNDRY_ROLE_CACHE_TTL", 30*time.Second),
		LocalSize:    getEnvInt("FOUNDRY_ROLE_CACHE_SIZE", 10000),
	}
}

func loadRBACConfig() RBACConfig {
	return RBACConfig{
		PolicyPath: getEnv("FOUNDRY_RBAC_POLICY_PATH", ""),
		Watch:      getEnvBool("FOUNDRY_RBAC_POLICY_WATCH", true),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		LogAllRequests: getEnvBool("FOUNDRY_AUDIT_LOG_ALL_REQUESTS", false),
		Retention:      getEnvDuration("FOUNDRY_AUDIT_RETENTION", 90*24*time.Hour),
	}
}

func loadWorkerConfig() WorkerConfig {
	return WorkerConfig{
		AuditRetentionSchedule: getSchedule("FOUNDRY_JOB_AUDIT_RETENTION_SCHEDULE", "0 3 * * *"),
		TokenCleanupSchedule:   getSchedule("FOUNDRY_JOB_TOKEN_CLEANUP_SCHEDULE", "0 * * * *"),
		UsageSnapshotSchedule:  getSchedule("FOUNDRY_JOB_USAGE_SNAPSHOT_SCHEDULE", "*/15 * * * *"),
		JobTimeout:             getEnvDuration("FOUNDRY_JOB_TIMEOUT", 10*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("FOUNDRY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FOUNDRY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FOUNDRY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FOUNDRY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FOUNDRY_OTEL_SERVICE_NAME", "foundry"),
		OTelServiceVersion: getEnv("FOUNDRY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FOUNDRY_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("FOUNDRY_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min connections (%d) exceeds max connections (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Database.UnitTimeout < 0 || c.Database.StatementTimeout < 0 {
		return fmt.Errorf("database timeouts must not be negative")
	}
	if c.Database.UnitTimeout > 0 && c.Database.StatementTimeout > c.Database.UnitTimeout {
		return fmt.Errorf("statement timeout (%s) exceeds unit timeout (%s)", c.Database.StatementTimeout, c.Database.UnitTimeout)
	}

	if c.Redis.RoleCacheTTL <= 0 {
		return fmt.Errorf("role cache TTL must be positive")
	}

	if c.Audit.Retention < 24*time.Hour {
		return fmt.Errorf("audit retention must be at least 24h, got %s", c.Audit.Retention)
	}

	for name, spec := range map[string]string{
		"audit retention": c.Worker.AuditRetentionSchedule,
		"token cleanup":   c.Worker.TokenCleanupSchedule,
		"usage snapshot":  c.Worker.UsageSnapshotSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// ConnectionConfig returns the connection manager settings
func (c *Config) ConnectionConfig() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  c.Database.URL,
		ReplicaURLs: c.Database.ReplicaURLs,
		MaxConns:    c.Database.MaxConns,
		MinConns:    c.Database.MinConns,
		Timeout:     c.Database.ConnTimeout,
	}
}

// ScopeConfig returns the unit-of-work settings. Auditor, metrics and logger
// are wired by the caller.
func (c *Config) ScopeConfig() postgres.ScopeConfig {
	return postgres.ScopeConfig{
		UnitTimeout:      c.Database.UnitTimeout,
		StatementTimeout: c.Database.StatementTimeout,
		Isolation:        c.Database.Isolation,
		ServiceRole:      c.Database.ServiceRole,
	}
}

// RedisClientConfig returns the Redis client settings
func (c *Config) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		URL:      c.Redis.URL,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		PoolSize: c.Redis.PoolSize,
	}
}

// OTelConfig returns the OpenTelemetry settings
func (c *Config) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		SampleRatio:    c.Observability.OTelSampleRatio,
	}
}

// parseIsolation maps an isolation level name to sql.IsolationLevel.
// Unknown names fall back to the server default.
func parseIsolation(level string) sql.IsolationLevel {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(level), "_", " ")) {
	case "read committed":
		return sql.LevelReadCommitted
	case "repeatable read":
		return sql.LevelRepeatableRead
	case "serializable":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getSchedule returns a cron schedule or a default; "off" disables the job
func getSchedule(key, defaultValue string) string {
	value := getEnv(key, defaultValue)
	if strings.EqualFold(value, "off") {
		return ""
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
