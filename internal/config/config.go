package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Engine   EngineConfig
	Notify   NotifyConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// EngineConfig tunes the conflict engine itself.
type EngineConfig struct {
	SnapshotInterval      int64
	SessionTTLSeconds     int
	SessionSweepSeconds   int
	StoreRetryMax         int
	StoreRetryBaseMillis  int
	StoreRetryMaxMillis   int
	CASReapplyLimit       int
	IdempotencyTTLMinutes int
	PolicyFile            string
	SchemaFile            string
}

// NotifyConfig holds the conflict notification webhook endpoint.
type NotifyConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "collab-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Engine: EngineConfig{
			SnapshotInterval:      int64(getEnvAsInt("ENGINE_SNAPSHOT_INTERVAL", 50)),
			SessionTTLSeconds:     getEnvAsInt("ENGINE_SESSION_TTL_SECONDS", 90),
			SessionSweepSeconds:   getEnvAsInt("ENGINE_SESSION_SWEEP_SECONDS", 0),
			StoreRetryMax:         getEnvAsInt("ENGINE_STORE_RETRY_MAX", 4),
			StoreRetryBaseMillis:  getEnvAsInt("ENGINE_STORE_RETRY_BASE_MILLIS", 50),
			StoreRetryMaxMillis:   getEnvAsInt("ENGINE_STORE_RETRY_MAX_MILLIS", 2000),
			CASReapplyLimit:       getEnvAsInt("ENGINE_CAS_REAPPLY_LIMIT", 5),
			IdempotencyTTLMinutes: getEnvAsInt("ENGINE_IDEMPOTENCY_TTL_MINUTES", 1440),
			PolicyFile:            getEnv("ENGINE_POLICY_FILE", ""),
			SchemaFile:            getEnv("ENGINE_SCHEMA_FILE", ""),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if cfg.Engine.SnapshotInterval <= 0 {
		return nil, fmt.Errorf("ENGINE_SNAPSHOT_INTERVAL must be positive")
	}
	if cfg.Engine.SessionTTLSeconds <= 0 {
		return nil, fmt.Errorf("ENGINE_SESSION_TTL_SECONDS must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SessionTTL returns the heartbeat TTL for editing sessions.
func (e EngineConfig) SessionTTL() time.Duration {
	return time.Duration(e.SessionTTLSeconds) * time.Second
}

// IdempotencyTTL returns how long idempotency keys are remembered.
func (e EngineConfig) IdempotencyTTL() time.Duration {
	return time.Duration(e.IdempotencyTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
