// Package config handles loading and validation of application configuration
// from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/spf13/viper"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port           string      `mapstructure:"PORT" yaml:"port"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	Version        string      `mapstructure:"VERSION" yaml:"version"`
}

// DatabaseConfig holds PostgreSQL connection details for the remote
// notification store.
type DatabaseConfig struct {
	Host         string `mapstructure:"HOST" yaml:"host"`
	Port         int    `mapstructure:"PORT" yaml:"port"`
	User         string `mapstructure:"USER" yaml:"user"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	Name         string `mapstructure:"NAME" yaml:"name"`
	SSLMode      string `mapstructure:"SSL_MODE" yaml:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"MAX_OPEN_CONNS" yaml:"max_open_conns"`
}

// ConnString returns a key-value connection string for pgx.
func (c *DatabaseConfig) ConnString() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslmode)
}

// RedisConfig holds Redis connection details for the local cache and the
// broadcast queue subscription.
type RedisConfig struct {
	Address  string `mapstructure:"ADDRESS" yaml:"address"`
	Password string `mapstructure:"PASSWORD" yaml:"password"`
	DB       int    `mapstructure:"DB" yaml:"db"`
	UseTLS   bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
}

// MutationConfig tunes the safe mutation service. The retry delay is fixed,
// not exponential: read-state writes are cheap and the cap is low.
type MutationConfig struct {
	// MaxRetries is the number of attempts for a single remote update (default: 3)
	MaxRetries int `mapstructure:"MAX_RETRIES" yaml:"max_retries"`
	// RetryDelayMs is the fixed delay between attempts in milliseconds (default: 1000)
	RetryDelayMs int `mapstructure:"RETRY_DELAY_MS" yaml:"retry_delay_ms"`
	// BatchLimit caps the number of documents per atomic batched write (default: 500)
	BatchLimit int `mapstructure:"BATCH_LIMIT" yaml:"batch_limit"`
}

// RetryDelay returns the configured inter-attempt delay.
func (c MutationConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// DedupConfig tunes the broadcast dedup cache.
type DedupConfig struct {
	// MaxStoredIDs bounds the persisted set of delivered ids (default: 50).
	// Eviction is strictly oldest-first once the bound is exceeded.
	MaxStoredIDs int `mapstructure:"MAX_STORED_IDS" yaml:"max_stored_ids"`
	// DeliveryMode selects which broadcast items this instance handles (default: local)
	DeliveryMode string `mapstructure:"DELIVERY_MODE" yaml:"delivery_mode"`
}

// WorkerPoolConfig holds configuration for the maintenance worker pool.
type WorkerPoolConfig struct {
	// MaxWorkers is the number of concurrent workers (default: 4)
	MaxWorkers int `mapstructure:"MAX_WORKERS" yaml:"max_workers"`
	// QueueSize is the maximum number of pending jobs (default: 100)
	QueueSize int `mapstructure:"QUEUE_SIZE" yaml:"queue_size"`
	// ShutdownTimeoutSeconds is the max time to wait for workers during shutdown (default: 30)
	ShutdownTimeoutSeconds int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server     ServerConfig     `mapstructure:"SERVER" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"DATABASE" yaml:"database"`
	Redis      RedisConfig      `mapstructure:"REDIS" yaml:"redis"`
	Mutation   MutationConfig   `mapstructure:"MUTATION" yaml:"mutation"`
	Dedup      DedupConfig      `mapstructure:"DEDUP" yaml:"dedup"`
	WorkerPool WorkerPoolConfig `mapstructure:"WORKER_POOL" yaml:"worker_pool"`
}

// IsProduction returns true if the application is running in production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables using Viper,
// sets default values, unmarshals the configuration, and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "campuslink_dev")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.MAX_OPEN_CONNS", 5)
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 3)
	v.SetDefault("MUTATION.MAX_RETRIES", 3)
	v.SetDefault("MUTATION.RETRY_DELAY_MS", 1000)
	v.SetDefault("MUTATION.BATCH_LIMIT", 500)
	v.SetDefault("DEDUP.MAX_STORED_IDS", 50)
	v.SetDefault("DEDUP.DELIVERY_MODE", "local")
	v.SetDefault("WORKER_POOL.MAX_WORKERS", 4)
	v.SetDefault("WORKER_POOL.QUEUE_SIZE", 100)
	v.SetDefault("WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", 30)
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envBindings := [][2]string{
		{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
		{"SERVER.PORT", "PORT"},
		{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
		{"DATABASE.HOST", "DB_HOST"},
		{"DATABASE.PORT", "DB_PORT"},
		{"DATABASE.USER", "DB_USER"},
		{"DATABASE.PASSWORD", "DB_PASSWORD"},
		{"DATABASE.NAME", "DB_NAME"},
		{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.USE_TLS", "REDIS_USE_TLS"},
		{"MUTATION.MAX_RETRIES", "MUTATION_MAX_RETRIES"},
		{"MUTATION.RETRY_DELAY_MS", "MUTATION_RETRY_DELAY_MS"},
		{"MUTATION.BATCH_LIMIT", "MUTATION_BATCH_LIMIT"},
		{"DEDUP.MAX_STORED_IDS", "DEDUP_MAX_STORED_IDS"},
		{"DEDUP.DELIVERY_MODE", "DEDUP_DELIVERY_MODE"},
		{"WORKER_POOL.MAX_WORKERS", "WORKER_POOL_MAX_WORKERS"},
		{"WORKER_POOL.QUEUE_SIZE", "WORKER_POOL_QUEUE_SIZE"},
		{"WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", "WORKER_POOL_SHUTDOWN_TIMEOUT_SECONDS"},
	}

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Infow("Configuration loaded",
		"environment", cfg.Server.Environment,
		"server_port", cfg.Server.Port,
		"db_host", cfg.Database.Host,
		"redis_address", cfg.Redis.Address,
		"mutation_max_retries", cfg.Mutation.MaxRetries,
		"mutation_batch_limit", cfg.Mutation.BatchLimit,
		"dedup_max_stored_ids", cfg.Dedup.MaxStoredIDs,
	)

	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if cfg.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if cfg.Database.Password == "" {
		log.Warn("Database password is not set. Ensure this is intended (e.g., using trusted auth).")
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if cfg.Mutation.MaxRetries <= 0 {
		return fmt.Errorf("mutation max retries must be positive")
	}
	if cfg.Mutation.RetryDelayMs < 0 {
		return fmt.Errorf("mutation retry delay must not be negative")
	}
	if cfg.Mutation.BatchLimit <= 0 {
		return fmt.Errorf("mutation batch limit must be positive")
	}

	if cfg.Dedup.MaxStoredIDs <= 0 {
		return fmt.Errorf("dedup max stored ids must be positive")
	}
	if cfg.Dedup.DeliveryMode != "local" && cfg.Dedup.DeliveryMode != "system" {
		return fmt.Errorf("dedup delivery mode must be 'local' or 'system'")
	}

	if cfg.WorkerPool.MaxWorkers <= 0 {
		return fmt.Errorf("worker pool max workers must be positive")
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		return fmt.Errorf("worker pool queue size must be positive")
	}
	if cfg.WorkerPool.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("worker pool shutdown timeout must be positive")
	}

	return nil
}
