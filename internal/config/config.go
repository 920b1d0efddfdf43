package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Instance  InstanceConfig  `mapstructure:"instance"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// InstanceConfig identifies this process among its peers
type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Mode         string        `mapstructure:"mode"`
}

// AuthConfig holds bearer token configuration
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// DatabaseConfig holds local cache database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RemoteConfig holds system of record configuration
type RemoteConfig struct {
	Driver         string        `mapstructure:"driver"`
	DSN            string        `mapstructure:"dsn"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	EnsureSchema   bool          `mapstructure:"ensure_schema"`
}

// DirectoryConfig holds approver directory configuration
type DirectoryConfig struct {
	MaxChainDepth int    `mapstructure:"max_chain_depth"`
	SeedFile      string `mapstructure:"seed_file"`
}

// SyncConfig holds propagation and reconciliation configuration
type SyncConfig struct {
	Workers          int           `mapstructure:"workers"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout"`
	BaseBackoff      time.Duration `mapstructure:"base_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	DoneRetention    time.Duration `mapstructure:"done_retention"`
	ReconcileEvery   time.Duration `mapstructure:"reconcile_interval"`
	ReconcileTimeout time.Duration `mapstructure:"reconcile_timeout"`
	RefreshRetries   int           `mapstructure:"refresh_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	ReconcileOnStart bool          `mapstructure:"reconcile_on_start"`
}

// RedisConfig holds change feed configuration
type RedisConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
	Channel     string   `mapstructure:"channel"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables.
// An empty configPath skips the file and uses defaults plus environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOVERNOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("instance.id", "governor")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "governor")

	// Database defaults
	v.SetDefault("database.path", "data/governor.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	// Remote defaults
	v.SetDefault("remote.driver", "memory")
	v.SetDefault("remote.max_conns", 10)
	v.SetDefault("remote.min_conns", 1)
	v.SetDefault("remote.connect_timeout", 10*time.Second)
	v.SetDefault("remote.ensure_schema", true)

	v.SetDefault("directory.max_chain_depth", 10)

	// Sync defaults
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.poll_interval", 5*time.Second)
	v.SetDefault("sync.attempt_timeout", 15*time.Second)
	v.SetDefault("sync.base_backoff", time.Second)
	v.SetDefault("sync.max_backoff", 5*time.Minute)
	v.SetDefault("sync.max_attempts", 8)
	v.SetDefault("sync.done_retention", 24*time.Hour)
	v.SetDefault("sync.reconcile_interval", time.Minute)
	v.SetDefault("sync.reconcile_timeout", 2*time.Minute)
	v.SetDefault("sync.refresh_retries", 2)
	v.SetDefault("sync.retry_delay", 2*time.Second)
	v.SetDefault("sync.reconcile_on_start", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.channel", "governor:changes")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Sensitive credentials from environment
	bindings := map[string]string{
		"auth.jwt_secret": "JWT_SECRET",
		"remote.dsn":      "REMOTE_DSN",
		"redis.password":  "REDIS_PASSWORD",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return fmt.Errorf("instance.id is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Remote.Driver {
	case "memory":
	case "postgres":
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("remote.driver must be postgres or memory, got %q", c.Remote.Driver)
	}

	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive")
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync.max_attempts must be positive")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}

	if c.Redis.Enabled && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis.addresses is required when redis is enabled")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console")
	}
	switch c.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logger.level must be debug, info, warn or error, got %q", c.Logger.Level)
	}

	return nil
}
