// Package container provides dependency injection and lifecycle management
// for the investment governance service.
package container

import (
	"fmt"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/replication"
)

// Remote drivers
const (
	RemoteDriverMemory   = "memory"
	RemoteDriverPostgres = "postgres"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// InstanceID identifies this process in change notices
	InstanceID string

	// Database configuration (local SQLite cache)
	Database DatabaseConfig

	// Remote system of record
	Remote RemoteConfig

	// Directory settings
	Directory DirectoryConfig

	// Sync holds coordinator and reconciler settings
	Sync SyncConfig

	// Redis change feed
	Redis RedisConfig

	// Server configuration
	Server ServerConfig

	// Auth configuration
	Auth AuthConfig

	// Metrics configuration
	Metrics MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// RemoteConfig selects and configures the system of record.
type RemoteConfig struct {
	// Driver is "postgres" or "memory"
	Driver string

	DSN            string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration

	// EnsureSchema creates the remote tables on startup
	EnsureSchema bool
}

// DirectoryConfig holds approver resolution settings.
type DirectoryConfig struct {
	// MaxChainDepth bounds the manager walk
	MaxChainDepth int

	// SeedFile is an optional JSON file pushed into the remote directory on startup
	SeedFile string
}

// SyncConfig holds propagation and reconciliation settings.
type SyncConfig struct {
	Coordinator replication.CoordinatorConfig
	Reconciler  replication.ReconcilerConfig
}

// RedisConfig holds change feed settings.
type RedisConfig struct {
	Enabled     bool
	Addresses   []string
	Password    string
	DB          int
	PoolSize    int
	ClusterMode bool
	Channel     string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// Mode is the gin mode (debug, release, test)
	Mode string
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	// Enabled requires an HS256 bearer token; otherwise X-User-ID is trusted
	Enabled bool

	JWTSecret string
	Issuer    string
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		InstanceID: "governor",
		Database: DatabaseConfig{
			Path:            "data/governor.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Hour,
		},
		Remote: RemoteConfig{
			Driver:         RemoteDriverMemory,
			MaxConns:       10,
			MinConns:       1,
			ConnectTimeout: 10 * time.Second,
			EnsureSchema:   true,
		},
		Directory: DirectoryConfig{
			MaxChainDepth: 10,
		},
		Sync: SyncConfig{
			Coordinator: replication.DefaultCoordinatorConfig(),
			Reconciler:  replication.DefaultReconcilerConfig(),
		},
		Redis: RedisConfig{
			PoolSize: 10,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Mode:         "release",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	switch c.Remote.Driver {
	case RemoteDriverMemory:
	case RemoteDriverPostgres:
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown remote driver %q", c.Remote.Driver)
	}

	if c.Sync.Coordinator.Workers <= 0 {
		return fmt.Errorf("sync coordinator workers must be positive")
	}
	if c.Sync.Coordinator.MaxAttempts <= 0 {
		return fmt.Errorf("sync coordinator max attempts must be positive")
	}
	if c.Sync.Reconciler.Interval <= 0 {
		return fmt.Errorf("sync reconciler interval must be positive")
	}

	if c.Redis.Enabled && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis addresses are required when the change feed is enabled")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required when auth is enabled")
	}

	if c.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive")
	}

	return nil
}
