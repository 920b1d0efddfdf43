package config

import (
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/replication"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		InstanceID: c.Instance.ID,
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Remote: container.RemoteConfig{
			Driver:         c.Remote.Driver,
			DSN:            c.Remote.DSN,
			MaxConns:       c.Remote.MaxConns,
			MinConns:       c.Remote.MinConns,
			ConnectTimeout: c.Remote.ConnectTimeout,
			EnsureSchema:   c.Remote.EnsureSchema,
		},
		Directory: container.DirectoryConfig{
			MaxChainDepth: c.Directory.MaxChainDepth,
			SeedFile:      c.Directory.SeedFile,
		},
		Sync: container.SyncConfig{
			Coordinator: replication.CoordinatorConfig{
				Workers:        c.Sync.Workers,
				PollInterval:   c.Sync.PollInterval,
				AttemptTimeout: c.Sync.AttemptTimeout,
				BaseBackoff:    c.Sync.BaseBackoff,
				MaxBackoff:     c.Sync.MaxBackoff,
				MaxAttempts:    c.Sync.MaxAttempts,
				DoneRetention:  c.Sync.DoneRetention,
				Origin:         c.Instance.ID,
			},
			Reconciler: replication.ReconcilerConfig{
				Interval:       c.Sync.ReconcileEvery,
				Timeout:        c.Sync.ReconcileTimeout,
				RefreshRetries: c.Sync.RefreshRetries,
				RetryDelay:     c.Sync.RetryDelay,
				RunOnStart:     c.Sync.ReconcileOnStart,
			},
		},
		Redis: container.RedisConfig{
			Enabled:     c.Redis.Enabled,
			Addresses:   c.Redis.Addresses,
			Password:    c.Redis.Password,
			DB:          c.Redis.DB,
			PoolSize:    c.Redis.PoolSize,
			ClusterMode: c.Redis.ClusterMode,
			Channel:     c.Redis.Channel,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
			Mode:         c.Server.Mode,
		},
		Auth: container.AuthConfig{
			Enabled:   c.Auth.Enabled,
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
			Path:    c.Metrics.Path,
		},
	}
}
