package container

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/directory"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/dispatcher"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/replication"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/service"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/store"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/workflow"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/event"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/changefeed"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/persistence/repository"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/persistence/sqlite"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/remote/memory"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/remote/postgres"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/worker"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/metrics"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Handle         *database.DB
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// RemoteBundle holds the system of record and its directory view.
type RemoteBundle struct {
	Store     port.RemoteStore
	Directory port.DirectorySource
	seeder    directorySeeder
	close     func()
}

// Close releases the remote connection, if any.
func (b *RemoteBundle) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

type directorySeeder interface {
	SeedDirectory(ctx context.Context, data *port.DirectoryData) error
}

// ChangeFeedBundle holds the Redis client and its publisher.
type ChangeFeedBundle struct {
	Client    redis.UniversalClient
	Publisher *changefeed.Publisher
	Config    changefeed.Config
}

// ReplicationBundle holds the outbox coordinator and the reconciler.
type ReplicationBundle struct {
	Coordinator *replication.Coordinator
	Reconciler  *replication.Reconciler
}

// ProvideDatabase opens the local cache and applies pending migrations.
// Returns DatabaseBundle containing sql.DB and TransactionManager.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	handle, err := database.Open(ctx, database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &DatabaseBundle{
		Handle:         handle,
		SqlDB:          handle.DB,
		TransactionMgr: sqlite.NewDB(handle.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
// Returns RepositoryBundle containing all repository implementations.
func ProvideRepositories(sqlDB *sql.DB, txManager port.TransactionManager, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Requests:   repository.NewRequestRepository(sqlDB, logger),
		Outbox:     repository.NewOutboxRepository(sqlDB, logger),
		Audit:      repository.NewAuditRepository(sqlDB, logger),
		Watermarks: repository.NewWatermarkRepository(sqlDB, logger),
		Directory:  repository.NewDirectoryRepository(sqlDB, txManager, logger),
	}, nil
}

// ProvideRemote connects the system of record selected by cfg.Driver.
func ProvideRemote(ctx context.Context, cfg *RemoteConfig, logger *zap.Logger) (*RemoteBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("remote config is required")
	}

	switch cfg.Driver {
	case RemoteDriverMemory:
		logger.Info("Using in-memory system of record")
		st := memory.NewStore()
		return &RemoteBundle{Store: st, Directory: st, seeder: st}, nil

	case RemoteDriverPostgres:
		st, err := postgres.Open(ctx, postgres.Config{
			DSN:            cfg.DSN,
			MaxConns:       cfg.MaxConns,
			MinConns:       cfg.MinConns,
			ConnectTimeout: cfg.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		if cfg.EnsureSchema {
			if err := st.EnsureSchema(ctx); err != nil {
				st.Close()
				return nil, err
			}
		}
		return &RemoteBundle{Store: st, Directory: st, seeder: st, close: st.Close}, nil

	default:
		return nil, fmt.Errorf("unknown remote driver %q", cfg.Driver)
	}
}

// SeedRemoteDirectory pushes the reference data in path into the remote.
func SeedRemoteDirectory(ctx context.Context, remote *RemoteBundle, path string, logger *zap.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read directory seed: %w", err)
	}
	var data port.DirectoryData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse directory seed: %w", err)
	}
	if err := remote.seeder.SeedDirectory(ctx, &data); err != nil {
		return fmt.Errorf("failed to seed directory: %w", err)
	}
	logger.Info("Directory seeded",
		zap.String("path", path),
		zap.Int("users", len(data.Users)),
		zap.Int("accounts", len(data.Accounts)))
	return nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the metrics handlers.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	)
	metrics.Subscribe(disp)
	return disp, nil
}

// ProvideDirectory loads the persisted directory and then tries the remote.
// A failed refresh is logged; the process starts on whatever was persisted.
func ProvideDirectory(ctx context.Context, remote port.DirectorySource, repos *RepositoryBundle, logger *zap.Logger) *directory.Cache {
	cache := directory.NewCache(remote, repos.Directory, &zapLoggerAdapter{logger: logger.Named("directory")})

	if err := cache.LoadPersisted(ctx); err != nil {
		logger.Error("Failed to load persisted directory", zap.Error(err))
	}
	if err := cache.Refresh(ctx); err != nil {
		logger.Error("Initial directory refresh failed", zap.Error(err))
	}
	return cache
}

// ProvideChangeFeed connects to Redis when the change feed is enabled.
// Returns nil when it is disabled.
func ProvideChangeFeed(ctx context.Context, cfg *RedisConfig) (*ChangeFeedBundle, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	feedCfg := changefeed.Config{
		Addresses:   cfg.Addresses,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		ClusterMode: cfg.ClusterMode,
		Channel:     cfg.Channel,
	}
	client, err := changefeed.NewClient(ctx, feedCfg)
	if err != nil {
		return nil, err
	}
	return &ChangeFeedBundle{
		Client:    client,
		Publisher: changefeed.NewPublisher(client, feedCfg),
		Config:    feedCfg,
	}, nil
}

// ServiceDeps holds dependencies for creating the governance service.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Directory  port.Directory
	Dispatcher dispatcher.Dispatcher
	MaxDepth   int
	Logger     *zap.Logger
}

// ProvideServices creates the request store, the workflow engine and the governance service.
func ProvideServices(deps *ServiceDeps) (*store.Store, service.GovernanceService, error) {
	if deps == nil || deps.Repos == nil {
		return nil, nil, fmt.Errorf("service dependencies are required")
	}

	requestStore := store.New(
		deps.Repos.Requests,
		deps.Repos.Outbox,
		deps.Repos.Audit,
		deps.TxManager,
		&zapLoggerAdapter{logger: deps.Logger.Named("store")},
		store.WithDispatcher(deps.Dispatcher),
	)

	var engineOpts []workflow.EngineOption
	if deps.MaxDepth > 0 {
		engineOpts = append(engineOpts, workflow.WithMaxChainDepth(deps.MaxDepth))
	}
	engine := workflow.NewEngine(engineOpts...)

	svc := service.NewGovernanceService(
		requestStore,
		engine,
		deps.Directory,
		&zapLoggerAdapter{logger: deps.Logger.Named("service")},
	)
	return requestStore, svc, nil
}

// ReplicationDeps holds dependencies for the outbox coordinator and reconciler.
type ReplicationDeps struct {
	Config     *SyncConfig
	Repos      *RepositoryBundle
	Remote     port.RemoteStore
	Store      *store.Store
	Directory  *directory.Cache
	Dispatcher dispatcher.Dispatcher
	Notifier   port.ChangeNotifier
	Logger     *zap.Logger
}

// ProvideReplication creates the coordinator and reconciler and subscribes
// the coordinator to committed mutations.
func ProvideReplication(deps *ReplicationDeps) (*ReplicationBundle, error) {
	if deps == nil || deps.Config == nil {
		return nil, fmt.Errorf("replication dependencies are required")
	}

	coordOpts := []replication.CoordinatorOption{
		replication.WithCoordinatorDispatcher(deps.Dispatcher),
	}
	if deps.Notifier != nil {
		coordOpts = append(coordOpts, replication.WithNotifier(deps.Notifier))
	}
	coordinator := replication.NewCoordinator(
		deps.Config.Coordinator,
		deps.Repos.Outbox,
		deps.Remote,
		deps.Store,
		&zapLoggerAdapter{logger: deps.Logger.Named("coordinator")},
		coordOpts...,
	)
	deps.Dispatcher.SubscribeNamed(event.TypeMutationApplied, "replication.wake", coordinator.HandleMutation)

	reconciler := replication.NewReconciler(
		deps.Config.Reconciler,
		deps.Remote,
		deps.Store,
		deps.Repos.Watermarks,
		&zapLoggerAdapter{logger: deps.Logger.Named("reconciler")},
		replication.WithDirectory(deps.Directory),
		replication.WithReconcilerDispatcher(deps.Dispatcher),
	)

	return &ReplicationBundle{Coordinator: coordinator, Reconciler: reconciler}, nil
}

// WorkerDeps holds dependencies for creating background workers.
type WorkerDeps struct {
	Replication *ReplicationBundle
	ChangeFeed  *ChangeFeedBundle
	Origin      string
	Logger      *zap.Logger
}

// ProvideWorkers registers the background workers in start order.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil || deps.Replication == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	manager := worker.NewManager(deps.Logger.Named("workers"))
	manager.Register(deps.Replication.Coordinator)
	manager.Register(deps.Replication.Reconciler)

	if deps.ChangeFeed != nil {
		manager.Register(changefeed.NewListener(
			deps.ChangeFeed.Client,
			deps.ChangeFeed.Config,
			deps.Origin,
			deps.Replication.Reconciler.HandleChangeNotice,
			deps.Logger.Named("changefeed"),
		))
	}
	return manager, nil
}
