package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/directory"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/dispatcher"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/replication"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/service"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/store"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/persistence/sqlite"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/worker"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	startWorkers bool

	// Infrastructure - Data
	handle       *database.DB
	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	remote     *RemoteBundle
	changeFeed *ChangeFeedBundle

	// Application
	dispatcher  dispatcher.Dispatcher
	directory   *directory.Cache
	store       *store.Store
	service     service.GovernanceService
	replication *ReplicationBundle

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Requests   port.RequestRepository
	Outbox     port.OutboxRepository
	Audit      port.AuditRepository
	Watermarks port.WatermarkRepository
	Directory  port.DirectoryRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option configures a Container.
type Option func(*Container)

// WithoutWorkers builds everything but leaves the background workers stopped.
// One-shot commands use it.
func WithoutWorkers() Option {
	return func(c *Container) {
		c.startWorkers = false
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config:       cfg,
		logger:       logger,
		startWorkers: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Local cache database and repositories
// 2. Remote system of record and change feed
// 3. Event dispatcher and directory
// 4. Store, engine and governance service
// 5. Coordinator and reconciler
// 6. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize database: %w", err))
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize external clients
	if err := c.initExternalClients(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize external clients: %w", err))
	}
	c.logger.Info("External clients initialized")

	// Step 3: Initialize dispatcher and directory
	if err := c.initDispatcherAndDirectory(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize dispatcher and directory: %w", err))
	}
	c.logger.Info("Dispatcher and directory initialized")

	// Step 4: Initialize application services
	if err := c.initServices(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize services: %w", err))
	}
	c.logger.Info("Application services initialized")

	// Step 5: Initialize replication
	if err := c.initReplication(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize replication: %w", err))
	}
	c.logger.Info("Replication initialized")

	// Step 6: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize workers: %w", err))
	}
	c.logger.Info("Workers initialized", zap.Bool("started", c.startWorkers))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// abort releases whatever Start had opened before failing.
func (c *Container) abort(err error) error {
	c.teardown()
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errors.Join(errs...))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() []error {
	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 6)
	if c.workers != nil && c.workers.IsRunning() {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Close dispatcher (reverse of step 3)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	// Step 3: Close external clients (reverse of step 2)
	if c.changeFeed != nil {
		if err := c.changeFeed.Client.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.changeFeed = nil
	}
	if c.remote != nil {
		c.remote.Close()
		c.remote = nil
		c.logger.Info("Remote closed")
	}

	// Step 4: Close database (reverse of step 1)
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.handle = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	// Check database
	if c.sqlDB != nil {
		if err := c.sqlDB.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	} else {
		set("database", false, "not initialized")
	}

	// Check directory
	if c.directory != nil {
		users, accounts, loadedAt := c.directory.Stats()
		if loadedAt.IsZero() {
			set("directory", false, "never loaded")
		} else {
			set("directory", true, fmt.Sprintf("%d users, %d accounts", users, accounts))
		}
	} else {
		set("directory", false, "not initialized")
	}

	// Check workers
	if c.workers != nil {
		running := c.workers.IsRunning()
		set("workers", running || !c.startWorkers, fmt.Sprintf("workers: %v", c.workers.Names()))
	} else {
		set("workers", false, "not initialized")
	}

	// Check outbox; parked tasks need an operator but do not make the process unhealthy
	if c.replication != nil {
		backlog, err := c.replication.Coordinator.Backlog(ctx)
		if err != nil {
			set("outbox", false, err.Error())
		} else {
			status.Components["outbox"] = ComponentHealth{
				Healthy: true,
				Message: fmt.Sprintf("pending=%d parked=%d", backlog[entity.TaskStatusPending], backlog[entity.TaskStatusParked]),
			}
		}

		rs := c.replication.Reconciler.Status()
		status.Components["reconciler"] = ComponentHealth{
			Healthy: rs.LastError == "",
			Message: rs.LastError,
		}
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(c.ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.handle = dbBundle.Handle
	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.sqlDB, c.db, c.logger)
	if err != nil {
		return err
	}

	c.repositories = repos
	return nil
}

// initExternalClients connects the system of record and the change feed.
func (c *Container) initExternalClients() error {
	remote, err := ProvideRemote(c.ctx, &c.config.Remote, c.logger.Named("remote"))
	if err != nil {
		return err
	}
	c.remote = remote

	if c.config.Directory.SeedFile != "" {
		if err := SeedRemoteDirectory(c.ctx, remote, c.config.Directory.SeedFile, c.logger); err != nil {
			return err
		}
	}

	feed, err := ProvideChangeFeed(c.ctx, &c.config.Redis)
	if err != nil {
		return err
	}
	c.changeFeed = feed
	return nil
}

// initDispatcherAndDirectory creates the dispatcher and warms the directory.
func (c *Container) initDispatcherAndDirectory() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	c.directory = ProvideDirectory(c.ctx, c.remote.Directory, c.repositories, c.logger)
	return nil
}

// initServices initializes the store and the governance service using providers.
func (c *Container) initServices() error {
	st, svc, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Directory:  c.directory,
		Dispatcher: c.dispatcher,
		MaxDepth:   c.config.Directory.MaxChainDepth,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.store = st
	c.service = svc
	return nil
}

// initReplication creates the coordinator and the reconciler.
func (c *Container) initReplication() error {
	var notifier port.ChangeNotifier
	if c.changeFeed != nil {
		notifier = c.changeFeed.Publisher
	}

	bundle, err := ProvideReplication(&ReplicationDeps{
		Config:     &c.config.Sync,
		Repos:      c.repositories,
		Remote:     c.remote.Store,
		Store:      c.store,
		Directory:  c.directory,
		Dispatcher: c.dispatcher,
		Notifier:   notifier,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.replication = bundle
	return nil
}

// initWorkers registers the background workers and starts them unless disabled.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Replication: c.replication,
		ChangeFeed:  c.changeFeed,
		Origin:      c.config.Sync.Coordinator.Origin,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if !c.startWorkers {
		return nil
	}
	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Remote returns the system of record.
func (c *Container) Remote() port.RemoteStore {
	return c.remote.Store
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Directory returns the directory cache.
func (c *Container) Directory() *directory.Cache {
	return c.directory
}

// Store returns the request store.
func (c *Container) Store() *store.Store {
	return c.store
}

// Service returns the governance service.
func (c *Container) Service() service.GovernanceService {
	return c.service
}

// Coordinator returns the outbox coordinator.
func (c *Container) Coordinator() *replication.Coordinator {
	return c.replication.Coordinator
}

// Reconciler returns the cache reconciler.
func (c *Container) Reconciler() *replication.Reconciler {
	return c.replication.Reconciler
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// KVLogger is the Info/Error key-value logger the application and interface
// packages accept.
type KVLogger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NamedLogger returns a key-value logger for adapters built outside the container.
func (c *Container) NamedLogger(name string) KVLogger {
	return &zapLoggerAdapter{logger: c.logger.Named(name)}
}

// zapLoggerAdapter adapts zap.Logger to the Info/Error logger interfaces
// the application packages declare.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
