package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/config"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/container"
	httpapi "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/interfaces/http"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/metrics"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/pkg/utils"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with propagation and reconciliation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	level := cfg.Logger.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, logLevel, err := utils.NewLeveledLogger(utils.LoggerConfig{
		Level:      level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Instance:   cfg.Instance.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting investment governance service",
		zap.String("instance", cfg.Instance.ID),
		zap.String("remote", cfg.Remote.Driver),
		zap.Int("port", cfg.Server.Port))

	containerCfg := cfg.ToContainerConfig()
	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container close failed", zap.Error(err))
		}
	}()

	server := httpapi.NewServer(
		httpapi.ServerConfig{
			Host:         containerCfg.Server.Host,
			Port:         containerCfg.Server.Port,
			ReadTimeout:  containerCfg.Server.ReadTimeout,
			WriteTimeout: containerCfg.Server.WriteTimeout,
			Mode:         containerCfg.Server.Mode,
			MetricsPath:  containerCfg.Metrics.Path,
		},
		httpapi.AuthConfig{
			Enabled: containerCfg.Auth.Enabled,
			Secret:  containerCfg.Auth.JWTSecret,
			Issuer:  containerCfg.Auth.Issuer,
		},
		buildDependencies(c, logLevel),
		c.NamedLogger("http"),
	)

	return server.Start(ctx)
}

func buildDependencies(c *container.Container, logLevel http.Handler) httpapi.Dependencies {
	deps := httpapi.Dependencies{
		Service:   c.Service(),
		Sync:      c.Coordinator(),
		Cache:     c.Reconciler(),
		Directory: c.Directory(),
		LogLevel:  logLevel,
		Health: func(ctx context.Context) (bool, interface{}) {
			h := c.Health(ctx)
			return h.Overall, h.Components
		},
	}

	if c.Config().Metrics.Enabled {
		deps.Metrics = metrics.Handler(c.Coordinator().Backlog)
	}
	return deps
}
