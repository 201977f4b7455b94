package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/builtin/bar"
	"github.com/felixgeelhaar/modkernel/internal/builtin/core"
	"github.com/felixgeelhaar/modkernel/internal/builtin/foo"
	"github.com/felixgeelhaar/modkernel/internal/builtin/inspector"
	"github.com/felixgeelhaar/modkernel/internal/cdb"
	"github.com/felixgeelhaar/modkernel/internal/kernel"
	"github.com/felixgeelhaar/modkernel/internal/modhost"
	"github.com/felixgeelhaar/modkernel/pkg/config"
	"github.com/felixgeelhaar/modkernel/pkg/observability"
)

// Container holds the kernel process: registry, object store, scheduler and
// module host, wired together.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Registry *apidb.DB
	DB       *cdb.DB
	Metrics  *kernel.MetricsCollector
	Kernel   *kernel.Kernel
	Host     *modhost.Host

	// Discovered lists the external modules found on the search paths.
	Discovered []modhost.Discovered

	started bool
}

// Options selects what NewContainer registers.
type Options struct {
	// SkipBuiltins leaves out the core, foo, bar and inspector modules.
	SkipBuiltins bool
	// SkipDiscovery leaves out modules found on the configured search paths.
	SkipDiscovery bool
	// Bar configures the bar sample module.
	Bar bar.Options
}

// NewContainer builds the kernel and registers builtin and discovered
// modules. Nothing is loaded until Start.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Registry: apidb.New(logger),
		DB:       cdb.New(logger),
		Metrics:  kernel.NewMetricsCollector(),
	}

	if cfg.SchemaPath != "" {
		defs, err := cdb.LoadSchemaDir(cfg.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load object schema: %w", err)
		}
		if _, err := c.DB.RegisterSchema(defs); err != nil {
			return nil, fmt.Errorf("failed to register object schema: %w", err)
		}
		logger.Info("object schema registered", "path", cfg.SchemaPath, "types", len(defs))
	}

	c.Kernel = kernel.New(c.Registry, c.DB, c.Metrics, logger, cfg.Kernel())

	hostOpts := cfg.Host()
	hostOpts.Hooks = modhost.Hooks{
		OnLoaded:    c.Kernel.ModuleLoaded,
		OnUnloading: c.Kernel.ModuleUnloading,
	}
	c.Host = modhost.New(c.Registry, logger, hostOpts)
	c.Host.AddLoader(modhost.NewSharedObjectLoader("", logger))
	c.Host.AddLoader(modhost.NewRemoteLoader(logger))

	if !opts.SkipBuiltins {
		for _, desc := range []modhost.Desc{
			core.Module(logger),
			foo.Module(),
			bar.Module(opts.Bar),
			inspector.Module(),
		} {
			if err := c.Host.Register(desc); err != nil {
				return nil, fmt.Errorf("failed to register builtin module: %w", err)
			}
		}
	}

	if !opts.SkipDiscovery {
		res := modhost.NewDiscovery(cfg.ModulePaths, logger).DiscoverWithErrors()
		for _, e := range res.Errors {
			logger.Warn("module discovery problem", "path", e.Path, "error", e.Err)
		}
		c.Discovered = res.Modules
		if err := c.Host.RegisterDiscovered(ctx, res.Modules); err != nil {
			logger.Warn("some discovered modules were not registered", "error", err)
		}
	}

	return c, nil
}

// Start loads every registered module and boots the kernel. Modules that
// fail to load are logged and left out; a boot failure is returned. Starting
// twice is a no-op.
func (c *Container) Start(ctx context.Context) error {
	if c.started {
		return nil
	}
	ctx = observability.WithOperation(ctx, "start")
	timer := observability.StartTimer(c.Logger, "start")

	if err := c.Host.LoadAll(ctx); err != nil {
		c.Logger.WarnContext(ctx, "some modules failed to load", "error", err)
	}
	if err := c.Kernel.Boot(ctx); err != nil {
		timer.Stop(ctx, err)
		return fmt.Errorf("failed to boot kernel: %w", err)
	}
	c.started = true
	timer.Stop(ctx, nil)
	return nil
}

// Run ticks the kernel with the configured rate and tick limit until ctx is
// done.
func (c *Container) Run(ctx context.Context) error {
	return c.Kernel.Run(ctx, c.Config.TickRate, c.Config.MaxTicks)
}

// Reload re-reads a discovered module from disk and hot reloads it.
func (c *Container) Reload(ctx context.Context, name string) error {
	ctx = observability.WithOperation(ctx, "reload")
	return observability.TimeOperation(ctx, c.Logger, "reload", func() error {
		return c.Host.ReloadFromSource(ctx, name)
	})
}

// Close shuts the kernel down and unloads every module.
func (c *Container) Close(ctx context.Context) error {
	ctx = observability.WithOperation(ctx, "close")
	if c.started {
		c.Kernel.Shutdown(ctx)
		c.started = false
	}
	var errs []error
	if err := c.Host.Close(ctx); err != nil {
		c.Logger.WarnContext(ctx, "error unloading modules", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Inspector returns the inspector published by the inspector module, or an
// error when it is not loaded.
func (c *Container) Inspector() (*inspector.Inspector, error) {
	return apidb.GetAPIOf[inspector.Inspector](c.Registry, inspector.ModuleName, apidb.LangGo)
}
