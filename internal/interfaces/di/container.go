// Package di wires the application components together.
package di

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nexuscore/nexuscore/internal/config"
	"github.com/nexuscore/nexuscore/internal/core/event"
	"github.com/nexuscore/nexuscore/internal/core/ports"
	"github.com/nexuscore/nexuscore/internal/infrastructure/store"
	"github.com/nexuscore/nexuscore/internal/infrastructure/web"
	"github.com/nexuscore/nexuscore/internal/plugins"
)

// Container holds all application dependencies. It is constructed once at
// process start; the registry, loader, lifecycle manager, and health
// monitor all receive their collaborators from here instead of reaching for
// globals.
type Container struct {
	Config *config.Config
	Logger *log.Logger

	Bus        *event.Bus
	Registry   *plugins.Registry
	Modules    *plugins.ModuleTable
	Store      *store.FileStore
	Dispatcher *web.Dispatcher
	Loader     *plugins.Loader
	Manager    *plugins.Manager
	Monitor    *plugins.HealthMonitor
	Watcher    *plugins.Watcher
	Server     *web.Server
}

// NewContainer loads configuration and initializes all components.
func NewContainer(configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	c := &Container{
		Config: cfg,
		Logger: log.New(os.Stderr, "[nexuscore] ", log.LstdFlags),
	}
	if err := c.initializeComponents(); err != nil {
		return nil, fmt.Errorf("initialize components: %w", err)
	}
	return c, nil
}

func (c *Container) initializeComponents() error {
	cfg := c.Config

	c.Bus = event.NewBus(event.DefaultBuffer)
	c.Registry = plugins.NewRegistry()
	c.Store = store.NewFileStore(cfg.Plugins.DataDir)
	c.Dispatcher = web.NewDispatcher(c.Registry, c.Logger)

	c.Modules = plugins.NewModuleTable()
	plugins.RegisterBuiltins(c.Modules)

	c.Loader = plugins.NewLoader(
		c.Registry, c.Store, c.Dispatcher, c.Modules, c.Bus,
		cfg.Plugins.Root, c.Logger, cfg.Debug,
	)

	c.Manager = plugins.NewManager(
		c.Registry, c.Store, c.Dispatcher, ports.ContextAuthorizer{}, c.Bus,
		cfg.Plugins.Root, cfg.Plugins.UploadsRoot, c.Logger,
	)

	c.Monitor = plugins.NewHealthMonitor(
		c.Registry, c.Bus,
		time.Duration(cfg.Health.Interval), cfg.Health.ErrorThreshold, c.Logger,
	)

	if cfg.Plugins.Watch {
		c.Watcher = plugins.NewWatcher(c.Loader, cfg.Plugins.Root, c.Logger)
	}

	c.Server = web.NewServer(
		cfg.Server.Addr, c.Registry, c.Loader, c.Manager, c.Monitor,
		c.Dispatcher, cfg.Server.AdminToken, c.Logger,
	)

	return c.ensureDirectories()
}

// ensureDirectories bootstraps the plugins root and the uploads temp and
// backup areas so first runs work from an empty tree.
func (c *Container) ensureDirectories() error {
	dirs := []string{
		c.Config.Plugins.Root,
		c.Manager.TempDir(),
		c.Manager.BackupDir(),
		c.Config.Plugins.DataDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Close releases container resources.
func (c *Container) Close() {
	c.Bus.Close()
}
