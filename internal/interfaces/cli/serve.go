package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexuscore/nexuscore/internal/interfaces/di"
)

// NewServeCommand creates the serve command: full plugin load, background
// health monitoring and hot reload, then the HTTP server.
func NewServeCommand(container *di.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load plugins and run the NexusCore server",
		Long: `Load all plugins from the record store and the plugins directory, start
the health monitor and the plugins-directory watcher, and serve plugin
routes plus the admin API until interrupted.`,
		Example: `  # Serve with the default configuration
  nexuscore serve

  # Serve on another port
  NEXUSCORE_ADDR=:9090 nexuscore serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := container.Loader.LoadAll(ctx)
			if err != nil {
				// A failed pass may leave partial state; keep serving what
				// loaded and report the failure.
				container.Logger.Printf("[Serve] initial plugin load failed: %v", err)
			}
			fmt.Printf("Loaded %d plugins (%d active, %d errors) in %s\n",
				report.Total, report.Active, report.Errors, report.Duration)

			go container.Monitor.Run(ctx)

			if container.Watcher != nil {
				go func() {
					if werr := container.Watcher.Run(ctx); werr != nil && ctx.Err() == nil {
						container.Logger.Printf("[Serve] plugins watcher stopped: %v", werr)
					}
				}()
			}

			return container.Server.Start(ctx)
		},
	}
}
