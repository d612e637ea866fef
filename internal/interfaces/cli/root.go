package cli

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/nexuscore/nexuscore/internal/interfaces/di"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// NewRootCommand creates the base command.
func NewRootCommand(container *di.Container) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nexuscore",
		Short: "NexusCore - extensible plugin platform",
		Long: `NexusCore is a plugin platform: a web server whose feature modules are
discovered from a persisted catalog and a plugins directory, validated,
registered, and hot-installed at runtime without a restart.`,
		Version: Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug output")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default is ./nexuscore.yaml)")

	rootCmd.AddCommand(NewServeCommand(container))
	rootCmd.AddCommand(NewPluginsCommand(container))
	rootCmd.AddCommand(NewDashboardCommand(container))

	return rootCmd
}

func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Execute runs the root command and exits non-zero on error.
func Execute(container *di.Container) {
	rootCmd := NewRootCommand(container)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
