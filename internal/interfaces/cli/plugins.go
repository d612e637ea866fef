package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
	"github.com/nexuscore/nexuscore/internal/core/ports"
	"github.com/nexuscore/nexuscore/internal/interfaces/di"
)

// NewPluginsCommand creates the plugins command group.
func NewPluginsCommand(container *di.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage NexusCore plugins",
		Long: `Manage NexusCore plugins: list and search the registry, install new
plugins from descriptor files, update or remove installed ones, and back
up the registry.`,
		Example: `  # List installed plugins
  nexuscore plugins list

  # Search by name, description, or tag
  nexuscore plugins search analytics

  # Install from a descriptor file
  nexuscore plugins install ./my-plugin/plugin.json

  # Remove a plugin (keep its record)
  nexuscore plugins remove my-plugin

  # Back up the registry
  nexuscore plugins backup`,
	}

	cmd.AddCommand(newPluginsListCommand(container))
	cmd.AddCommand(newPluginsSearchCommand(container))
	cmd.AddCommand(newPluginsInstallCommand(container))
	cmd.AddCommand(newPluginsRemoveCommand(container))
	cmd.AddCommand(newPluginsUpdateCommand(container))
	cmd.AddCommand(newPluginsBackupCommand(container))

	return cmd
}

// loadForCLI populates the registry so local commands see the same state
// the server would.
func loadForCLI(cmd *cobra.Command, container *di.Container) error {
	if _, err := container.Loader.LoadAll(cmd.Context()); err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}
	return nil
}

func newPluginsListCommand(container *di.Container) *cobra.Command {
	var category string
	var featured bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadForCLI(cmd, container); err != nil {
				return err
			}

			var list []*plugin.Descriptor
			switch {
			case featured:
				list = container.Registry.Featured()
			case category != "":
				list = container.Registry.ByCategory(plugin.Category(category))
			default:
				list = container.Registry.All()
			}
			printPluginTable(list)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only plugins in this category")
	cmd.Flags().BoolVar(&featured, "featured", false, "Only featured plugins")
	return cmd
}

func newPluginsSearchCommand(container *di.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search plugins by name, description, or tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadForCLI(cmd, container); err != nil {
				return err
			}
			printPluginTable(container.Registry.Search(args[0]))
			return nil
		},
	}
}

func newPluginsInstallCommand(container *di.Container) *cobra.Command {
	var payloadPath string

	cmd := &cobra.Command{
		Use:   "install <descriptor.json>",
		Short: "Install a plugin from a descriptor file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadForCLI(cmd, container); err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read descriptor: %w", err)
			}
			var d plugin.Descriptor
			if err := json.Unmarshal(data, &d); err != nil {
				return fmt.Errorf("parse descriptor: %w", err)
			}

			var payload []byte
			if payloadPath != "" {
				payload, err = os.ReadFile(payloadPath)
				if err != nil {
					return fmt.Errorf("read artifact: %w", err)
				}
			}

			ctx := ports.WithManagement(cmd.Context())
			result := container.Manager.Install(ctx, payload, &d)
			if !result.Success {
				return fmt.Errorf("%s: %s", result.Code, result.Message)
			}
			fmt.Printf("Installed %s (%s)\n", result.Descriptor.Key(), result.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&payloadPath, "artifact", "", "Uploaded binary artifact to store alongside the plugin")
	return cmd
}

func newPluginsRemoveCommand(container *di.Container) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Uninstall a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadForCLI(cmd, container); err != nil {
				return err
			}

			ctx := ports.WithManagement(cmd.Context())
			result := container.Manager.Uninstall(ctx, args[0], purge)
			if !result.Success {
				return fmt.Errorf("%s: %s", result.Code, result.Message)
			}
			fmt.Printf("Uninstalled %s\n", result.Descriptor.Key())
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the plugin directory and its record")
	return cmd
}

func newPluginsUpdateCommand(container *di.Container) *cobra.Command {
	var description string
	var featured, unfeature bool

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Update fields of an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadForCLI(cmd, container); err != nil {
				return err
			}

			var patch plugin.Patch
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if featured {
				value := true
				patch.Featured = &value
			}
			if unfeature {
				value := false
				patch.Featured = &value
			}

			ctx := ports.WithManagement(cmd.Context())
			result := container.Manager.Update(ctx, args[0], patch)
			if !result.Success {
				return fmt.Errorf("%s: %s", result.Code, result.Message)
			}
			fmt.Printf("Updated %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().BoolVar(&featured, "featured", false, "Mark the plugin as featured")
	cmd.Flags().BoolVar(&unfeature, "no-featured", false, "Clear the featured flag")
	return cmd
}

func newPluginsBackupCommand(container *di.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a timestamped registry snapshot to the backup area",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadForCLI(cmd, container); err != nil {
				return err
			}

			ctx := ports.WithManagement(cmd.Context())
			result := container.Manager.Backup(ctx)
			if !result.Success {
				return fmt.Errorf("%s: %s", result.Code, result.Message)
			}
			fmt.Printf("Backed up %d plugins to %s\n", result.Count, result.Path)
			return nil
		},
	}
}

func printPluginTable(list []*plugin.Descriptor) {
	if len(list) == 0 {
		fmt.Println("No plugins registered.")
		return
	}

	fmt.Printf("Plugins (%d):\n\n", len(list))

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tCATEGORY\tROUTE\tACTIVE\tFEATURED")
	fmt.Fprintln(w, "----\t-------\t--------\t-----\t------\t--------")
	for _, d := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\n",
			d.Name, d.Version, d.Category, d.Route, d.Active, d.Featured)
	}
	w.Flush()
}
