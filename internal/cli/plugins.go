package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kasumi-bot/kasumi/internal/config"
	"github.com/kasumi-bot/kasumi/pkg/plugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect and manage plugin archives",
	Long: `Inspect and manage the plugin archives in the plugin directory.
Enabling and disabling renames the archive on disk; a running daemon
picks the change up through its directory watcher.`,
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known plugin archives",
	RunE:  runPluginsList,
}

var pluginsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a plugin archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runPluginsEnable,
}

var pluginsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a plugin archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runPluginsDisable,
}

func init() {
	pluginsCmd.AddCommand(pluginsListCmd)
	pluginsCmd.AddCommand(pluginsEnableCmd)
	pluginsCmd.AddCommand(pluginsDisableCmd)
	rootCmd.AddCommand(pluginsCmd)
}

// openRegistry builds an offline view of the plugin directory without
// starting the daemon.
func openRegistry(cfg *config.Config) (*plugin.Registry, error) {
	zl := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	reader := plugin.NewManifestReader(zl)
	configs := plugin.NewConfigStore(cfg.PluginConfigDir(), zl)
	registry := plugin.NewRegistry(cfg.Dirs.Plugins, reader, configs, zl)
	if err := registry.Rescan(); err != nil {
		return nil, fmt.Errorf("failed to scan plugin directory: %w", err)
	}
	return registry, nil
}

func runPluginsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	registry, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	plugins := registry.All()
	if len(plugins) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No plugin archives found in %s\n", cfg.Dirs.Plugins)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tTRIGGERS\tSTATE\tFILE")
	for _, p := range plugins {
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Name, p.Version, len(p.Triggers), state, p.FileName)
	}
	return w.Flush()
}

func runPluginsEnable(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	registry, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	p, err := registry.Get(args[0])
	if err != nil {
		return err
	}
	if p.Enabled {
		fmt.Fprintf(cmd.OutOrStdout(), "Plugin %s is already enabled\n", p.ID)
		return nil
	}

	target := strings.TrimSuffix(p.ArchivePath, ".disabled")
	if err := os.Rename(p.ArchivePath, target); err != nil {
		return fmt.Errorf("failed to enable %s: %w", p.ID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Plugin %s enabled\n", p.ID)
	return nil
}

func runPluginsDisable(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	registry, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	p, err := registry.Get(args[0])
	if err != nil {
		return err
	}
	if !p.Enabled {
		fmt.Fprintf(cmd.OutOrStdout(), "Plugin %s is already disabled\n", p.ID)
		return nil
	}

	if err := os.Rename(p.ArchivePath, p.ArchivePath+".disabled"); err != nil {
		return fmt.Errorf("failed to disable %s: %w", p.ID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Plugin %s disabled\n", p.ID)
	return nil
}
