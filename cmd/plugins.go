package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/zjrosen/deskmate/internal/config"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List plugins and whether they are enabled",
	Args:  cobra.NoArgs,
	RunE:  runPluginsList,
}

var pluginsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a plugin",
	Long: `Enable a plugin by editing its config.yaml. A running deskmate with
hot reload applies the change immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return setPluginEnabled(cmd, args[0], true) },
}

var pluginsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a plugin and, through the cascade, its dependents",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setPluginEnabled(cmd, args[0], false) },
}

func init() {
	pluginsCmd.AddCommand(pluginsEnableCmd, pluginsDisableCmd)
	rootCmd.AddCommand(pluginsCmd)
}

func runPluginsList(cmd *cobra.Command, _ []string) error {
	reg := plugins.Registry()
	ordered, err := plugin.Order(reg.All())
	if err != nil {
		return err
	}
	store := config.NewPluginStore(cfg.Plugins.Dir)

	rows := make([][]string, 0, len(ordered))
	for _, d := range ordered {
		pc := d.DefaultConfig()
		if err := store.Load(cmd.Context(), d.ID, pc); err != nil {
			return fmt.Errorf("loading %s config: %w", d.ID, err)
		}
		state := "disabled"
		if pc.IsEnabled() {
			state = "enabled"
		}
		deps := make([]string, len(d.Deps))
		for i, dep := range d.Deps {
			deps[i] = dep.String()
		}
		rows = append(rows, []string{d.ID, state, strings.Join(deps, ", ")})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PLUGIN", "STATE", "DEPENDS ON").
		Rows(rows...)
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func setPluginEnabled(cmd *cobra.Command, id string, enabled bool) error {
	if _, ok := plugins.Registry().Get(id); !ok {
		return fmt.Errorf("%w: %s", plugin.ErrUnknownPlugin, id)
	}
	store := config.NewPluginStore(cfg.Plugins.Dir)
	if err := config.SetPluginEnabled(store.Path(id), enabled); err != nil {
		return err
	}
	if err := store.Invalidate(context.Background(), id); err != nil {
		return err
	}
	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, id)
	return nil
}
