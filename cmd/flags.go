package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/deskmate/internal/config"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Show feature flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		names := make([]string, 0, len(cfg.Flags))
		for name := range cfg.Flags {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%t\n", name, cfg.Flags[name])
		}
		return nil
	},
}

var flagsSetCmd = &cobra.Command{
	Use:   "set <name> <true|false>",
	Short: "Turn a feature flag on or off in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("flag value must be true or false, got %q", args[1])
		}
		path := configPath()
		if err := config.SaveFlag(path, args[0], on); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s=%t (%s)\n", args[0], on, path)
		return nil
	},
}

func init() {
	flagsCmd.AddCommand(flagsSetCmd)
	rootCmd.AddCommand(flagsCmd)
}
