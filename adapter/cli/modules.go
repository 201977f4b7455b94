package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/modkernel/internal/modhost"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Manage kernel modules",
}

var modulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered modules and their state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := started(cmd.Context())
		if err != nil {
			return err
		}

		modules := c.Host.Modules()
		out := cmd.OutOrStdout()
		if len(modules) == 0 {
			fmt.Fprintln(out, "No modules registered")
			return nil
		}

		for _, m := range modules {
			fmt.Fprintf(out, "%s [%s]%s\n", m.Name, m.Status, moduleSource(m))
			if m.Description != "" {
				fmt.Fprintf(out, "  %s\n", m.Description)
			}
			if len(m.Depends) > 0 {
				fmt.Fprintf(out, "  depends: %s\n", strings.Join(m.Depends, ", "))
			}
			if verbose {
				fmt.Fprintf(out, "  loads: %d  generation: %s\n", m.Loads, m.Generation)
			}
			if m.Err != nil {
				fmt.Fprintf(out, "  error: %v\n", m.Err)
			}
		}
		fmt.Fprintf(out, "\nTotal: %d modules\n", len(modules))
		return nil
	},
}

func moduleSource(m modhost.ModuleInfo) string {
	if m.Manifest == nil {
		return " (built-in)"
	}
	return fmt.Sprintf(" (%s v%s, %s)", m.Manifest.Kind, m.Manifest.Version, m.Manifest.Dir())
}

var modulesReloadCmd = &cobra.Command{
	Use:   "reload <module>",
	Short: "Reload a discovered module from its artifact on disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := started(ctx)
		if err != nil {
			return err
		}
		if err := c.Reload(ctx, args[0]); err != nil {
			return err
		}

		m, _ := c.Host.Module(args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "%s reloaded [%s], load %d\n", m.Name, m.Status, m.Loads)
		return nil
	},
}

func init() {
	modulesCmd.AddCommand(modulesListCmd)
	modulesCmd.AddCommand(modulesReloadCmd)
	rootCmd.AddCommand(modulesCmd)
}
