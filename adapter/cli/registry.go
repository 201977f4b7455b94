package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var apisCmd = &cobra.Command{
	Use:   "apis",
	Short: "Show the API registry: APIs, interfaces and globals",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := started(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "APIs:")
		for _, a := range c.Registry.APIs() {
			fmt.Fprintf(out, "  %s (%d bytes) owner=%s\n", a.Key, a.Size, a.Owner)
		}

		fmt.Fprintln(out, "Interfaces:")
		for _, i := range c.Registry.Interfaces() {
			fmt.Fprintf(out, "  %s [%s] %d impls\n", i.Name, i.ID, i.Count)
		}

		fmt.Fprintln(out, "Globals:")
		for _, g := range c.Registry.Globals() {
			fmt.Fprintf(out, "  %s/%s (%d bytes)\n", g.Module, g.Name, g.Size)
		}

		fmt.Fprintf(out, "\nRegistry version: %d\n", c.Registry.Version())
		return nil
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show the update plan per phase and task metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := started(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		phases, errs := c.Kernel.Plan()
		for _, p := range phases {
			fmt.Fprintf(out, "%s:\n", p.Name)
			if p.Err != nil {
				fmt.Fprintf(out, "  skipped: %v\n", p.Err)
				continue
			}
			for _, name := range p.TaskNames() {
				line := "  " + name
				if m := c.Metrics.Get(name); m != nil {
					line += fmt.Sprintf("  calls=%d failed=%d avg=%s breaker=%s",
						m.TotalCalls, m.FailedCalls, m.AverageDuration, m.CircuitBreakerState)
				}
				fmt.Fprintln(out, line)
			}
		}
		for _, err := range errs {
			fmt.Fprintf(out, "error: %v\n", err)
		}

		fmt.Fprintln(out, "Lifecycle:")
		for _, name := range c.Kernel.LifecycleTasks() {
			fmt.Fprintf(out, "  %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apisCmd)
	rootCmd.AddCommand(tasksCmd)
}
