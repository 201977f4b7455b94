package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	runTicks uint64
	runRate  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load every module, boot the kernel and tick until interrupted",
	Long: `Loads builtin and discovered modules in dependency order, boots the
kernel and runs the tick loop. The loop stops on interrupt or after --ticks
ticks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := started(ctx)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("ticks") {
			c.Config.MaxTicks = runTicks
		}
		if cmd.Flags().Changed("rate") {
			c.Config.TickRate = runRate
		}

		if err := c.Run(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stopped after %d ticks\n", c.Kernel.TickCount())
		return nil
	},
}

func init() {
	runCmd.Flags().Uint64Var(&runTicks, "ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	runCmd.Flags().DurationVar(&runRate, "rate", 16*time.Millisecond, "time between ticks")
	rootCmd.AddCommand(runCmd)
}
