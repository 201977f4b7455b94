package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/modkernel/internal/cdb"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List object types and their properties",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := started(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		for _, idx := range c.DB.Types() {
			def, err := c.DB.TypeDefOf(idx)
			if err != nil {
				return err
			}
			objs, err := c.DB.Objects(idx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s [%s] %d objects\n", def.Name, def.Hash(), len(objs))
			for _, p := range def.Props {
				fmt.Fprintf(out, "  %d %s %s\n", p.Index, p.Name, p.Kind)
			}
		}
		return nil
	},
}

var (
	inspectDepth  int
	inspectFilter string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <type>",
	Short: "Render every object of a type as a tree with its properties",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := started(cmd.Context())
		if err != nil {
			return err
		}
		in, err := c.Inspector()
		if err != nil {
			return fmt.Errorf("inspector module not loaded: %w", err)
		}

		idx, ok := c.DB.TypeByName(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", cdb.ErrUnknownType, args[0])
		}
		objs, err := c.DB.Objects(idx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(objs) == 0 {
			fmt.Fprintf(out, "No %s objects\n", args[0])
			return nil
		}
		for _, obj := range objs {
			if _, err := in.Tree(c.DB, obj, cdb.ObjID{}, cdb.TreeArgs{Out: out, Depth: inspectDepth, Filter: inspectFilter}); err != nil {
				return err
			}
			if err := in.Properties(c.DB, obj, cdb.PropertiesArgs{Out: out, Filter: inspectFilter}); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().IntVar(&inspectDepth, "depth", 2, "sub-object levels to expand")
	inspectCmd.Flags().StringVar(&inspectFilter, "filter", "", "only show properties whose name contains this text")
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(inspectCmd)
}
