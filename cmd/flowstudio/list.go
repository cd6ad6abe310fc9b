package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the flows in the flows directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			if a.dir == nil {
				return errors.New("list is only supported for flow directories")
			}
			flows, err := a.dir.Flows(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tNODES\tEDGES\tSOURCE")
			for _, f := range flows {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", f.ID, f.Name, len(f.Nodes), len(f.Edges), f.Source)
			}
			return tw.Flush()
		},
	}
}
