package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errInvalidFlows is returned when at least one flow fails validation.
var errInvalidFlows = errors.New("invalid flows")

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [flow...]",
		Short: "Check flows for structural errors",
		Long: `Check flows for structural errors without executing them.

Each argument is a flow file or a flow id. Without arguments every flow in
--flows is checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			bad := 0
			report := func(name string, err error) {
				if err != nil {
					bad++
					fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
					return
				}
				fmt.Fprintf(out, "ok   %s\n", name)
			}

			if len(args) == 0 {
				if a.dir == nil {
					return errors.New("validate needs flow ids when reading from postgres")
				}
				flows, err := a.dir.Flows(ctx)
				if err != nil {
					return err
				}
				for _, f := range flows {
					_, err := f.Graph()
					report(fmt.Sprintf("%d (%s)", f.ID, f.Source), err)
				}
			}
			for _, arg := range args {
				ref, err := parseFlowRef(arg)
				if err != nil {
					report(arg, err)
					continue
				}
				_, err = a.graph(ctx, ref)
				report(ref.String(), err)
			}

			if bad > 0 {
				return fmt.Errorf("%w: %d failed", errInvalidFlows, bad)
			}
			return nil
		},
	}
}
