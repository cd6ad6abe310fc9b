package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/audit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAuditCmd(v *viper.Viper) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "audit <run-id>",
		Short: "Print the audit records of a run",
		Long: `Print the audit records of a run, oldest first.

Requires a persistent audit store (audit.driver sqlite or redis) in the
engine config.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			if a.audit == nil {
				return errors.New("auditing is disabled; set audit.driver in the engine config")
			}
			records, err := audit.LoadRun(ctx, a.audit, args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no audit records for run %q", args[0])
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				data, err := sonic.ConfigStd.MarshalIndent(records, "", "  ")
				if err != nil {
					return fmt.Errorf("encode records: %w", err)
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tKIND\tNODE\tTYPE\tSTATUS\tDURATION\tDETAIL")
			for _, rec := range records {
				detail := rec.Error
				if rec.Kind == audit.KindRun && detail == "" {
					detail = rec.Answer
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%dms\t%s\n",
					rec.Sequence, rec.Kind, rec.NodeID, rec.NodeType, rec.Status, rec.DurationMs, detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}
