// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/base"
	"github.com/sparrowsql/sparrow/pkg/sql/scheduler"
	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var cf configFlags
	cmd := &cobra.Command{
		Use:   "resolve <host:port>...",
		Short: "resolve data locations to backends",
		Long: `
Print the backends a static scheduler would run the fragments reading the
given data locations on.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cf.load(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Scheduler.Kind != base.SchedulerStatic {
				return newFlagError(errors.WithHint(
					errors.Newf("cannot resolve with the %s scheduler", cfg.Scheduler.Kind),
					"pass --backends to resolve against a static list of backends"))
			}
			locs, err := scheduler.ParseHostPorts(args)
			if err != nil {
				return newFlagError(err)
			}
			ctx := cmd.Context()
			sched, err := scheduler.New(cfg.Scheduler, scheduler.Deps{})
			if err != nil {
				return newFlagError(err)
			}
			defer sched.Close(ctx)
			if err := sched.Init(ctx); err != nil {
				return err
			}
			res, err := sched.GetHosts(ctx, locs)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 1, 2, ' ', 0)
			fmt.Fprintln(tw, "location\tbackends")
			for i, loc := range locs {
				fmt.Fprintf(tw, "%s\t%s\n", loc, res[i])
			}
			return tw.Flush()
		},
	}
	cf.register(cmd.Flags())
	return cmd
}
