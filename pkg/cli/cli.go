// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package cli implements the sparrow command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/build"
	"github.com/sparrowsql/sparrow/pkg/cli/exit"
	"github.com/sparrowsql/sparrow/pkg/sql/scheduler"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// fs is the filesystem the commands read and write. Tests replace it.
var fs afero.Fs = afero.NewOsFs()

// Main is the entry point of the sparrow binary.
func Main() {
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "help")
	}
	err := Run(os.Args[1:])
	if err == nil {
		exit.WithCode(exit.Success())
	}
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	if hints := errors.FlattenHints(err); hints != "" {
		fmt.Fprintf(os.Stderr, "HINT: %s\n", hints)
	}
	exit.WithCode(exitCode(err))
}

func exitCode(err error) exit.Code {
	switch {
	case errors.Is(err, scheduler.ErrSchedulingUnavailable):
		return exit.SchedulingUnavailable()
	case errors.HasType(err, (*flagError)(nil)):
		return exit.CommandLineFlagError()
	default:
		return exit.UnspecifiedError()
	}
}

// Run executes the command line given by args.
func Run(args []string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sparrow [command] (flags)",
		Short: "sparrow fragment scheduler and row tools",
		Long: `
sparrow maps the locations of query input data to the backends that should
execute the query fragments reading them, and provides tools to exercise the
row storage.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newStartCmd(),
		newResolveCmd(),
		newScanCmd(),
		newVersionCmd(),
	)
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return applyEnvVars(cmd)
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagError(err)
	})
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "output version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := build.GetInfo()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 1, 2, ' ', 0)
			fmt.Fprintf(tw, "Build Tag:\t%s\n", info.Tag)
			fmt.Fprintf(tw, "Build Time:\t%s\n", info.Time)
			fmt.Fprintf(tw, "Revision:\t%s\n", info.Revision)
			fmt.Fprintf(tw, "Platform:\t%s\n", info.Platform)
			fmt.Fprintf(tw, "Go Version:\t%s\n", info.GoVersion)
			return tw.Flush()
		},
	}
}

func init() {
	cobra.EnableCommandSorting = false
}
