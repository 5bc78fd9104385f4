// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/base"
	"github.com/sparrowsql/sparrow/pkg/cli/cliflags"
	"github.com/sparrowsql/sparrow/pkg/sql/bytestream"
	"github.com/sparrowsql/sparrow/pkg/sql/rowcontainer"
	"github.com/sparrowsql/sparrow/pkg/sql/scan"
	"github.com/sparrowsql/sparrow/pkg/sql/sqlbase"
	"github.com/sparrowsql/sparrow/pkg/sql/tuple"
	"github.com/sparrowsql/sparrow/pkg/sql/types"
	"github.com/sparrowsql/sparrow/pkg/util/arena"
	"github.com/sparrowsql/sparrow/pkg/util/humanizeutil"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/metric"
	"github.com/sparrowsql/sparrow/pkg/util/mon"
	"github.com/spf13/cobra"
)

type scanFlags struct {
	schema    string
	delimiter string
	spillPath string
}

func newScanCmd() *cobra.Command {
	var cf configFlags
	sf := scanFlags{delimiter: ","}
	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "scan a delimited file into rows",
		Long: `
Parse a delimited text file into rows of the given schema, buffer them in
memory within the memory budget and print them. With --spill, the rows are
also written to a spill file, read back and checked.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cf.load(cmd.Flags())
			if err != nil {
				return err
			}
			desc, err := parseSchema(sf.schema)
			if err != nil {
				return newFlagError(err)
			}
			delim, err := parseDelimiter(sf.delimiter)
			if err != nil {
				return newFlagError(err)
			}
			metrics := makeSQLMetrics(metric.NewRegistry())
			return runScan(cmd.Context(), cmd.OutOrStdout(), cfg, metrics, desc, delim, args[0], sf.spillPath)
		},
	}
	cf.register(cmd.Flags())
	stringFlag(cmd.Flags(), &sf.schema, cliflags.Schema)
	stringFlag(cmd.Flags(), &sf.delimiter, cliflags.Delimiter)
	stringFlag(cmd.Flags(), &sf.spillPath, cliflags.SpillPath)
	_ = cmd.MarkFlagRequired(cliflags.Schema.Name)
	return cmd
}

// parseSchema builds a laid out tuple descriptor from a list such as
// "int64,string?".
func parseSchema(s string) (*sqlbase.TupleDescriptor, error) {
	dt := sqlbase.NewDescriptorTable()
	desc := dt.CreateTupleDescriptor()
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		nullable := strings.HasSuffix(field, "?")
		typ, err := types.Parse(strings.TrimSuffix(field, "?"))
		if err != nil {
			return nil, errors.Wrapf(err, "schema")
		}
		dt.AddSlotDescriptor(desc, typ, nullable)
	}
	dt.ComputeMemLayout()
	return desc, nil
}

func parseDelimiter(s string) (byte, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	if len(s) != 1 {
		return 0, errors.Newf("delimiter must be a single byte, got %q", s)
	}
	return s[0], nil
}

func newPool(
	cfg base.Config, metrics *sqlMetrics, class string, acc *mon.BoundAccount,
) *tuple.Pool {
	return tuple.NewPool(arena.New(class, arena.Options{
		ChunkSize:    int64(cfg.Arena.ChunkSize),
		MaxChunkSize: int64(cfg.Arena.MaxChunkSize),
		Account:      acc,
		Metrics:      metrics.arenaMetrics(class),
	}))
}

func runScan(
	ctx context.Context,
	out io.Writer,
	cfg base.Config,
	metrics *sqlMetrics,
	desc *sqlbase.TupleDescriptor,
	delim byte,
	path, spillPath string,
) error {
	monitor := mon.NewMonitor("scan", int64(cfg.MemoryBudget))
	scanAcc, rowsAcc := monitor.MakeBoundAccount(), monitor.MakeBoundAccount()
	defer scanAcc.Close(ctx)
	defer rowsAcc.Close(ctx)

	stream := bytestream.NewFileStream(fs, metrics.ByteStream)
	if err := stream.Open(ctx, path); err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	descs := []*sqlbase.TupleDescriptor{desc}
	scanner := scan.NewDelimitedScanner(stream, desc, delim, newPool(cfg, metrics, scanArenaClass, &scanAcc))
	defer scanner.Pool().Release(ctx)
	rows := rowcontainer.NewMemRowContainer(
		descs, newPool(cfg, metrics, rowsArenaClass, &rowsAcc), metrics.RowContainer)
	defer rows.Close(ctx)

	for {
		row, err := scanner.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "%s", path)
		}
		if err := rows.AddRow(ctx, row); err != nil {
			return err
		}
	}
	for i := 0; i < rows.Len(); i++ {
		fmt.Fprintln(out, rows.At(i).GetTuple(0).Format(desc))
	}
	fmt.Fprintf(out, "%d rows, peak memory %s\n",
		rows.Len(), humanizeutil.IBytes(monitor.MaximumBytes()))

	if spillPath == "" {
		return nil
	}
	n, err := rows.Spill(ctx, fs, spillPath, cfg.SpillCodec)
	if err != nil {
		return err
	}
	readAcc := monitor.MakeBoundAccount()
	defer readAcc.Close(ctx)
	readPool := newPool(cfg, metrics, spillArenaClass, &readAcc)
	defer readPool.Release(ctx)
	back, err := rowcontainer.ReadSpilled(ctx, fs, spillPath, cfg.SpillCodec, descs, readPool)
	if err != nil {
		return err
	}
	if len(back) != rows.Len() {
		return errors.AssertionFailedf("spill file has %d rows, expected %d", len(back), rows.Len())
	}
	for i, row := range back {
		if got, exp := row.String(descs), rows.At(i).String(descs); got != exp {
			return errors.AssertionFailedf("spilled row %d is %s, expected %s", i, got, exp)
		}
	}
	log.Infof(ctx, "spilled %d rows to %s", len(back), spillPath)
	fmt.Fprintf(out, "spilled %d rows to %s (%s, %s)\n",
		len(back), spillPath, humanizeutil.IBytes(n), cfg.SpillCodec)
	return nil
}
