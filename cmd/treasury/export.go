package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/aristath/treasury/internal/exporter"
)

type exportCmd struct {
	format string
	out    string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write the recorded history as csv files or a workbook" }
func (*exportCmd) Usage() string {
	return `treasury export [-format csv|xlsx] [-out dir]

  Writes holdings, per-entity changes, period totals and net change.
  csv produces one file per table, xlsx one workbook with a sheet each.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", "csv", "Output format (csv, xlsx).")
	f.StringVar(&c.out, "out", "", "Output directory (defaults to <data dir>/exports).")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	format, err := exporter.ParseFormat(c.format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	a, err := setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()

	dir := c.out
	if dir == "" {
		dir = a.cfg.ExportDir()
	}

	files, err := a.container.Exporter.Export(ctx, format, dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return subcommands.ExitSuccess
}
