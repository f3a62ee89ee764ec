package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/aristath/treasury/internal/di"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/history"
	"github.com/aristath/treasury/internal/pipeline"
	"github.com/aristath/treasury/internal/source"
)

type runCmd struct {
	period string
	file   string
	dryRun bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "ingest the holdings table once and send the digest" }
func (*runCmd) Usage() string {
	return `treasury run [-period YYYY-MM-DD] [-file path] [-dry-run]

  Fetches the holdings page, commits it as one period, reconciles it with
  the previous period and notifies the configured channels. With -dry-run
  history is copied in memory, nothing is persisted and the digest is
  printed instead of sent.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "period", "", "Period key to record the snapshot under (defaults to today, UTC).")
	f.StringVar(&c.file, "file", "", "Read the page from a local file instead of the configured source.")
	f.BoolVar(&c.dryRun, "dry-run", false, "Reconcile against a copy of history and print the digest.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()

	src := a.container.Source
	if c.file != "" {
		src = source.File{Path: c.file}
	}

	var opts []pipeline.Option
	if c.period != "" {
		p, err := domain.ParsePeriod(c.period)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
		opts = append(opts, pipeline.WithClock(domain.PeriodClock(p)))
	}

	var store history.Store = a.container.Store
	if c.dryRun {
		mem, err := history.CopyOf(ctx, a.container.Store)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		store = mem
	} else {
		opts = append(opts,
			pipeline.WithNotifiers(a.container.Notifiers...),
			pipeline.WithRunRecorder(a.container.Runs),
			pipeline.WithEvents(a.container.Events),
		)
	}

	doc, err := src.Fetch(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	p := pipeline.New(di.PipelineConfig(a.cfg), store, a.log, opts...)
	result, err := p.Run(ctx, doc)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	return c.report(os.Stdout, os.Stderr, result)
}

// report prints the outcome of a successful run.
// Delivery failures are warnings: the period is committed either way.
func (c *runCmd) report(out, errOut io.Writer, result *pipeline.Result) subcommands.ExitStatus {
	if result.Duplicate {
		fmt.Fprintf(out, "Period %s is already recorded, nothing to do\n", result.Period)
		return subcommands.ExitSuccess
	}

	fmt.Fprintf(out, "Period %s: %d entities accepted, %d rows rejected, %d movers\n",
		result.Period, result.Accepted, len(result.Rejected), len(result.Movers))
	for _, r := range result.Rejected {
		fmt.Fprintf(errOut, "  rejected: %v\n", r)
	}

	if c.dryRun {
		if result.Digest == "" {
			fmt.Fprintln(out, "No digest: nothing met the threshold")
		} else {
			printMarkdown(result.Digest)
		}
	}

	if result.NotifyErr != nil {
		fmt.Fprintf(errOut, "warning: digest delivery failed: %v\n", result.NotifyErr)
	}

	return subcommands.ExitSuccess
}
