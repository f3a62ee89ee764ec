package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/history"
)

type historyCmd struct {
	entity string
	limit  int
}

func (*historyCmd) Name() string { return "history" }
func (*historyCmd) Synopsis() string {
	return "show aggregate totals or one entity's holdings over time"
}
func (*historyCmd) Usage() string {
	return `treasury history [-entity <name>] [-limit n]

  Without -entity, prints the total holdings and net change of the most
  recent periods. With -entity, prints every recorded period of the
  entities whose name contains <name> (case-insensitive).
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.entity, "entity", "", "Substring of the entity name to look up.")
	f.IntVar(&c.limit, "limit", 30, "Number of most recent periods to show (0 for all).")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()

	var md string
	if c.entity != "" {
		entries, err := a.container.Store.History(ctx, c.entity)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		if len(entries) == 0 {
			fmt.Printf("No entity matches %q\n", c.entity)
			return subcommands.ExitSuccess
		}
		md = entityMarkdown(c.entity, entries, a.cfg.Digest.Unit)
	} else {
		totals, err := a.container.Store.Totals(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		if len(totals) == 0 {
			fmt.Println("No period recorded yet")
			return subcommands.ExitSuccess
		}
		if c.limit > 0 && len(totals) > c.limit {
			totals = totals[len(totals)-c.limit:]
		}
		md = totalsMarkdown(totals, a.cfg.Digest.Unit)
	}

	printMarkdown(md)
	return subcommands.ExitSuccess
}

func totalsMarkdown(totals []history.PeriodTotal, unit string) string {
	var b strings.Builder
	b.WriteString("# Holdings by period\n\n")
	fmt.Fprintf(&b, "| Period | Entities | Total (%s) | Net change | Share |\n", unit)
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, t := range totals {
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %.3f%% |\n",
			t.Period, t.Entities, humanize.CommafWithDigits(t.Quantity, 2), signed(t.NetChange), t.Share)
	}
	return b.String()
}

func entityMarkdown(match string, entries []history.Entry, unit string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Holdings matching %q\n\n", match)
	fmt.Fprintf(&b, "| Entity | Period | Holdings (%s) | Change | Country |\n", unit)
	b.WriteString("|---|---|---:|---:|---|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			e.EntityID, e.Period, humanize.CommafWithDigits(e.Quantity, 2),
			signed(e.QuantityChange), e.Attr(domain.AttrCountry))
	}
	return b.String()
}

func signed(v *float64) string {
	if v == nil {
		return "-"
	}
	if *v > 0 {
		return "+" + humanize.CommafWithDigits(*v, 2)
	}
	return humanize.CommafWithDigits(*v, 2)
}
