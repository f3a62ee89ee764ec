// Package digest renders the ranked change summary sent to notification channels.
package digest

import (
	"fmt"
	"html"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/reconcile"
)

// Mode selects the markup of the rendered digest
type Mode string

const (
	ModePlain    Mode = "plain"
	ModeMarkdown Mode = "markdown" // Telegram legacy Markdown
	ModeHTML     Mode = "html"
)

// DefaultThreshold is the minimum absolute quantity change reported
const DefaultThreshold = 1.0

// Formatter renders reports. The zero value is usable (plain text, threshold 0, no unit).
type Formatter struct {
	Threshold      float64
	Unit           string
	Mode           Mode
	IncludeNew     bool
	IncludeRemoved bool
}

// Ranked returns the movers of a report ordered by |change| descending, ties by entity id
func (f Formatter) Ranked(report reconcile.Report) []domain.Delta {
	movers := report.Movers(f.Threshold)
	sort.SliceStable(movers, func(i, j int) bool {
		ai, aj := movers[i].AbsChange(), movers[j].AbsChange()
		if ai != aj {
			return ai > aj
		}
		return movers[i].EntityID < movers[j].EntityID
	})
	return movers
}

// Format renders the digest. ok is false when nothing meets the threshold
// and no notification should be sent.
func (f Formatter) Format(report reconcile.Report) (string, bool) {
	movers := f.Ranked(report)
	if len(movers) == 0 {
		return "", false
	}

	var b strings.Builder

	title := fmt.Sprintf("Holdings changes for %s", report.Period)
	if !report.BaselinePeriod.IsZero() {
		title += fmt.Sprintf(" (since %s)", report.BaselinePeriod)
	}
	b.WriteString(f.bold(title))
	b.WriteString("\n\n")

	net := decimal.Zero
	for _, d := range movers {
		change := *d.QuantityChange
		net = net.Add(decimal.NewFromFloat(change))

		direction := "increased"
		if change < 0 {
			direction = "decreased"
		}
		fmt.Fprintf(&b, "%s %s by %s to %s\n",
			f.bold(f.escape(d.EntityID)),
			direction,
			f.amount(math.Abs(change)),
			f.amount(d.Quantity),
		)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Net change: %s", f.signed(net.InexactFloat64()))

	if f.IncludeNew {
		if fresh := report.New(); len(fresh) > 0 {
			b.WriteString("\n\n")
			b.WriteString(f.bold("New"))
			for _, d := range sortedByEntity(fresh) {
				fmt.Fprintf(&b, "\n%s: %s", f.escape(d.EntityID), f.amount(d.Quantity))
			}
		}
	}

	if f.IncludeRemoved && len(report.Removed) > 0 {
		b.WriteString("\n\n")
		b.WriteString(f.bold("No longer listed"))
		for _, d := range sortedByEntity(report.Removed) {
			prev := 0.0
			if d.PrevQuantity != nil {
				prev = *d.PrevQuantity
			}
			fmt.Fprintf(&b, "\n%s: was %s", f.escape(d.EntityID), f.amount(prev))
		}
	}

	return b.String(), true
}

func (f Formatter) amount(v float64) string {
	s := humanize.CommafWithDigits(v, 2)
	if f.Unit != "" {
		s += " " + f.Unit
	}
	return f.escape(s)
}

func (f Formatter) signed(v float64) string {
	if v > 0 {
		return "+" + f.amount(v)
	}
	return f.amount(v)
}

func (f Formatter) bold(s string) string {
	switch f.Mode {
	case ModeMarkdown:
		return "*" + s + "*"
	case ModeHTML:
		return "<b>" + s + "</b>"
	}
	return s
}

var markdownEscaper = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)

func (f Formatter) escape(s string) string {
	switch f.Mode {
	case ModeMarkdown:
		return markdownEscaper.Replace(s)
	case ModeHTML:
		return html.EscapeString(s)
	}
	return s
}

func sortedByEntity(deltas []domain.Delta) []domain.Delta {
	out := append([]domain.Delta(nil), deltas...)
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}
