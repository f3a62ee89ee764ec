package digest

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/reconcile"
)

func changed(entity string, prev, now float64) domain.Delta {
	change := now - prev
	class := domain.ClassChanged
	if change == 0 {
		class = domain.ClassUnchanged
	}
	return domain.Delta{
		EntityID:       entity,
		Class:          class,
		Quantity:       now,
		PrevQuantity:   domain.Float(prev),
		QuantityChange: domain.Float(change),
	}
}

func report(deltas ...domain.Delta) reconcile.Report {
	return reconcile.Report{Period: "2024-01-02", BaselinePeriod: "2024-01-01", Deltas: deltas}
}

func TestFormat_SingleMover(t *testing.T) {
	f := Formatter{Threshold: 1.0, Unit: "BTC"}

	text, ok := f.Format(report(changed("Alpha", 100, 105), changed("Beta", 50, 50)))
	require.True(t, ok)

	assert.Equal(t, "Holdings changes for 2024-01-02 (since 2024-01-01)\n\n"+
		"Alpha increased by 5 BTC to 105 BTC\n\n"+
		"Net change: +5 BTC", text)
	assert.NotContains(t, text, "Beta")
}

func TestFormat_NothingQualifies(t *testing.T) {
	f := Formatter{Threshold: 1.0}

	text, ok := f.Format(report(changed("Alpha", 100, 100.5), changed("Beta", 50, 50)))
	assert.False(t, ok)
	assert.Empty(t, text)

	newOnly := report(domain.Delta{EntityID: "Gamma", Class: domain.ClassNew, Quantity: 10})
	_, ok = Formatter{Threshold: 0, IncludeNew: true}.Format(newOnly)
	assert.False(t, ok, "new entities alone never trigger a digest")
}

func TestFormat_RankingAndFooter(t *testing.T) {
	f := Formatter{Threshold: 1.0, Unit: "BTC"}

	text, ok := f.Format(report(
		changed("Small", 10, 12),
		changed("Seller", 1000, 700),
		changed("Buyer", 500, 800),
		changed("Mid", 100, 150),
	))
	require.True(t, ok)

	lines := strings.Split(text, "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Buyer increased by 300 BTC to 800 BTC", lines[2], "ties ranked by entity id")
	assert.Equal(t, "Seller decreased by 300 BTC to 700 BTC", lines[3])
	assert.Equal(t, "Mid increased by 50 BTC to 150 BTC", lines[4])
	assert.Equal(t, "Small increased by 2 BTC to 12 BTC", lines[5])
	assert.Equal(t, "Net change: +52 BTC", lines[7])
}

func TestFormat_ThresholdFilterProperty(t *testing.T) {
	var deltas []domain.Delta
	for i, change := range []float64{0, 0.25, -0.99, 1, -1, 1.01, 7, -42.5} {
		deltas = append(deltas, changed(string(rune('A'+i)), 100, 100+change))
	}
	r := report(deltas...)

	for _, threshold := range []float64{0.5, 1, 2} {
		f := Formatter{Threshold: threshold}
		ranked := f.Ranked(r)

		included := make(map[string]bool)
		for _, d := range ranked {
			included[d.EntityID] = true
		}
		for _, d := range deltas {
			want := math.Abs(*d.QuantityChange) >= threshold && *d.QuantityChange != 0
			assert.Equal(t, want, included[d.EntityID], "threshold %v entity %s", threshold, d.EntityID)
		}
		for i := 1; i < len(ranked); i++ {
			assert.GreaterOrEqual(t, ranked[i-1].AbsChange(), ranked[i].AbsChange())
		}
	}
}

func TestFormat_NetChangeCoversMoversOnly(t *testing.T) {
	f := Formatter{Threshold: 1.0}

	text, ok := f.Format(report(changed("A", 10, 13), changed("B", 10, 9.5), changed("C", 10, 8)))
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(text, "Net change: +1"), text)
}

func TestFormat_DecimalFooter(t *testing.T) {
	f := Formatter{Threshold: 0.01}

	text, ok := f.Format(report(changed("A", 0, 0.1), changed("B", 0, 0.2)))
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(text, "Net change: +0.3"), text)
}

func TestFormat_Modes(t *testing.T) {
	r := report(changed("Foo_Bar & Co", 1000, 2500))

	md, ok := Formatter{Threshold: 1, Unit: "BTC", Mode: ModeMarkdown}.Format(r)
	require.True(t, ok)
	assert.Contains(t, md, `*Foo\_Bar & Co* increased by 1,500 BTC to 2,500 BTC`)
	assert.True(t, strings.HasPrefix(md, "*Holdings changes"))

	htm, ok := Formatter{Threshold: 1, Unit: "BTC", Mode: ModeHTML}.Format(r)
	require.True(t, ok)
	assert.Contains(t, htm, "<b>Foo_Bar &amp; Co</b> increased by 1,500 BTC")
}

func TestFormat_OptionalSections(t *testing.T) {
	r := report(
		changed("Alpha", 100, 110),
		domain.Delta{EntityID: "Gamma", Class: domain.ClassNew, Quantity: 7},
	)
	r.Removed = []domain.Delta{{EntityID: "Beta", Class: domain.ClassRemoved, PrevQuantity: domain.Float(50)}}

	plain, ok := Formatter{Threshold: 1}.Format(r)
	require.True(t, ok)
	assert.NotContains(t, plain, "Gamma")
	assert.NotContains(t, plain, "Beta", "de-listings are omitted by default")

	full, ok := Formatter{Threshold: 1, Unit: "BTC", IncludeNew: true, IncludeRemoved: true}.Format(r)
	require.True(t, ok)
	assert.Contains(t, full, "New\nGamma: 7 BTC")
	assert.Contains(t, full, "No longer listed\nBeta: was 50 BTC")
}
