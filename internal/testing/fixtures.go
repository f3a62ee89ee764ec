package testing

import (
	"fmt"
	"strings"
)

// Holding is one row of a generated holdings page
type Holding struct {
	Entity   string
	Country  string
	Quantity string // Raw cell text, e.g. "1,000" or "N/A"
}

// HoldingsPage renders a document shaped like the public companies holdings page,
// with a navigation link, the target table, a totals row and a following section.
func HoldingsPage(holdings ...Holding) string {
	var b strings.Builder
	b.WriteString("# Bitcoin Treasuries\n\n")
	b.WriteString("[Public Companies that Own Bitcoin](#public)\n\n")
	b.WriteString("## Public Companies that Own Bitcoin\n\n")
	b.WriteString("| Entity | Country | Symbol:Exchange | Filings & Sources | # of BTC | Value Today | % of 21m |\n")
	b.WriteString("| --- | --- | --- | --- | --- | --- | --- |\n")
	for i, h := range holdings {
		country := h.Country
		if country == "" {
			country = "US"
		}
		fmt.Fprintf(&b, "| %s | %s | T%d:NYSE | [Filing](https://example.com/%d) | %s | | |\n",
			h.Entity, country, i, i, h.Quantity)
	}
	b.WriteString("| **Totals:** | | | | | | |\n\n")
	b.WriteString("## Private Companies that Own Bitcoin\n\n")
	b.WriteString("| Entity | Country | # of BTC |\n")
	b.WriteString("| --- | --- | --- |\n")
	b.WriteString("| Block.one | US | 164,000 |\n")
	return b.String()
}

// NewHoldingFixtures returns a small valid holdings set
func NewHoldingFixtures() []Holding {
	return []Holding{
		{Entity: "[Strategy](https://example.com/mstr)", Quantity: "640,031"},
		{Entity: "Metaplanet Inc.", Country: "JP", Quantity: "20,000"},
		{Entity: "Tesla, Inc.", Quantity: "11,509"},
	}
}
