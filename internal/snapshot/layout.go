// Package snapshot assembles normalized table rows into one period's Snapshot.
package snapshot

import "github.com/aristath/treasury/internal/domain"

// Layout maps source column titles onto record fields
type Layout struct {
	Columns    []string          // Column titles in source order
	Entity     string            // Entity identifier column
	Quantity   string            // Required holdings column
	Value      string            // Optional value column
	Share      string            // Optional share-of-supply column
	Attributes map[string]string // Attribute key -> column
	References []string          // Attribute keys kept as link destinations
	Totals     string            // Entity label of the aggregate row
}

// DefaultLayout is the layout of the public companies holdings table
func DefaultLayout() Layout {
	return Layout{
		Columns: []string{
			"Entity",
			"Country",
			"Symbol:Exchange",
			"Filings & Sources",
			"# of BTC",
			"Value Today",
			"% of 21m",
		},
		Entity:   "Entity",
		Quantity: "# of BTC",
		Value:    "Value Today",
		Share:    "% of 21m",
		Attributes: map[string]string{
			domain.AttrCountry:          "Country",
			domain.AttrSymbolExchange:   "Symbol:Exchange",
			domain.AttrFilingsReference: "Filings & Sources",
		},
		References: []string{domain.AttrFilingsReference},
		Totals:     "Totals",
	}
}

func (l Layout) isReference(attr string) bool {
	for _, r := range l.References {
		if r == attr {
			return true
		}
	}
	return false
}
