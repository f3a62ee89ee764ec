package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bitboColumns = []string{"Entity", "Country", "Symbol:Exchange", "Filings & Sources", "# of BTC", "Value Today", "% of 21m"}

func bitboMarkers() Markers {
	return Markers{Start: "Public Companies that Own Bitcoin", Totals: "Totals"}
}

const page = `# Bitcoin Treasuries

[Public Companies that Own Bitcoin](#public)

Some intro paragraph.

## Public Companies that Own Bitcoin

| Entity | Country | Symbol:Exchange | Filings & Sources | # of BTC | Value Today | % of 21m |
| --- | --- | --- | --- | --- | --- | --- |
| [Strategy](https://example.com/mstr) | US | MSTR:NADQ | [Filing](https://sec.gov/x) | 640,031 | $70,000,000,000 | 3.048% |
| Metaplanet Inc. | JP | 3350:TYO | [Filing](https://x.jp) | 20,000 | $2,000,000,000 | 0.095% |
| **Totals:** | | | | 660,031 | | 3.143% |

## Private Companies that Own Bitcoin

| Entity | Country | # of BTC |
| --- | --- | --- |
| Block.one | US | 164,000 |
`

func TestSection(t *testing.T) {
	t.Run("extracts table under heading marker", func(t *testing.T) {
		table, err := Section(page, bitboMarkers())
		require.NoError(t, err)

		require.Len(t, table.Lines, 4)
		assert.Contains(t, table.Lines[0], "Entity")
		assert.Contains(t, table.Lines[2], "Strategy")
		assert.Contains(t, table.Lines[3], "Metaplanet")
		assert.True(t, table.HasTotals())
		assert.Contains(t, table.Totals, "**Totals:**")
		assert.Equal(t, 7, table.MarkerLine)
		assert.Equal(t, []int{9, 10, 11, 12}, table.LineNumbers)
	})

	t.Run("totals row and following section excluded", func(t *testing.T) {
		table, err := Section(page, bitboMarkers())
		require.NoError(t, err)
		assert.NotContains(t, table.Body(), "Totals")
		assert.NotContains(t, table.Body(), "Block.one")
	})

	t.Run("marker is matched regardless of decoration and spacing", func(t *testing.T) {
		doc := "**PUBLIC   companies that own   bitcoin**\n\n| Entity | # of BTC |\n|---|---|\n| A | 1 |\n"
		table, err := Section(doc, bitboMarkers())
		require.NoError(t, err)
		assert.Len(t, table.Lines, 3)
		assert.False(t, table.HasTotals())
	})

	t.Run("table runs to end of document without totals", func(t *testing.T) {
		doc := "### Public Companies that Own Bitcoin\n| Entity | # of BTC |\n| A | 1 |\n| B | 2 |"
		table, err := Section(doc, bitboMarkers())
		require.NoError(t, err)
		assert.Len(t, table.Lines, 3)
	})

	t.Run("end marker terminates table", func(t *testing.T) {
		doc := "Public Companies that Own Bitcoin\n| A | 1 |\nSee also\n| B | 2 |"
		m := bitboMarkers()
		m.End = []string{"see also"}
		table, err := Section(doc, m)
		require.NoError(t, err)
		assert.Equal(t, []string{"| A | 1 |"}, table.Lines)
	})

	t.Run("bold title of the next section ends the table", func(t *testing.T) {
		doc := "## Public Companies that Own Bitcoin\n\n" +
			"| Entity | # of BTC |\n|---|---|\n| Alpha | 100 |\n| Beta | 50 |\n\n" +
			"**Private Companies that Own Bitcoin**\n\n" +
			"| Entity | # of BTC |\n|---|---|\n| Gamma | 999 |\n"
		table, err := Section(doc, bitboMarkers())
		require.NoError(t, err)
		assert.Equal(t, []string{"| Entity | # of BTC |", "|---|---|", "| Alpha | 100 |", "| Beta | 50 |"}, table.Lines)
		assert.NotContains(t, table.Body(), "Gamma")
	})

	t.Run("CRLF input", func(t *testing.T) {
		doc := "## Public Companies that Own Bitcoin\r\n| A | 1 |\r\n| B | 2 |\r\n"
		table, err := Section(doc, bitboMarkers())
		require.NoError(t, err)
		assert.Equal(t, []string{"| A | 1 |", "| B | 2 |"}, table.Lines)
	})
}

func TestSection_Errors(t *testing.T) {
	t.Run("missing marker", func(t *testing.T) {
		_, err := Section("# Access denied\n\nPlease enable JavaScript.", bitboMarkers())
		require.Error(t, err)

		var extractErr *ExtractionError
		require.True(t, errors.As(err, &extractErr))
		assert.Equal(t, "Public Companies that Own Bitcoin", extractErr.Marker)
		assert.Contains(t, extractErr.Reason, "not found")
	})

	t.Run("marker without table", func(t *testing.T) {
		doc := "## Public Companies that Own Bitcoin\n\nNo data today.\n\n## Other\n| x | y |"
		_, err := Section(doc, bitboMarkers())

		var extractErr *ExtractionError
		require.True(t, errors.As(err, &extractErr))
		assert.Contains(t, extractErr.Reason, "no table rows")
	})

	t.Run("empty marker", func(t *testing.T) {
		_, err := Section(page, Markers{})
		var extractErr *ExtractionError
		assert.True(t, errors.As(err, &extractErr))
	})
}

func TestSplitRow(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "| a | b | c |", []string{"a", "b", "c"}},
		{"no outer pipes", "a | b", []string{"a", "b"}},
		{"empty cells", "| a | | c |", []string{"a", "", "c"}},
		{"escaped pipe", `| a \| b | c |`, []string{"a | b", "c"}},
		{"pipe inside link", "| [x|y](http://e/a|b) | 2 |", []string{"[x|y](http://e/a|b)", "2"}},
		{"other escapes kept", `| a\*b | c |`, []string{`a\*b`, "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitRow(tt.line))
		})
	}
}

func TestRows(t *testing.T) {
	table, err := Section(page, bitboMarkers())
	require.NoError(t, err)

	rows := Rows(table, bitboColumns)
	require.Len(t, rows, 4)

	assert.Equal(t, "Entity", rows[0]["Entity"])
	assert.Equal(t, "[Strategy](https://example.com/mstr)", rows[2]["Entity"])
	assert.Equal(t, "640,031", rows[2]["# of BTC"])
	assert.Equal(t, "3.048%", rows[2]["% of 21m"])

	short := RowOf("| Only |", bitboColumns)
	assert.Equal(t, "Only", short["Entity"])
	v, ok := short["# of BTC"]
	assert.True(t, ok)
	assert.Empty(t, v)
}
