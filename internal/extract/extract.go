// Package extract locates one named table inside a larger markdown-ish document.
//
// Contract of Section:
//   - the start marker is matched case-insensitively on lines whose heading/emphasis
//     decoration and extra whitespace are ignored; heading lines win over plain mentions
//   - the table is the run of pipe-delimited lines after the marker
//   - it ends at the totals row (kept aside, never part of Lines), at an end marker,
//     at the first non-table line once rows have started, or at end of document
//   - an absent marker or an empty table is an *ExtractionError
package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/treasury/internal/domain"
)

// Markers configures which section is extracted
type Markers struct {
	Start  string   // Title of the section, e.g. "Public Companies that Own Bitcoin"
	End    []string // Extra lines that close the section
	Totals string   // First-cell text of the aggregate row, e.g. "Totals"
}

// Table is the extracted section
type Table struct {
	Marker      string
	MarkerLine  int      // 1-based line of the matched marker
	Lines       []string // Table lines in document order, totals excluded
	LineNumbers []int    // 1-based source line of each entry in Lines
	Totals      string   // Raw totals line, "" when the table had none
	TotalsLine  int
}

// Body returns the table lines joined as text
func (t *Table) Body() string {
	return strings.Join(t.Lines, "\n")
}

// HasTotals reports whether a totals row was identified
func (t *Table) HasTotals() bool {
	return t.Totals != ""
}

// ExtractionError is returned when the requested section cannot be located.
// It means the transport returned something else or the source layout changed.
type ExtractionError struct {
	Marker string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %q: %s", e.Marker, e.Reason)
}

// Section extracts the table that follows m.Start in doc
func Section(doc string, m Markers) (*Table, error) {
	marker := canonical(m.Start)
	if marker == "" {
		return nil, &ExtractionError{Marker: m.Start, Reason: "empty start marker"}
	}

	lines := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n")

	type candidate struct {
		index int
		level int
	}
	var candidates []candidate
	for i, line := range lines {
		if isTableLine(line) {
			continue
		}
		if strings.Contains(canonical(line), marker) {
			candidates = append(candidates, candidate{index: i, level: headingLevel(line)})
		}
	}
	if len(candidates) == 0 {
		return nil, &ExtractionError{Marker: m.Start, Reason: "start marker not found"}
	}

	// Headings first, then plain mentions (navigation links, captions) in document order
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].level > 0 && candidates[j].level == 0
	})

	for _, c := range candidates {
		t := collect(lines, c.index, c.level, m)
		if len(t.Lines) > 0 {
			return t, nil
		}
	}

	return nil, &ExtractionError{Marker: m.Start, Reason: "no table rows follow the start marker"}
}

func collect(lines []string, start, level int, m Markers) *Table {
	t := &Table{Marker: m.Start, MarkerLine: start + 1}
	totals := canonical(m.Totals)
	started := false

	for i := start + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if isTableLine(line) {
			if totals != "" && isTotalsRow(line, totals) {
				t.Totals = line
				t.TotalsLine = i + 1
				break
			}
			started = true
			t.Lines = append(t.Lines, line)
			t.LineNumbers = append(t.LineNumbers, i+1)
			continue
		}

		// Any prose after the rows belongs to the next section
		if started || matchesAny(line, m.End) {
			break
		}
		if lvl := headingLevel(line); lvl > 0 && (level == 0 || lvl <= level) {
			break
		}
	}

	return t
}

// Rows splits table lines into rows keyed by column title.
// Missing trailing cells are "" and surplus cells are ignored.
func Rows(t *Table, columns []string) []domain.Row {
	rows := make([]domain.Row, 0, len(t.Lines))
	for _, line := range t.Lines {
		rows = append(rows, RowOf(line, columns))
	}
	return rows
}

// RowOf maps one table line onto columns
func RowOf(line string, columns []string) domain.Row {
	cells := SplitRow(line)
	row := make(domain.Row, len(columns))
	for i, col := range columns {
		if i < len(cells) {
			row[col] = cells[i]
		} else {
			row[col] = ""
		}
	}
	return row
}

// SplitRow splits a pipe-delimited line into trimmed cells.
// Escaped pipes and pipes inside link text or link destinations stay in the cell.
func SplitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	if strings.HasSuffix(line, "|") && !strings.HasSuffix(line, `\|`) {
		line = line[:len(line)-1]
	}

	var cells []string
	var cell strings.Builder
	depth := 0
	escaped := false
	var prev rune

	for _, r := range line {
		switch {
		case escaped:
			if r != '|' {
				cell.WriteRune('\\')
			}
			cell.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '[' || (r == '(' && prev == ']'):
			depth++
			cell.WriteRune(r)
		case (r == ']' || r == ')') && depth > 0:
			depth--
			cell.WriteRune(r)
		case r == '|' && depth == 0:
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteRune(r)
		}
		prev = r
	}
	if escaped {
		cell.WriteRune('\\')
	}
	cells = append(cells, strings.TrimSpace(cell.String()))

	return cells
}

func isTableLine(line string) bool {
	return strings.Contains(line, "|")
}

func isTotalsRow(line, totals string) bool {
	for _, cell := range SplitRow(line) {
		c := canonical(cell)
		if c == "" {
			continue
		}
		return strings.HasPrefix(c, totals)
	}
	return false
}

func matchesAny(line string, markers []string) bool {
	c := canonical(line)
	for _, m := range markers {
		if mc := canonical(m); mc != "" && strings.Contains(c, mc) {
			return true
		}
	}
	return false
}

// headingLevel returns the ATX heading level of a line, 0 when it is not a heading
func headingLevel(line string) int {
	line = strings.TrimSpace(line)
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0
	}
	if level < len(line) && line[level] != ' ' && line[level] != '\t' {
		return 0
	}
	return level
}

// canonical lower-cases s, drops markdown decoration and collapses whitespace
func canonical(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '#', '*', '_', '>', '`', ' ':
			return ' '
		}
		return r
	}, s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
