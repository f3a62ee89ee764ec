package snapshot

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/extract"
	"github.com/aristath/treasury/internal/normalize"
)

// EmptySnapshotError is returned when no valid record survives normalization
type EmptySnapshotError struct {
	Rows     int
	Rejected int
}

func (e *EmptySnapshotError) Error() string {
	return fmt.Sprintf("empty snapshot: %d rows, %d rejected, none accepted", e.Rows, e.Rejected)
}

// Result is the outcome of one build
type Result struct {
	Snapshot    domain.Snapshot
	Rejected    []*normalize.RowRejected
	Skipped     int      // Header, separator and totals artifacts
	SourceTotal *float64 // Quantity printed on the totals row, if any
}

// Builder turns extracted rows into a Snapshot
type Builder struct {
	Layout Layout
	Clock  domain.Clock
	Log    zerolog.Logger
}

// NewBuilder creates a builder with the given layout and clock
func NewBuilder(layout Layout, clock domain.Clock, log zerolog.Logger) *Builder {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Builder{
		Layout: layout,
		Clock:  clock,
		Log:    log.With().Str("component", "snapshot_builder").Logger(),
	}
}

// BuildTable splits an extracted table and builds it, keeping source line numbers
func (b *Builder) BuildTable(t *extract.Table) (*Result, error) {
	rows := extract.Rows(t, b.Layout.Columns)
	res, err := b.build(rows, t.LineNumbers)

	if res != nil && t.HasTotals() {
		totals := extract.RowOf(t.Totals, b.Layout.Columns)
		if q, qerr := normalize.Number(totals[b.Layout.Quantity]); qerr == nil && q != nil {
			res.SourceTotal = q
			b.checkTotals(res)
		}
	}
	return res, err
}

// Build assembles rows into a snapshot stamped with one period from the clock
func (b *Builder) Build(rows []domain.Row) (*Result, error) {
	return b.build(rows, nil)
}

func (b *Builder) build(rows []domain.Row, lines []int) (*Result, error) {
	clock := b.Clock
	if clock == nil {
		clock = domain.SystemClock
	}
	period := domain.PeriodOf(clock.Now())

	res := &Result{Snapshot: domain.Snapshot{Period: period}}
	seen := make(map[string]int, len(rows))

	for i, row := range rows {
		line := i + 1
		if i < len(lines) {
			line = lines[i]
		}

		if b.isArtifact(row) {
			res.Skipped++
			continue
		}

		rec, rejected := b.record(row, line, period)
		if rejected == nil {
			if first, dup := seen[rec.EntityID]; dup {
				rejected = &normalize.RowRejected{
					Line:   line,
					Entity: rec.EntityID,
					Column: b.Layout.Entity,
					Value:  row[b.Layout.Entity],
					Reason: fmt.Sprintf("duplicate entity, first seen at line %d", first),
				}
			}
		}
		if rejected != nil {
			b.Log.Warn().
				Int("line", rejected.Line).
				Str("entity", rejected.Entity).
				Str("column", rejected.Column).
				Str("value", rejected.Value).
				Str("reason", rejected.Reason).
				Msg("Row rejected")
			res.Rejected = append(res.Rejected, rejected)
			continue
		}

		seen[rec.EntityID] = line
		res.Snapshot.Records = append(res.Snapshot.Records, rec)
	}

	if len(res.Snapshot.Records) == 0 {
		return res, &EmptySnapshotError{Rows: len(rows), Rejected: len(res.Rejected)}
	}

	b.Log.Debug().
		Str("period", period.String()).
		Int("accepted", len(res.Snapshot.Records)).
		Int("rejected", len(res.Rejected)).
		Int("skipped", res.Skipped).
		Msg("Snapshot built")

	return res, nil
}

func (b *Builder) record(row domain.Row, line int, period domain.Period) (domain.Record, *normalize.RowRejected) {
	l := b.Layout
	entity := normalize.Label(row[l.Entity])
	if entity == "" {
		return domain.Record{}, &normalize.RowRejected{Line: line, Column: l.Entity, Value: row[l.Entity], Reason: "empty entity"}
	}

	qty, err := normalize.Number(row[l.Quantity])
	switch {
	case err != nil:
		return domain.Record{}, &normalize.RowRejected{Line: line, Entity: entity, Column: l.Quantity, Value: row[l.Quantity], Reason: "quantity is not numeric"}
	case qty == nil:
		return domain.Record{}, &normalize.RowRejected{Line: line, Entity: entity, Column: l.Quantity, Value: row[l.Quantity], Reason: "quantity is missing"}
	}

	rec := domain.Record{
		EntityID: entity,
		Quantity: *qty,
		Value:    b.optional(row, l.Value, entity, line),
		Share:    b.optional(row, l.Share, entity, line),
		Period:   period,
	}

	for attr, col := range l.Attributes {
		var v string
		if l.isReference(attr) {
			v = normalize.Reference(row[col])
		} else {
			v = normalize.Label(row[col])
		}
		if v == "" {
			continue
		}
		if rec.Attributes == nil {
			rec.Attributes = make(map[string]string, len(l.Attributes))
		}
		rec.Attributes[attr] = v
	}

	return rec, nil
}

// optional parses a non-required numeric column; unparseable cells become absent
func (b *Builder) optional(row domain.Row, col, entity string, line int) *float64 {
	if col == "" {
		return nil
	}
	v, err := normalize.Number(row[col])
	if errors.Is(err, normalize.ErrNotNumeric) {
		b.Log.Debug().
			Int("line", line).
			Str("entity", entity).
			Str("column", col).
			Str("value", row[col]).
			Msg("Optional column not numeric, treating as absent")
		return nil
	}
	return v
}

// isArtifact reports header rows, separator rows and leaked totals rows
func (b *Builder) isArtifact(row domain.Row) bool {
	entity := normalize.Label(row[b.Layout.Entity])
	if strings.EqualFold(entity, b.Layout.Entity) {
		return true
	}
	if b.Layout.Totals != "" && strings.HasPrefix(strings.ToLower(entity), strings.ToLower(b.Layout.Totals)) {
		return true
	}

	sawDash := false
	for _, cell := range row {
		for _, r := range cell {
			switch r {
			case '-':
				sawDash = true
			case ':', ' ', '\t':
			default:
				return false
			}
		}
	}
	return sawDash
}

func (b *Builder) checkTotals(res *Result) {
	if res.SourceTotal == nil || len(res.Snapshot.Records) == 0 {
		return
	}
	var sum float64
	for _, r := range res.Snapshot.Records {
		sum += r.Quantity
	}
	if *res.SourceTotal == 0 {
		return
	}
	drift := math.Abs(sum-*res.SourceTotal) / *res.SourceTotal
	if drift > 0.005 {
		b.Log.Warn().
			Float64("source_total", *res.SourceTotal).
			Float64("accepted_total", sum).
			Float64("drift", drift).
			Msg("Accepted quantities do not add up to the source totals row")
	}
}
