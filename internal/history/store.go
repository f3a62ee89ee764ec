// Package history persists committed holdings snapshots, one immutable period at a time.
package history

import (
	"context"
	"errors"

	"github.com/aristath/treasury/internal/domain"
)

var (
	// ErrOutOfOrderPeriod is returned when committing a period older than the latest committed one
	ErrOutOfOrderPeriod = errors.New("period is older than the latest committed period")
	// ErrEmptySnapshot is returned when committing a snapshot without records
	ErrEmptySnapshot = errors.New("refusing to commit an empty snapshot")
)

// Store is the append-only historical record
type Store interface {
	// Load returns every committed record ordered by (period, entity id)
	Load(ctx context.Context) ([]domain.Record, error)
	// LatestPeriod returns the most recent committed period; ok is false when the store is empty
	LatestPeriod(ctx context.Context) (domain.Period, bool, error)
	// Records returns the records of one period ordered by entity id
	Records(ctx context.Context, period domain.Period) ([]domain.Record, error)
	// Periods returns committed periods in ascending order
	Periods(ctx context.Context) ([]domain.Period, error)
	// Commit appends a snapshot and its deltas atomically.
	// A period that is already present is a no-op reported through CommitResult.Duplicate.
	Commit(ctx context.Context, snap domain.Snapshot, deltas []domain.Delta) (CommitResult, error)
	// History returns persisted entries whose entity id contains match (case-insensitive)
	History(ctx context.Context, match string) ([]Entry, error)
	// Totals returns one aggregate per committed period in ascending order
	Totals(ctx context.Context) ([]PeriodTotal, error)
}

// CommitResult reports what Commit did
type CommitResult struct {
	Period    domain.Period `json:"period_key"`
	Inserted  int           `json:"inserted"`
	Duplicate bool          `json:"duplicate"`
}

// Entry is a persisted record enriched with the changes computed at commit time
type Entry struct {
	domain.Record
	QuantityChange *float64 `json:"quantity_change,omitempty"`
	ValueChange    *float64 `json:"value_change,omitempty"`
}

// PeriodTotal aggregates one committed period
type PeriodTotal struct {
	Period    domain.Period `json:"period_key"`
	Entities  int           `json:"entities"`
	Quantity  float64       `json:"quantity"`
	Share     float64       `json:"share"`
	NetChange *float64      `json:"net_change,omitempty"` // Quantity minus the previous period's, nil for the first period
	// Sum of quantity changes of entities present in both periods, nil when none
	ContinuingChange *float64 `json:"continuing_change,omitempty"`
}

// chainNetChange fills NetChange from consecutive totals, so additions and
// removals count toward the series.
func chainNetChange(totals []PeriodTotal) {
	for i := 1; i < len(totals); i++ {
		totals[i].NetChange = domain.Float(totals[i].Quantity - totals[i-1].Quantity)
	}
}

// entries pairs records with their deltas by entity id
func entries(snap domain.Snapshot, deltas []domain.Delta) []Entry {
	byEntity := make(map[string]domain.Delta, len(deltas))
	for _, d := range deltas {
		byEntity[d.EntityID] = d
	}

	out := make([]Entry, 0, len(snap.Records))
	for _, r := range snap.Records {
		rec := r.Clone()
		rec.Period = snap.Period
		e := Entry{Record: rec}
		if d, ok := byEntity[r.EntityID]; ok {
			e.QuantityChange = domain.CopyFloat(d.QuantityChange)
			e.ValueChange = domain.CopyFloat(d.ValueChange)
		}
		out = append(out, e)
	}
	return out
}
