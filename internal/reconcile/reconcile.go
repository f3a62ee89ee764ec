// Package reconcile joins a snapshot with its baseline period and derives per-entity deltas.
package reconcile

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/treasury/internal/domain"
)

// Report is the full comparison of one snapshot against the previous period
type Report struct {
	Period         domain.Period  `json:"period_key"`
	BaselinePeriod domain.Period  `json:"baseline_period_key,omitempty"`
	Deltas         []domain.Delta `json:"deltas"`  // Current entities in snapshot order
	Removed        []domain.Delta `json:"removed"` // Baseline entities absent from the snapshot
	Aggregate      Aggregate      `json:"aggregate"`
}

// Aggregate summarizes a report
type Aggregate struct {
	Quantity     float64 `json:"quantity"`      // Sum over the current snapshot
	PrevQuantity float64 `json:"prev_quantity"` // Sum over the baseline
	NetChange    float64 `json:"net_change"`    // Sum of changes over entities present in both periods
	Share        float64 `json:"share"`         // Sum of the share metric where present
	New          int     `json:"new"`
	Changed      int     `json:"changed"`
	Unchanged    int     `json:"unchanged"`
	Removed      int     `json:"removed"`
}

// Reconcile compares current against baseline by entity id.
// An empty baseline classifies every entity as new.
func Reconcile(current domain.Snapshot, baseline []domain.Record) Report {
	report := Report{Period: current.Period}

	prev := make(map[string]domain.Record, len(baseline))
	for _, r := range baseline {
		prev[r.EntityID] = r
		if report.BaselinePeriod.IsZero() {
			report.BaselinePeriod = r.Period
		}
	}

	present := make(map[string]bool, len(current.Records))
	quantities := make([]float64, 0, len(current.Records))
	var changes, shares []float64

	for _, r := range current.Records {
		present[r.EntityID] = true
		quantities = append(quantities, r.Quantity)
		if r.Share != nil {
			shares = append(shares, *r.Share)
		}

		d := domain.Delta{
			EntityID: r.EntityID,
			Quantity: r.Quantity,
			Value:    domain.CopyFloat(r.Value),
		}

		p, ok := prev[r.EntityID]
		if !ok {
			d.Class = domain.ClassNew
			report.Aggregate.New++
			report.Deltas = append(report.Deltas, d)
			continue
		}

		change := r.Quantity - p.Quantity
		d.PrevQuantity = domain.Float(p.Quantity)
		d.QuantityChange = domain.Float(change)
		if r.Value != nil && p.Value != nil {
			d.ValueChange = domain.Float(*r.Value - *p.Value)
		}
		changes = append(changes, change)

		if math.Abs(change) > 0 {
			d.Class = domain.ClassChanged
			report.Aggregate.Changed++
		} else {
			d.Class = domain.ClassUnchanged
			report.Aggregate.Unchanged++
		}
		report.Deltas = append(report.Deltas, d)
	}

	prevQuantities := make([]float64, 0, len(baseline))
	for _, r := range baseline {
		prevQuantities = append(prevQuantities, r.Quantity)
		if present[r.EntityID] {
			continue
		}
		report.Removed = append(report.Removed, domain.Delta{
			EntityID:     r.EntityID,
			Class:        domain.ClassRemoved,
			PrevQuantity: domain.Float(r.Quantity),
		})
	}
	sort.Slice(report.Removed, func(i, j int) bool {
		return report.Removed[i].EntityID < report.Removed[j].EntityID
	})

	report.Aggregate.Removed = len(report.Removed)
	report.Aggregate.Quantity = floats.Sum(quantities)
	report.Aggregate.PrevQuantity = floats.Sum(prevQuantities)
	report.Aggregate.NetChange = floats.Sum(changes)
	report.Aggregate.Share = floats.Sum(shares)

	return report
}

// Movers returns deltas with a defined, finite change of at least threshold in magnitude.
// Exactly-zero changes are never movers.
func (r Report) Movers(threshold float64) []domain.Delta {
	var out []domain.Delta
	for _, d := range r.Deltas {
		if !d.HasBaseline() {
			continue
		}
		abs := d.AbsChange()
		if math.IsNaN(abs) || math.IsInf(abs, 0) || abs == 0 {
			continue
		}
		if abs >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// New returns deltas for entities without a baseline
func (r Report) New() []domain.Delta {
	var out []domain.Delta
	for _, d := range r.Deltas {
		if d.Class == domain.ClassNew {
			out = append(out, d)
		}
	}
	return out
}
