package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aristath/treasury/internal/domain"
)

// MemoryStore is an in-process Store used for dry runs and tests
type MemoryStore struct {
	mu      sync.RWMutex
	periods map[domain.Period][]Entry
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{periods: make(map[domain.Period][]Entry)}
}

// CopyOf loads every committed entry of src into a new MemoryStore
func CopyOf(ctx context.Context, src Store) (*MemoryStore, error) {
	all, err := src.History(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to copy history: %w", err)
	}

	m := NewMemoryStore()
	for _, e := range all {
		m.periods[e.Period] = append(m.periods[e.Period], cloneEntry(e))
	}
	for p := range m.periods {
		sortEntries(m.periods[p])
	}
	return m, nil
}

// Load returns every committed record ordered by (period, entity id)
func (m *MemoryStore) Load(_ context.Context) ([]domain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Record
	for _, p := range m.sortedPeriods() {
		for _, e := range m.periods[p] {
			out = append(out, e.Record.Clone())
		}
	}
	return out, nil
}

// LatestPeriod returns the most recent committed period
func (m *MemoryStore) LatestPeriod(_ context.Context) (domain.Period, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	periods := m.sortedPeriods()
	if len(periods) == 0 {
		return "", false, nil
	}
	return periods[len(periods)-1], true, nil
}

// Records returns the records of one period ordered by entity id
func (m *MemoryStore) Records(_ context.Context, period domain.Period) ([]domain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.periods[period]
	out := make([]domain.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Record.Clone())
	}
	return out, nil
}

// Periods returns committed periods in ascending order
func (m *MemoryStore) Periods(_ context.Context) ([]domain.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedPeriods(), nil
}

// Commit appends the snapshot unless its period is already present
func (m *MemoryStore) Commit(_ context.Context, snap domain.Snapshot, deltas []domain.Delta) (CommitResult, error) {
	result := CommitResult{Period: snap.Period}
	if snap.Len() == 0 {
		return result, ErrEmptySnapshot
	}
	if snap.Period.IsZero() {
		return result, fmt.Errorf("failed to commit snapshot: period is not set")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.periods[snap.Period]; ok {
		result.Duplicate = true
		return result, nil
	}
	if periods := m.sortedPeriods(); len(periods) > 0 && snap.Period.Before(periods[len(periods)-1]) {
		return result, fmt.Errorf("%w: %s < %s", ErrOutOfOrderPeriod, snap.Period, periods[len(periods)-1])
	}

	es := entries(snap, deltas)
	seen := make(map[string]bool, len(es))
	for _, e := range es {
		if seen[e.EntityID] {
			return result, fmt.Errorf("failed to commit snapshot: duplicate entity %s", e.EntityID)
		}
		seen[e.EntityID] = true
	}
	sortEntries(es)

	m.periods[snap.Period] = es
	result.Inserted = len(es)
	return result, nil
}

// History returns entries whose entity id contains match, ordered by entity then period
func (m *MemoryStore) History(_ context.Context, match string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(match))
	var out []Entry
	for _, entries := range m.periods {
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.EntityID), needle) {
				out = append(out, cloneEntry(e))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Period < out[j].Period
	})
	return out, nil
}

// Totals returns one aggregate per committed period
func (m *MemoryStore) Totals(_ context.Context) ([]PeriodTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totals []PeriodTotal
	for _, p := range m.sortedPeriods() {
		t := PeriodTotal{Period: p}
		for _, e := range m.periods[p] {
			t.Entities++
			t.Quantity += e.Quantity
			if e.Share != nil {
				t.Share += *e.Share
			}
			if e.QuantityChange != nil {
				if t.ContinuingChange == nil {
					t.ContinuingChange = domain.Float(0)
				}
				*t.ContinuingChange += *e.QuantityChange
			}
		}
		totals = append(totals, t)
	}
	chainNetChange(totals)
	return totals, nil
}

func (m *MemoryStore) sortedPeriods() []domain.Period {
	periods := make([]domain.Period, 0, len(m.periods))
	for p := range m.periods {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })
	return periods
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].EntityID < es[j].EntityID })
}

func cloneEntry(e Entry) Entry {
	return Entry{
		Record:         e.Record.Clone(),
		QuantityChange: domain.CopyFloat(e.QuantityChange),
		ValueChange:    domain.CopyFloat(e.ValueChange),
	}
}
