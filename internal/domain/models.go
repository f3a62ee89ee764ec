// Package domain provides the core holdings models shared by every stage of the pipeline.
package domain

import "math"

// Attribute keys carried on a Record. They describe the entity and are never reconciled numerically.
const (
	AttrCountry          = "country"
	AttrSymbolExchange   = "symbol_exchange"
	AttrFilingsReference = "filings_reference"
)

// Row is one extracted table row: column title -> raw cell text, before normalization
type Row map[string]string

// Record is one entity's holdings for one period
type Record struct {
	EntityID   string            `json:"entity_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Quantity   float64           `json:"quantity"`
	Value      *float64          `json:"value_metric,omitempty"` // nil when the source had no value
	Share      *float64          `json:"share_metric,omitempty"` // nil when the source had no share
	Period     Period            `json:"period_key"`
}

// Attr returns an attribute value or "" when missing
func (r Record) Attr(key string) string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[key]
}

// Clone returns a deep copy so stored history never aliases caller-owned maps or pointers
func (r Record) Clone() Record {
	out := r
	if r.Attributes != nil {
		out.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	out.Value = CopyFloat(r.Value)
	out.Share = CopyFloat(r.Share)
	return out
}

// Snapshot is the full set of entity records for one ingestion period
type Snapshot struct {
	Period  Period   `json:"period_key"`
	Records []Record `json:"records"`
}

// Len returns the number of entity records
func (s Snapshot) Len() int {
	return len(s.Records)
}

// Classification describes how an entity moved between two consecutive periods
type Classification string

const (
	// ClassNew marks an entity with no baseline in the previous period
	ClassNew Classification = "new"
	// ClassChanged marks an entity whose quantity moved
	ClassChanged Classification = "changed"
	// ClassUnchanged marks an entity whose quantity delta is exactly zero
	ClassUnchanged Classification = "unchanged"
	// ClassRemoved marks an entity present only in the previous period
	ClassRemoved Classification = "removed"
)

// Delta is the derived change for one entity between the current and the previous period.
// QuantityChange is nil when there is no baseline; it is never a stand-in zero.
type Delta struct {
	EntityID       string         `json:"entity_id"`
	Class          Classification `json:"classification"`
	Quantity       float64        `json:"quantity"`
	PrevQuantity   *float64       `json:"prev_quantity,omitempty"`
	QuantityChange *float64       `json:"quantity_change,omitempty"`
	Value          *float64       `json:"value_metric,omitempty"`
	ValueChange    *float64       `json:"value_change,omitempty"`
}

// HasBaseline reports whether the quantity delta is defined
func (d Delta) HasBaseline() bool {
	return d.QuantityChange != nil
}

// AbsChange returns |quantity change|, or NaN when undefined
func (d Delta) AbsChange() float64 {
	if d.QuantityChange == nil {
		return math.NaN()
	}
	return math.Abs(*d.QuantityChange)
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// CopyFloat copies an optional value
func CopyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
