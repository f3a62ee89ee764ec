package domain

import (
	"fmt"
	"time"
)

// PeriodLayout is the canonical text form of a period key
const PeriodLayout = "2006-01-02"

// Period is the calendar date identifying one ingestion run.
// The YYYY-MM-DD form makes lexicographic order equal to chronological order.
type Period string

// PeriodOf returns the UTC calendar date of t
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(PeriodLayout))
}

// ParsePeriod validates a YYYY-MM-DD string
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(PeriodLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid period %q: %w", s, err)
	}
	return PeriodOf(t), nil
}

// String implements fmt.Stringer
func (p Period) String() string {
	return string(p)
}

// IsZero reports whether the period is unset
func (p Period) IsZero() bool {
	return p == ""
}

// Before reports whether p is strictly earlier than other
func (p Period) Before(other Period) bool {
	return p < other
}

// Time returns midnight UTC of the period
func (p Period) Time() time.Time {
	t, err := time.Parse(PeriodLayout, string(p))
	if err != nil {
		return time.Time{}
	}
	return t
}
