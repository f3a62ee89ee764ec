package domain

import "time"

// Clock supplies "now" to the pipeline so tests can pin the ingestion date
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now implements Clock
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock always returns t
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// PeriodClock pins the clock to midnight UTC of a period
func PeriodClock(p Period) Clock {
	return FixedClock(p.Time())
}
