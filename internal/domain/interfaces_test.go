package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	clock := FixedClock(now)
	assert.Equal(t, now, clock.Now())
	assert.Equal(t, now, clock.Now())
}

func TestPeriodClock(t *testing.T) {
	clock := PeriodClock("2024-01-03")
	assert.Equal(t, Period("2024-01-03"), PeriodOf(clock.Now()))
}
