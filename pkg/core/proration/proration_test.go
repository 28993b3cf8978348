package proration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestFullMonth(t *testing.T) {
	start, end := d(2026, time.January, 1), d(2026, time.January, 31)
	r := Compute(d(2020, time.March, 1), nil, start, end)

	assert.Equal(t, 31, r.TotalDays)
	assert.Equal(t, 31, r.DaysPayable)
	assert.True(t, r.Full())
	assert.Equal(t, "1", r.Factor.String())
}

func TestMidMonthJoiner(t *testing.T) {
	// Scenario: joined Jan 16 of a 31-day month, factor 16/31 = 0.5161.
	start, end := d(2026, time.January, 1), d(2026, time.January, 31)
	r := Compute(d(2026, time.January, 16), nil, start, end)

	assert.Equal(t, 31, r.TotalDays)
	assert.Equal(t, 16, r.DaysPayable)
	assert.False(t, r.Full())
	assert.Equal(t, "0.5161", r.Factor.StringFixed(4))
}

func TestJoinerOnFirstWorkingDay(t *testing.T) {
	// Feb 2026 starts on a Sunday; Monday Feb 2 is the first working day.
	// Joining Feb 2 must not prorate.
	start, end := d(2026, time.February, 1), d(2026, time.February, 28)
	r := Compute(d(2026, time.February, 2), nil, start, end)

	assert.True(t, r.Full())
	assert.Equal(t, "1", r.Factor.String())
}

func TestJoinerAfterFirstWorkingDay(t *testing.T) {
	start, end := d(2026, time.February, 1), d(2026, time.February, 28)
	r := Compute(d(2026, time.February, 3), nil, start, end)

	assert.Equal(t, 26, r.DaysPayable)
	assert.Equal(t, 28, r.TotalDays)
	assert.False(t, r.Full())
}

func TestMidMonthExit(t *testing.T) {
	start, end := d(2026, time.January, 1), d(2026, time.January, 31)
	exit := d(2026, time.January, 10)
	r := Compute(d(2020, time.June, 1), &exit, start, end)

	assert.Equal(t, 10, r.DaysPayable)
	assert.Equal(t, "0.3226", r.Factor.StringFixed(4))
}

func TestExitBeforeJoin(t *testing.T) {
	// Degenerate window clamps to zero payable days.
	start, end := d(2026, time.January, 1), d(2026, time.January, 31)
	exit := d(2026, time.January, 5)
	r := Compute(d(2026, time.January, 20), &exit, start, end)

	assert.Equal(t, 0, r.DaysPayable)
	assert.True(t, r.Factor.IsZero())
}

func TestFactorBounds(t *testing.T) {
	start, end := d(2026, time.March, 1), d(2026, time.March, 31)
	one := decimal.NewFromInt(1)
	for day := 1; day <= 31; day++ {
		r := Compute(d(2026, time.March, day), nil, start, end)
		assert.True(t, r.Factor.GreaterThanOrEqual(decimal.Zero), "day %d", day)
		assert.True(t, r.Factor.LessThanOrEqual(one), "day %d", day)
		assert.Equal(t, r.Full(), r.Factor.Equal(one), "day %d", day)
	}
}
