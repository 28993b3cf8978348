// Package proration computes the days-payable factor for mid-period
// joiners and exiters. Calendar days count as paid days; the factor is
// quantised to 4 decimal places.
package proration

import (
	"time"

	"github.com/shopspring/decimal"
)

// Result carries the proration outcome for one employee and period.
type Result struct {
	Factor      decimal.Decimal
	DaysPayable int
	TotalDays   int
}

// Full reports whether no proration applies.
func (r Result) Full() bool { return r.DaysPayable >= r.TotalDays }

// Apply prorates an amount at full precision. Factor is the 4dp
// persisted summary of the same ratio; money math uses the exact
// days ratio and rounds only at the persistence boundary.
func (r Result) Apply(amount decimal.Decimal) decimal.Decimal {
	if r.Full() {
		return amount
	}
	return amount.
		Mul(decimal.NewFromInt(int64(r.DaysPayable))).
		Div(decimal.NewFromInt(int64(r.TotalDays)))
}

// Compute derives the proration factor for an employee joining on
// dateOfJoining (and optionally exiting on dateOfExit) within the
// period [start, end].
//
// A joiner whose date of joining is on or before the first weekday of
// the period is treated as present for the whole period: payroll does
// not dock pay for a month that opens on a weekend.
func Compute(dateOfJoining time.Time, dateOfExit *time.Time, start, end time.Time) Result {
	totalDays := daysInclusive(start, end)

	effectiveStart := start
	if dateOfJoining.After(start) {
		fwd := firstWorkingDay(start)
		if dateOfJoining.After(fwd) {
			effectiveStart = dateOfJoining
		}
	}

	effectiveEnd := end
	if dateOfExit != nil && dateOfExit.Before(end) {
		effectiveEnd = *dateOfExit
	}

	daysPayable := daysInclusive(effectiveStart, effectiveEnd)
	if daysPayable < 0 {
		daysPayable = 0
	}

	if daysPayable >= totalDays {
		return Result{Factor: decimal.NewFromInt(1), DaysPayable: daysPayable, TotalDays: totalDays}
	}

	factor := decimal.NewFromInt(int64(daysPayable)).
		Div(decimal.NewFromInt(int64(totalDays))).
		Round(4)
	return Result{Factor: factor, DaysPayable: daysPayable, TotalDays: totalDays}
}

func daysInclusive(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours()/24) + 1
}

// firstWorkingDay returns the first Monday-Friday on or after d.
func firstWorkingDay(d time.Time) time.Time {
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
