package domain

import (
	"fmt"
	"time"

	"github.com/kevin07696/funding-service/pkg/timeutil"
)

// Frequency is the cadence of a recurring investment
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// IsValid reports whether f is a supported frequency
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// ComputeNextChargeDate returns the charge date that follows from.
// Month-based frequencies clamp to the last day of the target month, so
// Jan 31 + 1 month is Feb 28/29 rather than early March.
func ComputeNextChargeDate(frequency Frequency, from time.Time) (time.Time, error) {
	return NextChargeDateOnDay(frequency, from, from.Day())
}

// NextChargeDateOnDay is ComputeNextChargeDate for a plan billed on
// anchorDay of the month. A plan started on the 31st returns to the 31st
// after a short month instead of staying on the clamped day. Weekly plans
// ignore the anchor; a non-positive anchor means the day of from.
func NextChargeDateOnDay(frequency Frequency, from time.Time, anchorDay int) (time.Time, error) {
	if anchorDay <= 0 {
		anchorDay = from.Day()
	}
	var next time.Time
	switch frequency {
	case FrequencyWeekly:
		next = from.AddDate(0, 0, 7)
	case FrequencyMonthly:
		next = addMonthsClamped(from, 1, anchorDay)
	case FrequencyQuarterly:
		next = addMonthsClamped(from, 3, anchorDay)
	case FrequencyYearly:
		next = addMonthsClamped(from, 12, anchorDay)
	default:
		return time.Time{}, NewValidationError("frequency", fmt.Sprintf("unsupported frequency %q", frequency))
	}
	return timeutil.ToUTC(next), nil
}

func addMonthsClamped(t time.Time, months, day int) time.Time {
	year, month, _ := t.Date()
	hour, minute, sec := t.Clock()

	firstOfTarget := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := daysIn(firstOfTarget.Year(), firstOfTarget.Month(), t.Location())
	if day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
