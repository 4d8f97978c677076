package core

import (
	"fmt"
	"time"
)

// FireMarker is the run marker a successful fire advances: a period key for
// period-based cadences, or the fire timestamp for one-shot cadences.
// Exactly one of the two fields is set.
type FireMarker struct {
	Period *PeriodKey
	At     *time.Time
}

// IsDue reports whether the automation is eligible to fire at now: the
// current period is not yet consumed by the last-run marker and the cadence's
// trigger boundary within that period has been reached.
func IsDue(a *Automation, now time.Time) (bool, error) {
	c := a.Cadence
	if err := c.Validate(); err != nil {
		return false, fmt.Errorf("invalid %s cadence: %w", c.Kind(), err)
	}
	switch v := c.(type) {
	case DayOfMonth:
		return dueThisMonth(a.LastRunPeriod, now, v.Day), nil
	case Quarterly:
		return dueInMonthSet(a.LastRunPeriod, now, v.Months, v.Day), nil
	case HalfYearly:
		return dueInMonthSet(a.LastRunPeriod, now, v.Months, v.Day), nil
	case Yearly:
		if a.LastRunPeriod != nil && a.LastRunPeriod.Year == now.Year() {
			return false, nil
		}
		trigger := monthDay(now.Year(), v.Month, v.Day, now.Location())
		return !now.Before(trigger), nil
	case OneShot:
		return a.LastRunAt == nil && !now.Before(v.At), nil
	default:
		return false, fmt.Errorf("unknown cadence kind %q", c.Kind())
	}
}

func dueThisMonth(lastRun *PeriodKey, now time.Time, day int) bool {
	current := PeriodKey{Year: now.Year(), Month: now.Month()}
	if lastRun != nil && lastRun.Equal(current) {
		return false
	}
	trigger := clampedDay(now, day)
	return now.Day() >= trigger
}

func dueInMonthSet(lastRun *PeriodKey, now time.Time, months []time.Month, day int) bool {
	listed := false
	for _, m := range months {
		if m == now.Month() {
			listed = true
			break
		}
	}
	if !listed {
		return false
	}
	return dueThisMonth(lastRun, now, day)
}

// MarkRun computes the marker a fire at now must record. It is the only
// source of marker values; the store applies it atomically together with the
// generated tasks.
func MarkRun(c Cadence, now time.Time) FireMarker {
	switch c.(type) {
	case Yearly:
		return FireMarker{Period: &PeriodKey{Year: now.Year()}}
	case OneShot:
		at := now.UTC()
		return FireMarker{At: &at}
	default:
		return FireMarker{Period: &PeriodKey{Year: now.Year(), Month: now.Month()}}
	}
}

// clampedDay returns the trigger day for now's month, clamped to its last
// valid day so that day 31 still triggers in 30-day months.
func clampedDay(now time.Time, day int) int {
	if last := daysIn(now.Year(), now.Month()); day > last {
		return last
	}
	return day
}
