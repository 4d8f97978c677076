package core

import (
	"fmt"
	"sort"
	"time"
)

// CadenceKind discriminates the closed set of recurrence rules.
type CadenceKind string

const (
	KindDayOfMonth CadenceKind = "day_of_month"
	KindQuarterly  CadenceKind = "quarterly"
	KindHalfYearly CadenceKind = "half_yearly"
	KindYearly     CadenceKind = "yearly"
	KindOneShot    CadenceKind = "one_shot"
)

// Cadence is the closed set of recurrence rules an automation can carry.
// Implementations live in this package only; code that handles cadences
// type-switches over the concrete variants.
type Cadence interface {
	Kind() CadenceKind
	Validate() error

	isCadence()
}

// DayOfMonth fires once in the month containing Day.
type DayOfMonth struct {
	Day int
}

// Quarterly fires once per listed month, on Day of that month.
type Quarterly struct {
	Months []time.Month
	Day    int
}

// HalfYearly fires once per listed month, on Day of that month.
type HalfYearly struct {
	Months []time.Month
	Day    int
}

// Yearly fires once per calendar year, on (Month, Day).
type Yearly struct {
	Month time.Month
	Day   int
}

// OneShot fires exactly once at At, then is terminal.
type OneShot struct {
	At time.Time
}

func (DayOfMonth) Kind() CadenceKind { return KindDayOfMonth }
func (Quarterly) Kind() CadenceKind  { return KindQuarterly }
func (HalfYearly) Kind() CadenceKind { return KindHalfYearly }
func (Yearly) Kind() CadenceKind     { return KindYearly }
func (OneShot) Kind() CadenceKind    { return KindOneShot }

func (DayOfMonth) isCadence() {}
func (Quarterly) isCadence()  {}
func (HalfYearly) isCadence() {}
func (Yearly) isCadence()     {}
func (OneShot) isCadence()    {}

func (c DayOfMonth) Validate() error {
	return validateDay(c.Day)
}

func (c Quarterly) Validate() error {
	return validateMonthSet(c.Months, c.Day)
}

func (c HalfYearly) Validate() error {
	return validateMonthSet(c.Months, c.Day)
}

func (c Yearly) Validate() error {
	if c.Month < time.January || c.Month > time.December {
		return fmt.Errorf("month %d out of range", c.Month)
	}
	return validateDay(c.Day)
}

func (c OneShot) Validate() error {
	if c.At.IsZero() {
		return fmt.Errorf("one-shot instant is not set")
	}
	return nil
}

func validateDay(day int) error {
	if day < 1 || day > 31 {
		return fmt.Errorf("day %d out of range 1..31", day)
	}
	return nil
}

func validateMonthSet(months []time.Month, day int) error {
	if len(months) == 0 {
		return fmt.Errorf("month set is empty")
	}
	seen := make(map[time.Month]bool, len(months))
	for _, m := range months {
		if m < time.January || m > time.December {
			return fmt.Errorf("month %d out of range", m)
		}
		if seen[m] {
			return fmt.Errorf("month %s listed twice", m)
		}
		seen[m] = true
	}
	return validateDay(day)
}

// Cadence status labels.
const (
	StatusPendingThisMonth  = "pending this month"
	StatusPendingNextMonth  = "pending next month"
	StatusPendingThisYear   = "pending this year"
	StatusCompletedThisYear = "completed this year"
	StatusScheduled         = "scheduled"
	StatusCompleted         = "completed"
	StatusExpired           = "expired"
)

// Resolution is the outcome of resolving a cadence against a reference
// instant: the upcoming fire boundary, the period key the run guard checks
// against the last-run marker, and a human-readable status label.
type Resolution struct {
	NextRun time.Time
	Period  PeriodKey
	Status  string
}

// Resolve computes the next due instant, the current period key, and a status
// label for the cadence at the reference instant now. It is pure: repeated
// calls with the same inputs yield the same result, and nothing is mutated.
// lastRun is the automation's period marker (nil if never run); lastRunAt is
// the one-shot fire timestamp (nil if never fired).
func Resolve(c Cadence, now time.Time, lastRun *PeriodKey, lastRunAt *time.Time) (Resolution, error) {
	if err := c.Validate(); err != nil {
		return Resolution{}, fmt.Errorf("invalid %s cadence: %w", c.Kind(), err)
	}
	switch v := c.(type) {
	case DayOfMonth:
		return resolveDayOfMonth(v, now), nil
	case Quarterly:
		return resolveMonthSet(v.Months, v.Day, now), nil
	case HalfYearly:
		return resolveMonthSet(v.Months, v.Day, now), nil
	case Yearly:
		return resolveYearly(v, now, lastRun), nil
	case OneShot:
		return resolveOneShot(v, now, lastRunAt), nil
	default:
		return Resolution{}, fmt.Errorf("unknown cadence kind %q", c.Kind())
	}
}

func resolveDayOfMonth(c DayOfMonth, now time.Time) Resolution {
	res := Resolution{
		Period: PeriodKey{Year: now.Year(), Month: now.Month()},
	}
	if now.Day() >= c.Day {
		// This month's trigger day has passed or is today; the upcoming
		// boundary is next month, but the run guard still checks the
		// current month's key against the marker.
		res.NextRun = monthDay(now.Year(), now.Month()+1, c.Day, now.Location())
		res.Status = StatusPendingNextMonth
	} else {
		res.NextRun = monthDay(now.Year(), now.Month(), c.Day, now.Location())
		res.Status = StatusPendingThisMonth
	}
	return res
}

func resolveMonthSet(months []time.Month, day int, now time.Time) Resolution {
	sorted := append([]time.Month(nil), months...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	// The upcoming boundary is the first listed month strictly after the
	// current one; once the current month's slot is reached the next
	// boundary lies in a later month (or wraps into next year).
	var next time.Time
	found := false
	for _, m := range sorted {
		if m > now.Month() {
			next = monthDay(now.Year(), m, day, now.Location())
			found = true
			break
		}
	}
	if !found {
		next = monthDay(now.Year()+1, sorted[0], day, now.Location())
	}
	return Resolution{
		NextRun: next,
		Period:  PeriodKey{Year: now.Year(), Month: now.Month()},
		Status:  fmt.Sprintf("pending %s %d", next.Month(), next.Year()),
	}
}

func resolveYearly(c Yearly, now time.Time, lastRun *PeriodKey) Resolution {
	res := Resolution{
		Period: PeriodKey{Year: now.Year()},
	}
	if lastRun != nil && lastRun.Year == now.Year() {
		res.NextRun = monthDay(now.Year()+1, c.Month, c.Day, now.Location())
		res.Status = StatusCompletedThisYear
	} else {
		res.NextRun = monthDay(now.Year(), c.Month, c.Day, now.Location())
		res.Status = StatusPendingThisYear
	}
	return res
}

func resolveOneShot(c OneShot, now time.Time, lastRunAt *time.Time) Resolution {
	res := Resolution{NextRun: c.At}
	switch {
	case c.At.After(now):
		res.Status = StatusScheduled
	case lastRunAt != nil:
		res.Status = StatusCompleted
	default:
		res.Status = StatusExpired
	}
	return res
}

// monthDay builds midnight of (year, month, day) in loc, clamping day to the
// last valid day of the target month (day 31 in a 30-day month resolves to
// the 30th, not an overflow into the next month). month may be 13 to mean
// January of year+1.
func monthDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	if month > time.December {
		month -= 12
		year++
	}
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// daysIn returns the number of days in (year, month).
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
