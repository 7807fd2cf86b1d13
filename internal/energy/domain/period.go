package energy

import (
	"strings"
	"time"
)

// DefaultCollectionKey is used when a card does not name a collection.
const DefaultCollectionKey = "_energy"

const customKeyPrefix = "energy_"

// CollectionKey resolves a configured collection key to its internal name.
// Empty selects the shared default collection.
func CollectionKey(configured string) (string, error) {
	if configured == "" {
		return DefaultCollectionKey, nil
	}
	if !strings.HasPrefix(configured, customKeyPrefix) {
		return "", ErrInvalidCollectionKey
	}
	return "_" + configured, nil
}

// StartOfDay returns local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last millisecond of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// DefaultWindow is today, or yesterday during the first hour of the day when
// today has no hourly statistics yet.
func DefaultWindow(now time.Time) (time.Time, time.Time) {
	if now.Hour() > 0 {
		return StartOfDay(now), EndOfDay(now)
	}
	yesterday := now.AddDate(0, 0, -1)
	return StartOfDay(yesterday), EndOfDay(yesterday)
}

// IsToday reports whether start/end is exactly the today window.
func IsToday(start, end, now time.Time) bool {
	return start.Equal(StartOfDay(now)) && end.Equal(EndOfDay(now))
}

// DifferenceInDays counts full calendar days between earlier and later in
// later's location. A day spanning a DST change still counts as one day.
func DifferenceInDays(later, earlier time.Time) int {
	if later.Before(earlier) {
		return -DifferenceInDays(earlier, later)
	}
	earlier = earlier.In(later.Location())
	days := calendarDays(StartOfDay(later), StartOfDay(earlier))
	if days > 0 && earlier.AddDate(0, 0, days).After(later) {
		days--
	}
	return days
}

func calendarDays(later, earlier time.Time) int {
	a := time.Date(later.Year(), later.Month(), later.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(earlier.Year(), earlier.Month(), earlier.Day(), 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b) / (24 * time.Hour))
}

// PeriodFor picks the aggregation period for a window of the given length.
func PeriodFor(days int) Period {
	switch {
	case days > 35:
		return PeriodMonth
	case days > 2:
		return PeriodDay
	default:
		return PeriodHour
	}
}

// CompareWindow returns the window preceding start used for comparison.
// A month-sized window compares with the previous month.
func CompareWindow(start time.Time, days int) (time.Time, time.Time) {
	var compareStart time.Time
	if days > 27 && days < 32 {
		compareStart = start.AddDate(0, -1, 0)
	} else {
		compareStart = start.AddDate(0, 0, -(days + 1))
	}
	return compareStart, start.Add(-time.Millisecond)
}

// NextRefresh returns the next time the hourly statistics are ready: 20
// minutes past the hour.
func NextRefresh(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 20, 0, 0, now.Location())
	if now.Minute() >= 20 {
		next = next.Add(time.Hour)
	}
	return next
}

// NextRollover returns when a today window moves to the next day: one hour
// after the day ends.
func NextRollover(now time.Time) time.Time {
	return EndOfDay(now).Add(time.Hour)
}
