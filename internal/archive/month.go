package archive

import (
	"fmt"
	"time"
)

const monthLayout = "2006-01"

// MonthKey formats t as a partition key (YYYY-MM) in t's location.
func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}

// ParseMonthKey parses a YYYY-MM key into the first instant of that month, UTC.
func ParseMonthKey(key string) (time.Time, error) {
	t, err := time.Parse(monthLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	return t, nil
}

// MonthsBetween is the calendar-month difference to - from (year*12 + month),
// ignoring days entirely.
func MonthsBetween(from, to time.Time) int {
	return monthIndex(to) - monthIndex(from)
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month())
}
