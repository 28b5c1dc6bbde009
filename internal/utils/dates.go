// internal/utils/dates.go
package utils

import (
	"fmt"
	"time"
)

const CalendarDateLayout = "2006-01-02"

// ParseCalendarDate accepts strict YYYY-MM-DD dates.
func ParseCalendarDate(value string) (time.Time, error) {
	if !datePattern.MatchString(value) {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return time.Parse(CalendarDateLayout, value)
}

func FormatCalendarDate(t time.Time) string {
	return t.Format(CalendarDateLayout)
}

// CalendarRange lists every date from..to inclusive. Ranges longer than
// maxDays are truncated.
func CalendarRange(from, to time.Time, maxDays int) []string {
	var days []string
	for d := from; !d.After(to) && len(days) < maxDays; d = d.AddDate(0, 0, 1) {
		days = append(days, FormatCalendarDate(d))
	}
	return days
}
