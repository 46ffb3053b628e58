package district

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var shortMonths = map[string]time.Month{
	"Jan": time.January,
	"Feb": time.February,
	"Mar": time.March,
	"Apr": time.April,
	"May": time.May,
	"Jun": time.June,
	"Jul": time.July,
	"Aug": time.August,
	"Sep": time.September,
	"Oct": time.October,
	"Nov": time.November,
	"Dec": time.December,
}

// SchoolYearStart returns the calendar year the school year containing now
// started in, school years start in July.
func SchoolYearStart(now time.Time) int {
	if now.Month() >= time.July {
		return now.Year()
	}
	return now.Year() - 1
}

// ParseGradeSpeedDate parses dates like "Jan-01". GradeSpeed only ever shows
// one school year so the year is inferred from now: July through December
// belong to the year the school year started in.
func ParseGradeSpeedDate(input string, now time.Time) (time.Time, error) {
	month, day, found := strings.Cut(strings.TrimSpace(input), "-")
	if !found {
		return time.Time{}, fmt.Errorf("invalid gradespeed date '%s'", input)
	}
	m, ok := shortMonths[month]
	if !ok {
		return time.Time{}, fmt.Errorf("invalid month in gradespeed date '%s'", input)
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day in gradespeed date '%s': %w", input, err)
	}

	year := SchoolYearStart(now)
	if m < time.July {
		year++
	}
	return time.Date(year, m, d, 0, 0, 0, 0, time.UTC), nil
}

// ParseSmallEndianDate parses dates like "3 September 2014".
func ParseSmallEndianDate(input string) (time.Time, error) {
	return time.Parse("2 January 2006", strings.TrimSpace(input))
}

// ParseMDYDate parses dates like "9/3/2014".
func ParseMDYDate(input string) (time.Time, error) {
	return time.Parse("1/2/2006", strings.TrimSpace(input))
}
