package core

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical storage layout for dates.
const DateLayout = "2006-01-02"

// shortLayout is accepted on input and resolved against the calendar year.
const shortLayout = "01-02"

// Calendar resolves partial dates and defaults for one period.
type Calendar struct {
	Year  int
	Today time.Time
}

// CalendarFor returns the calendar of the named period. Periods named
// after a year use that year; any other name uses the year of now.
func CalendarFor(period string, now time.Time) Calendar {
	year := now.Year()
	if y, err := strconv.Atoi(strings.TrimSpace(period)); err == nil && y >= 1 && y <= 9999 {
		year = y
	}
	return Calendar{Year: year, Today: now}
}

// DefaultPeriodName is the period used when a request names none.
func DefaultPeriodName(now time.Time) string {
	return strconv.Itoa(now.Year())
}

// ParseDate accepts YYYY-MM-DD or MM-DD and returns the canonical form.
func (c Calendar) ParseDate(s string) (string, error) {
	t, err := c.parse(s)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

func (c Calendar) parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	// MM-DD is parsed with the year attached so that 02-29 resolves in leap years.
	if len(s) == len(shortLayout) {
		if t, err := time.Parse(DateLayout, padYear(strconv.Itoa(c.Year)+"-"+s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, Validationf("invalid date %q", s)
}

// padYear makes years below 1000 parseable with the four-digit layout.
func padYear(s string) string {
	i := strings.IndexByte(s, '-')
	if i < 0 || i >= 4 {
		return s
	}
	return strings.Repeat("0", 4-i) + s
}

// TodayString returns the submission month and day in the calendar year,
// so entries added to a past period default into that period. A leap day
// becomes 02-28 in common years.
func (c Calendar) TodayString() string {
	month, day := c.Today.Month(), c.Today.Day()
	if month == time.February && day == 29 && !isLeap(c.Year) {
		day = 28
	}
	return time.Date(c.Year, month, day, 0, 0, 0, 0, time.UTC).Format(DateLayout)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// FirstDay and LastDay bound the calendar year in canonical form.
func (c Calendar) FirstDay() string {
	return time.Date(c.Year, time.January, 1, 0, 0, 0, 0, time.UTC).Format(DateLayout)
}

func (c Calendar) LastDay() string {
	return time.Date(c.Year, time.December, 31, 0, 0, 0, 0, time.UTC).Format(DateLayout)
}

func parseCanonical(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, Validationf("invalid date %q", s)
	}
	return t, nil
}

func mustParse(s string) time.Time {
	t, _ := time.Parse(DateLayout, s)
	return t
}
