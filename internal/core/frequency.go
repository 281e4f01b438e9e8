package core

import (
	"strings"
	"time"
)

// Frequency is the recurrence step of a recurring template.
type Frequency string

const (
	Daily      Frequency = "daily"
	Weekly     Frequency = "weekly"
	Monthly    Frequency = "monthly"
	Quarterly  Frequency = "quarterly"
	HalfYearly Frequency = "half-yearly"
	Yearly     Frequency = "yearly"
)

// Stepper computes the k-th occurrence date counted from start.
// Implementations must return strictly increasing dates for increasing k.
type Stepper interface {
	Step(start time.Time, k int) time.Time
}

// DayStepper advances by a fixed number of days.
type DayStepper struct{ Days int }

func (s DayStepper) Step(start time.Time, k int) time.Time {
	return start.AddDate(0, 0, k*s.Days)
}

// MonthStepper advances by a fixed number of months, clamping the day of
// month to the target month's last day (Jan 31 -> Feb 28 -> Mar 31).
type MonthStepper struct{ Months int }

func (s MonthStepper) Step(start time.Time, k int) time.Time {
	first := time.Date(start.Year(), start.Month()+time.Month(k*s.Months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := start.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// steppers maps each frequency to its stepping strategy.
var steppers = map[Frequency]Stepper{
	Daily:      DayStepper{Days: 1},
	Weekly:     DayStepper{Days: 7},
	Monthly:    MonthStepper{Months: 1},
	Quarterly:  MonthStepper{Months: 3},
	HalfYearly: MonthStepper{Months: 6},
	Yearly:     MonthStepper{Months: 12},
}

var frequencyAliases = map[string]Frequency{
	"quarter-yearly": Quarterly,
}

// ParseFrequency resolves user input case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if alias, ok := frequencyAliases[string(f)]; ok {
		f = alias
	}
	if _, ok := steppers[f]; !ok {
		return "", Validationf("unknown frequency %q", s)
	}
	return f, nil
}

// Stepper returns the strategy for f.
func (f Frequency) Stepper() (Stepper, error) {
	s, ok := steppers[f]
	if !ok {
		return nil, Validationf("unknown frequency %q", string(f))
	}
	return s, nil
}
