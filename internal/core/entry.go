package core

import (
	"iter"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TableName tags which entry variant a table holds.
type TableName string

const (
	Standard  TableName = "standard"
	Recurrent TableName = "recurrent"
)

// ParseTableName resolves a table name; empty means Standard.
func ParseTableName(s string) (TableName, error) {
	switch t := TableName(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return Standard, nil
	case Standard, Recurrent:
		return t, nil
	default:
		return "", InvalidRequestf("unknown table %q", s)
	}
}

// DefaultCategory is the sentinel meaning "no category set".
const DefaultCategory = "unspecified"

// Entry is a stored record of either table. Standard entries carry Date;
// recurring templates carry Frequency, Start and End.
type Entry struct {
	EID       int             `json:"eid"`
	Name      string          `json:"name"`
	Value     decimal.Decimal `json:"value"`
	Category  string          `json:"category"`
	Date      string          `json:"date,omitempty"`
	Frequency Frequency       `json:"frequency,omitempty"`
	Start     string          `json:"start,omitempty"`
	End       string          `json:"end,omitempty"`
}

// Occurrence is one materialized instance of a recurring template.
type Occurrence struct {
	EID      int             `json:"eid"`
	Name     string          `json:"name"`
	Value    decimal.Decimal `json:"value"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
}

// Fields carries the optional attributes of an add or update request.
// A nil field is left unset (add) or unchanged (update).
type Fields struct {
	Name      *string
	Value     *decimal.Decimal
	Category  *string
	Date      *string
	Frequency *string
	Start     *string
	End       *string
}

// NewEntry builds and validates a new entry for the given table.
func NewEntry(table TableName, f Fields, cal Calendar) (Entry, error) {
	if f.Name == nil {
		return Entry{}, Validationf("name is required")
	}
	if f.Value == nil {
		return Entry{}, Validationf("value is required")
	}
	var e Entry
	switch table {
	case Standard:
		e.Date = cal.TodayString()
	case Recurrent:
		if f.Frequency == nil {
			return Entry{}, Validationf("frequency is required for recurrent entries")
		}
		e.Start = cal.FirstDay()
		e.End = cal.LastDay()
	}
	return e.Merge(table, f, cal)
}

// Merge returns a copy of e with the non-nil fields of f applied, then
// normalized and validated.
func (e Entry) Merge(table TableName, f Fields, cal Calendar) (Entry, error) {
	if err := checkApplicable(table, f); err != nil {
		return Entry{}, err
	}
	if f.Name != nil {
		e.Name = *f.Name
	}
	if f.Value != nil {
		e.Value = *f.Value
	}
	if f.Category != nil {
		e.Category = *f.Category
	}
	var err error
	if f.Date != nil {
		if e.Date, err = cal.ParseDate(*f.Date); err != nil {
			return Entry{}, err
		}
	}
	if f.Frequency != nil {
		if e.Frequency, err = ParseFrequency(*f.Frequency); err != nil {
			return Entry{}, err
		}
	}
	if f.Start != nil {
		if e.Start, err = cal.ParseDate(*f.Start); err != nil {
			return Entry{}, err
		}
	}
	if f.End != nil {
		if e.End, err = cal.ParseDate(*f.End); err != nil {
			return Entry{}, err
		}
	}
	e.normalize()
	if err := e.Validate(table); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func checkApplicable(table TableName, f Fields) error {
	switch table {
	case Standard:
		if f.Frequency != nil || f.Start != nil || f.End != nil {
			return Validationf("frequency, start and end apply to recurrent entries only")
		}
	case Recurrent:
		if f.Date != nil {
			return Validationf("date applies to standard entries only")
		}
	}
	return nil
}

func (e *Entry) normalize() {
	e.Name = titleCase(e.Name)
	e.Category = NormalizeCategory(e.Category)
}

// NormalizeCategory title-cases a category and maps the sentinel to "".
func NormalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	if strings.EqualFold(c, DefaultCategory) {
		return ""
	}
	return titleCase(c)
}

func titleCase(s string) string {
	// Casers are stateful; build one per call.
	return cases.Title(language.Und).String(strings.TrimSpace(s))
}

// Validate checks the fields relevant to the table's variant.
func (e Entry) Validate(table TableName) error {
	if strings.TrimSpace(e.Name) == "" {
		return Validationf("name must not be empty")
	}
	switch table {
	case Standard:
		if e.Date == "" {
			return Validationf("date is required")
		}
		if _, err := parseCanonical(e.Date); err != nil {
			return err
		}
		if e.Frequency != "" || e.Start != "" || e.End != "" {
			return Validationf("standard entries have no recurrence")
		}
	case Recurrent:
		if _, err := e.Frequency.Stepper(); err != nil {
			return err
		}
		if e.Date != "" {
			return Validationf("recurrent entries have no date")
		}
		start, err := parseCanonical(e.Start)
		if err != nil {
			return err
		}
		end, err := parseCanonical(e.End)
		if err != nil {
			return err
		}
		if start.After(end) {
			return Validationf("start %s is after end %s", e.Start, e.End)
		}
	default:
		return InvalidRequestf("unknown table %q", string(table))
	}
	return nil
}

// Occurrences yields the template's instances from Start through End.
// The sequence is lazy and can be ranged over any number of times.
func (e Entry) Occurrences() iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		stepper, err := e.Frequency.Stepper()
		if err != nil {
			return
		}
		start, end := mustParse(e.Start), mustParse(e.End)
		if start.IsZero() || end.IsZero() {
			return
		}
		for k := 0; ; k++ {
			d := stepper.Step(start, k)
			if d.After(end) {
				return
			}
			occ := Occurrence{
				EID:      e.EID,
				Name:     e.Name,
				Value:    e.Value,
				Category: e.Category,
				Date:     d.Format(DateLayout),
			}
			if !yield(occ) {
				return
			}
		}
	}
}
