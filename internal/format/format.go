// Package format renders command responses as terminal text.
package format

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ledger/internal/core"
	"ledger/internal/server"
)

// Sort keys accepted by Options.
var (
	EntrySortKeys    = []string{"name", "value", "date", "eid"}
	CategorySortKeys = []string{"name", "value"}
)

// Options control how responses are rendered.
type Options struct {
	// DefaultCategory is shown for entries without a category.
	DefaultCategory string
	EntrySort       string
	CategorySort    string
}

func DefaultOptions() Options {
	return Options{DefaultCategory: core.DefaultCategory, EntrySort: "name", CategorySort: "name"}
}

// Validate checks the sort keys.
func (o Options) Validate() error {
	if o.EntrySort != "" && !slices.Contains(EntrySortKeys, o.EntrySort) {
		return fmt.Errorf("invalid entry sort %q: must be one of %v", o.EntrySort, EntrySortKeys)
	}
	if o.CategorySort != "" && !slices.Contains(CategorySortKeys, o.CategorySort) {
		return fmt.Errorf("invalid category sort %q: must be one of %v", o.CategorySort, CategorySortKeys)
	}
	return nil
}

var verbs = map[server.Command]string{
	server.CmdAdd:    "Added",
	server.CmdUpdate: "Updated",
	server.CmdRemove: "Removed",
	server.CmdCopy:   "Copied",
}

// Response renders whichever field of resp is set.
func Response(cmd server.Command, resp server.Response, opts Options) string {
	switch {
	case resp.ID != 0:
		verb, ok := verbs[cmd]
		if !ok {
			verb = "Processed"
		}
		return fmt.Sprintf("%s element %d.", verb, resp.ID)
	case resp.Element != nil:
		return Element(*resp.Element, opts.DefaultCategory)
	case resp.Elements != nil:
		return Listing(*resp.Elements, opts)
	case resp.Error != "":
		return resp.Error
	default:
		return strings.Join(resp.Periods, "\n")
	}
}

// Error renders err as a single line.
func Error(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	switch core.CodeOf(err) {
	case core.CodeInvalidRequest, core.CodeValidation:
		return "Invalid request: " + msg
	case core.CodeNotFound:
		return "Not found: " + msg
	case core.CodeInternal:
		return "Unexpected error: " + msg
	}
	return upperFirst(msg)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func title(s string) string {
	return cases.Title(language.Und).String(s)
}

func category(c, fallback string) string {
	if c == "" {
		c = fallback
	}
	return title(c)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Element renders one entry as aligned "Field : value" lines, category last.
func Element(e core.Entry, defaultCategory string) string {
	type line struct{ key, value string }
	lines := []line{{"Name", e.Name}, {"Value", money(e.Value)}}
	if e.Frequency != "" {
		lines = append(lines,
			line{"Frequency", title(string(e.Frequency))},
			line{"Start", e.Start},
			line{"End", e.End})
	} else {
		lines = append(lines, line{"Date", e.Date})
	}
	lines = append(lines, line{"Category", category(e.Category, defaultCategory)})

	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-9s: %s", l.key, l.value)
	}
	return b.String()
}
