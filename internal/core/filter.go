package core

import (
	"sort"
	"strings"
)

// Filters restricts list results. Empty fields do not constrain.
// NoCategory selects entries whose category was never set.
type Filters struct {
	Name       string
	Date       string
	Category   string
	NoCategory bool
}

// ParseFilters converts the wire form into Filters. Unknown keys are
// rejected. A category equal to the sentinel selects unset categories.
func ParseFilters(m map[string]string) (Filters, error) {
	var f Filters
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.ToLower(strings.TrimSpace(m[k]))
		switch strings.ToLower(k) {
		case "name":
			f.Name = v
		case "date":
			f.Date = v
		case "category":
			if v == DefaultCategory {
				f.NoCategory = true
			} else {
				f.Category = v
			}
		default:
			return Filters{}, InvalidRequestf("invalid filter key %q", k)
		}
	}
	return f, nil
}

// Map is the inverse of ParseFilters and yields the canonical wire form.
func (f Filters) Map() map[string]string {
	m := map[string]string{}
	if f.Name != "" {
		m["name"] = f.Name
	}
	if f.Date != "" {
		m["date"] = f.Date
	}
	if f.NoCategory {
		m["category"] = DefaultCategory
	} else if f.Category != "" {
		m["category"] = f.Category
	}
	return m
}

// matchAttrs applies the name and category constraints.
func (f Filters) matchAttrs(name, category string) bool {
	if f.Name != "" && !containsFold(name, f.Name) {
		return false
	}
	if f.NoCategory {
		return category == ""
	}
	if f.Category != "" && !containsFold(category, f.Category) {
		return false
	}
	return true
}

// MatchEntry reports whether a standard entry passes the filters.
func (f Filters) MatchEntry(e Entry) bool {
	if !f.matchAttrs(e.Name, e.Category) {
		return false
	}
	return f.Date == "" || containsFold(e.Date, f.Date)
}

// MatchOccurrence reports whether an occurrence passes the filters.
func (f Filters) MatchOccurrence(o Occurrence) bool {
	if !f.matchAttrs(o.Name, o.Category) {
		return false
	}
	return f.Date == "" || containsFold(o.Date, f.Date)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
