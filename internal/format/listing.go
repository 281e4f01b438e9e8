package format

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"ledger/internal/period"
)

const (
	nameWidth  = 20
	valueWidth = 10
	dateWidth  = 12
	idWidth    = 5
)

// row is one displayed line item. Recurring occurrences share the eid of
// their template.
type row struct {
	eid      int
	name     string
	value    decimal.Decimal
	date     string
	category string
}

type group struct {
	name  string
	total decimal.Decimal
	rows  []row
}

// Listing renders a period listing in two sections, Earnings and
// Expenses, with entries grouped by category. Values are shown without
// sign. An empty listing renders as an empty string.
func Listing(l period.Listing, opts Options) string {
	var earnings, expenses []row
	add := func(r row) {
		if r.value.IsNegative() {
			r.value = r.value.Neg()
			expenses = append(expenses, r)
		} else {
			earnings = append(earnings, r)
		}
	}
	for eid, e := range l.Standard {
		add(row{eid, e.Name, e.Value, e.Date, category(e.Category, opts.DefaultCategory)})
	}
	for _, occs := range l.Recurrent {
		for _, o := range occs {
			add(row{o.EID, o.Name, o.Value, o.Date, category(o.Category, opts.DefaultCategory)})
		}
	}
	if len(earnings) == 0 && len(expenses) == 0 {
		return ""
	}

	var b strings.Builder
	writeSection(&b, "Earnings", earnings, opts)
	b.WriteString("\n")
	writeSection(&b, "Expenses", expenses, opts)

	diff := sum(earnings).Sub(sum(expenses))
	fmt.Fprintf(&b, "\n%-*s%*s", nameWidth, "Difference", valueWidth, money(diff))
	return b.String()
}

func sum(rows []row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.value)
	}
	return total
}

func writeSection(b *strings.Builder, title string, rows []row, opts Options) {
	fmt.Fprintf(b, "%s\n", title)
	fmt.Fprintf(b, "%-*s%*s%*s%*s\n", nameWidth, "Name", valueWidth, "Value", dateWidth, "Date", idWidth, "ID")

	for _, g := range groupRows(rows, opts) {
		fmt.Fprintf(b, "%-*s%*s\n", nameWidth, truncate(g.name, nameWidth-1), valueWidth, money(g.total))
		for _, r := range g.rows {
			fmt.Fprintf(b, "  %-*s%*s%*s%*d\n", nameWidth-2, truncate(r.name, nameWidth-3),
				valueWidth, money(r.value), dateWidth, r.date, idWidth, r.eid)
		}
	}
	fmt.Fprintf(b, "%-*s%*s\n", nameWidth, "Total", valueWidth, money(sum(rows)))
}

func groupRows(rows []row, opts Options) []group {
	byName := map[string]*group{}
	var groups []*group
	for _, r := range rows {
		g, ok := byName[r.category]
		if !ok {
			g = &group{name: r.category, total: decimal.Zero}
			byName[r.category] = g
			groups = append(groups, g)
		}
		g.total = g.total.Add(r.value)
		g.rows = append(g.rows, r)
	}

	out := make([]group, 0, len(groups))
	for _, g := range groups {
		slices.SortStableFunc(g.rows, entryCompare(opts.EntrySort))
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b group) int {
		if opts.CategorySort == "value" {
			if c := a.total.Cmp(b.total); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.name, b.name)
	})
	return out
}

// entryCompare orders rows by key, breaking ties by date and eid so the
// output is stable across map iteration orders.
func entryCompare(key string) func(a, b row) int {
	return func(a, b row) int {
		var c int
		switch key {
		case "value":
			c = a.value.Cmp(b.value)
		case "date":
			c = cmp.Compare(a.date, b.date)
		case "eid":
			c = cmp.Compare(a.eid, b.eid)
		default:
			c = cmp.Compare(strings.ToLower(a.name), strings.ToLower(b.name))
		}
		if c != 0 {
			return c
		}
		return cmp.Or(cmp.Compare(a.date, b.date), cmp.Compare(a.eid, b.eid))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
