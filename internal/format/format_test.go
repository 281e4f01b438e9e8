package format

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/period"
	"ledger/internal/server"
)

func TestResponse_IDVerbs(t *testing.T) {
	tests := []struct {
		cmd  server.Command
		want string
	}{
		{server.CmdAdd, "Added element 3."},
		{server.CmdUpdate, "Updated element 3."},
		{server.CmdRemove, "Removed element 3."},
		{server.CmdCopy, "Copied element 3."},
	}
	for _, tt := range tests {
		if got := Response(tt.cmd, server.Response{ID: 3}, DefaultOptions()); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestResponse_Periods(t *testing.T) {
	got := Response(server.CmdPeriods, server.Response{Periods: []string{"2019", "2020"}}, DefaultOptions())
	if got != "2019\n2020" {
		t.Fatalf("got %q", got)
	}
	if got := Response(server.CmdPeriods, server.Response{Periods: []string{}}, DefaultOptions()); got != "" {
		t.Fatalf("empty periods rendered as %q", got)
	}
}

func TestElement(t *testing.T) {
	std := core.Entry{EID: 1, Name: "Pants", Value: decimal.NewFromInt(-99), Date: "2020-03-14"}
	got := Element(std, "unspecified")
	want := "Name     : Pants\nValue    : -99.00\nDate     : 2020-03-14\nCategory : Unspecified"
	if got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}

	rec := core.Entry{EID: 1, Name: "Rent", Value: decimal.NewFromInt(-500), Category: "Housing",
		Frequency: core.HalfYearly, Start: "2020-01-01", End: "2020-12-31"}
	got = Element(rec, "unspecified")
	for _, s := range []string{"Frequency: Half-Yearly", "Start    : 2020-01-01", "End      : 2020-12-31"} {
		if !strings.Contains(got, s) {
			t.Errorf("missing %q in\n%s", s, got)
		}
	}
	lines := strings.Split(got, "\n")
	if f := strings.Fields(lines[len(lines)-1]); f[0] != "Category" || f[2] != "Housing" {
		t.Errorf("category must be the last line: %q", lines[len(lines)-1])
	}
}

func sampleListing() period.Listing {
	return period.Listing{
		Standard: map[int]core.Entry{
			1: {EID: 1, Name: "Salary", Value: decimal.NewFromInt(1000), Date: "2020-03-01", Category: "Work"},
			2: {EID: 2, Name: "Pants", Value: decimal.NewFromInt(-99), Date: "2020-03-14", Category: "Clothes"},
			3: {EID: 3, Name: "Bread", Value: decimal.RequireFromString("-2.5"), Date: "2020-03-02"},
			4: {EID: 4, Name: "Apples", Value: decimal.NewFromInt(-4), Date: "2020-03-03"},
		},
		Recurrent: map[int][]core.Occurrence{
			1: {
				{EID: 1, Name: "Rent, January", Value: decimal.NewFromInt(-500), Date: "2020-01-01", Category: "Housing"},
				{EID: 1, Name: "Rent, February", Value: decimal.NewFromInt(-500), Date: "2020-02-01", Category: "Housing"},
			},
		},
	}
}

func TestListing(t *testing.T) {
	out := Listing(sampleListing(), DefaultOptions())

	earn := strings.Index(out, "Earnings")
	exp := strings.Index(out, "Expenses")
	if earn < 0 || exp < earn {
		t.Fatalf("sections missing or out of order:\n%s", out)
	}
	if !strings.Contains(out[earn:exp], "Salary") || strings.Contains(out[earn:exp], "Pants") {
		t.Fatalf("entries in the wrong section:\n%s", out)
	}
	if strings.Contains(out, "-99.00") {
		t.Fatalf("values must be shown without sign:\n%s", out)
	}
	if strings.Count(out, "Rent, ") != 2 {
		t.Fatalf("recurring occurrences missing:\n%s", out)
	}
	// Unset categories fall under the default, with a total of 6.50.
	if !strings.Contains(out, "Unspecified") || !strings.Contains(out, "6.50") {
		t.Fatalf("default category group missing:\n%s", out)
	}
	// Categories sort by name: Clothes < Housing < Unspecified.
	c, h, u := strings.Index(out, "Clothes"), strings.Index(out, "Housing"), strings.Index(out, "Unspecified")
	if !(c < h && h < u) {
		t.Fatalf("categories out of order:\n%s", out)
	}
	// Entries sort by name inside a group.
	if strings.Index(out, "Apples") > strings.Index(out, "Bread") {
		t.Fatalf("entries out of order:\n%s", out)
	}
	if !strings.Contains(out, "-105.50") {
		t.Fatalf("difference missing:\n%s", out)
	}
}

func TestListing_SortOptions(t *testing.T) {
	opts := Options{DefaultCategory: "unspecified", EntrySort: "eid", CategorySort: "value"}
	out := Listing(sampleListing(), opts)
	// By value the smallest expense group (Unspecified, 6.50) comes first.
	if strings.Index(out, "Unspecified") > strings.Index(out, "Clothes") {
		t.Fatalf("category value sort not applied:\n%s", out)
	}
	if strings.Index(out, "Bread") > strings.Index(out, "Apples") {
		t.Fatalf("eid sort not applied:\n%s", out)
	}
}

func TestListing_Empty(t *testing.T) {
	if got := Listing(period.Listing{}, DefaultOptions()); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestOptions_Validate(t *testing.T) {
	if err := (Options{EntrySort: "size"}).Validate(); err == nil {
		t.Error("bad entry sort accepted")
	}
	if err := (Options{CategorySort: "date"}).Validate(); err == nil {
		t.Error("bad category sort accepted")
	}
	if err := DefaultOptions().Validate(); err != nil {
		t.Error(err)
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{core.NotFoundf("element not found"), "Not found: element not found"},
		{core.InvalidRequestf("name and value are required"), "Invalid request: name and value are required"},
		{core.NewError(core.CodeCommunication, "error sending request: refused"), "Error sending request: refused"},
		{errors.New("boom\nsecond line"), "Unexpected error: boom second line"},
	}
	for _, tt := range tests {
		if got := Error(tt.err); got != tt.want {
			t.Errorf("Error(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
