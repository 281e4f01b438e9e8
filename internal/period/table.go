// Package period implements tables of entries and the named periods that
// group them.
package period

import (
	"slices"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// Table is an ordered collection of entries of one variant. IDs are
// allocated from a counter that only grows, so removed IDs are never
// handed out again.
type Table struct {
	name    core.TableName
	lastID  int
	entries map[int]core.Entry
	order   []int
}

// Listing is the result of listing a period, one map per table.
type Listing struct {
	Standard  map[int]core.Entry        `json:"standard"`
	Recurrent map[int][]core.Occurrence `json:"recurrent"`
}

func newTable(name core.TableName) *Table {
	return &Table{name: name, entries: make(map[int]core.Entry)}
}

func tableFromData(name core.TableName, data storage.TableData) *Table {
	t := newTable(name)
	for eid, e := range data.Entries {
		e.EID = eid
		t.entries[eid] = e
		t.order = append(t.order, eid)
		t.lastID = max(t.lastID, eid)
	}
	// IDs grow monotonically, so ID order is insertion order.
	slices.Sort(t.order)
	t.lastID = max(t.lastID, data.LastID)
	return t
}

func (t *Table) data() storage.TableData {
	entries := make(map[int]core.Entry, len(t.entries))
	for eid, e := range t.entries {
		entries[eid] = e
	}
	return storage.TableData{LastID: t.lastID, Entries: entries}
}

// Name returns the table's variant tag.
func (t *Table) Name() core.TableName { return t.name }

// Len returns the number of stored entries.
func (t *Table) Len() int { return len(t.entries) }

// Add validates f and stores a new entry, returning its ID.
func (t *Table) Add(f core.Fields, cal core.Calendar) (int, error) {
	e, err := core.NewEntry(t.name, f, cal)
	if err != nil {
		return 0, err
	}
	return t.Insert(e), nil
}

// Insert stores an already valid entry under a fresh ID.
func (t *Table) Insert(e core.Entry) int {
	t.lastID++
	e.EID = t.lastID
	t.entries[e.EID] = e
	t.order = append(t.order, e.EID)
	return e.EID
}

// Get returns the entry with the given ID.
func (t *Table) Get(eid int) (core.Entry, error) {
	e, ok := t.entries[eid]
	if !ok {
		return core.Entry{}, core.NotFoundf("element not found")
	}
	return e, nil
}

// Update merges f into the entry. A failed validation leaves the entry as it was.
func (t *Table) Update(eid int, f core.Fields, cal core.Calendar) error {
	e, err := t.Get(eid)
	if err != nil {
		return err
	}
	updated, err := e.Merge(t.name, f, cal)
	if err != nil {
		return err
	}
	t.entries[eid] = updated
	return nil
}

// Remove deletes the entry and returns it.
func (t *Table) Remove(eid int) (core.Entry, error) {
	e, err := t.Get(eid)
	if err != nil {
		return core.Entry{}, err
	}
	delete(t.entries, eid)
	t.order = slices.DeleteFunc(t.order, func(id int) bool { return id == eid })
	return e, nil
}

// All returns the entries in insertion order.
func (t *Table) All() []core.Entry {
	out := make([]core.Entry, 0, len(t.order))
	for _, eid := range t.order {
		out = append(out, t.entries[eid])
	}
	return out
}

// ListEntries returns the matching entries of a standard table.
func (t *Table) ListEntries(f core.Filters) map[int]core.Entry {
	out := make(map[int]core.Entry)
	for _, e := range t.All() {
		if f.MatchEntry(e) {
			out[e.EID] = e
		}
	}
	return out
}

// ListOccurrences materializes the templates of a recurrent table and
// keeps the matching occurrences. Templates without any are omitted.
func (t *Table) ListOccurrences(f core.Filters) map[int][]core.Occurrence {
	out := make(map[int][]core.Occurrence)
	for _, e := range t.All() {
		var occs []core.Occurrence
		for o := range e.Occurrences() {
			if f.MatchOccurrence(o) {
				occs = append(occs, o)
			}
		}
		if len(occs) > 0 {
			out[e.EID] = occs
		}
	}
	return out
}
