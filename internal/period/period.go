package period

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// Period is a named container of one standard and one recurrent table.
//
// The tables are loaded from the store on first access. Every successful
// mutation is committed before the call returns; if the commit fails the
// in-memory tables are restored to the last committed state. All methods
// are serialized by a per-period mutex.
type Period struct {
	name  string
	store storage.Store
	now   func() time.Time

	mu     sync.Mutex
	loaded bool
	tables map[core.TableName]*Table
}

// New returns an unloaded period backed by store.
func New(name string, store storage.Store, now func() time.Time) *Period {
	if now == nil {
		now = time.Now
	}
	return &Period{name: name, store: store, now: now}
}

// Name returns the period's name.
func (p *Period) Name() string { return p.name }

func (p *Period) calendar() core.Calendar {
	return core.CalendarFor(p.name, p.now())
}

func (p *Period) ensureLoaded(ctx context.Context) error {
	if p.loaded {
		return nil
	}
	snap, err := p.store.Load(ctx, p.name)
	if err != nil {
		return fmt.Errorf("load period %s: %w", p.name, err)
	}
	p.restore(snap)
	p.loaded = true
	return nil
}

func (p *Period) restore(snap storage.Snapshot) {
	p.tables = map[core.TableName]*Table{
		core.Standard:  tableFromData(core.Standard, snap.Standard),
		core.Recurrent: tableFromData(core.Recurrent, snap.Recurrent),
	}
}

func (p *Period) snapshot() storage.Snapshot {
	return storage.Snapshot{
		Standard:  p.tables[core.Standard].data(),
		Recurrent: p.tables[core.Recurrent].data(),
	}
}

func (p *Period) table(name string) (*Table, error) {
	tn, err := core.ParseTableName(name)
	if err != nil {
		return nil, err
	}
	return p.tables[tn], nil
}

// read runs fn on the resolved table under the period lock.
func (p *Period) read(ctx context.Context, table string, fn func(*Table) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLoaded(ctx); err != nil {
		return err
	}
	t, err := p.table(table)
	if err != nil {
		return err
	}
	return fn(t)
}

// write runs fn on the resolved table and commits the result.
func (p *Period) write(ctx context.Context, table string, fn func(*Table) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLoaded(ctx); err != nil {
		return err
	}
	t, err := p.table(table)
	if err != nil {
		return err
	}
	before := p.snapshot()
	if err := fn(t); err != nil {
		return err
	}
	if err := p.store.Save(ctx, p.name, p.snapshot()); err != nil {
		p.restore(before)
		return fmt.Errorf("commit period %s: %w", p.name, err)
	}
	return nil
}

// Add stores a new entry in the named table.
func (p *Period) Add(ctx context.Context, table string, f core.Fields) (int, error) {
	var eid int
	err := p.write(ctx, table, func(t *Table) error {
		var err error
		eid, err = t.Add(f, p.calendar())
		return err
	})
	return eid, err
}

// Insert stores a copy of e under a fresh ID in the named table.
func (p *Period) Insert(ctx context.Context, table string, e core.Entry) (int, error) {
	var eid int
	err := p.write(ctx, table, func(t *Table) error {
		if err := e.Validate(t.Name()); err != nil {
			return err
		}
		eid = t.Insert(e)
		return nil
	})
	return eid, err
}

// Get returns an entry of the named table.
func (p *Period) Get(ctx context.Context, table string, eid int) (core.Entry, error) {
	var e core.Entry
	err := p.read(ctx, table, func(t *Table) error {
		var err error
		e, err = t.Get(eid)
		return err
	})
	return e, err
}

// Update merges f into an entry of the named table.
func (p *Period) Update(ctx context.Context, table string, eid int, f core.Fields) error {
	return p.write(ctx, table, func(t *Table) error {
		return t.Update(eid, f, p.calendar())
	})
}

// Remove deletes an entry of the named table and returns it.
func (p *Period) Remove(ctx context.Context, table string, eid int) (core.Entry, error) {
	var e core.Entry
	err := p.write(ctx, table, func(t *Table) error {
		var err error
		e, err = t.Remove(eid)
		return err
	})
	return e, err
}

// List returns the matching entries of both tables, with recurring
// templates materialized into occurrences.
func (p *Period) List(ctx context.Context, f core.Filters) (Listing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLoaded(ctx); err != nil {
		return Listing{}, err
	}
	return Listing{
		Standard:  p.tables[core.Standard].ListEntries(f),
		Recurrent: p.tables[core.Recurrent].ListOccurrences(f),
	}, nil
}
