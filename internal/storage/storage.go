// Package storage persists period snapshots.
//
// A snapshot holds the two tables of one period together with their ID
// counters. Backends load and replace whole snapshots; the period layer
// owns all record-level logic.
package storage

import (
	"context"
	"maps"

	"ledger/internal/core"
)

// TableData is the persisted form of one table.
type TableData struct {
	LastID  int                `json:"last_id"`
	Entries map[int]core.Entry `json:"entries"`
}

// Snapshot is the persisted form of one period.
type Snapshot struct {
	Standard  TableData `json:"standard"`
	Recurrent TableData `json:"recurrent"`
}

// Store is implemented by every persistence backend.
type Store interface {
	// Load returns the period's snapshot, or an empty one if nothing was saved.
	Load(ctx context.Context, period string) (Snapshot, error)
	// Save replaces the period's snapshot.
	Save(ctx context.Context, period string, snap Snapshot) error
	// Periods lists the names of all persisted periods.
	Periods(ctx context.Context) ([]string, error)
	Close() error
}

// Ephemeral is implemented by stores that keep nothing beyond the process.
// The server lists every period it has resolved for them, saved or not.
type Ephemeral interface {
	Ephemeral() bool
}

// IsEphemeral reports whether st only lives in process memory.
func IsEphemeral(st Store) bool {
	e, ok := st.(Ephemeral)
	return ok && e.Ephemeral()
}

// EmptySnapshot returns a snapshot with initialized tables.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Standard:  TableData{Entries: map[int]core.Entry{}},
		Recurrent: TableData{Entries: map[int]core.Entry{}},
	}
}

// Table returns the data of the named table.
func (s Snapshot) Table(name core.TableName) TableData {
	if name == core.Recurrent {
		return s.Recurrent
	}
	return s.Standard
}

// Clone returns a deep copy so callers cannot alias a stored snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Standard:  s.Standard.clone(),
		Recurrent: s.Recurrent.clone(),
	}
}

func (t TableData) clone() TableData {
	entries := maps.Clone(t.Entries)
	if entries == nil {
		entries = map[int]core.Entry{}
	}
	return TableData{LastID: t.LastID, Entries: entries}
}
