package period

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/storage"
)

func ptr[T any](v T) *T { return &v }

func fixedNow() time.Time { return time.Date(2020, 3, 14, 9, 0, 0, 0, time.UTC) }

func pants() core.Fields {
	return core.Fields{Name: ptr("pants"), Value: ptr(decimal.NewFromInt(-99)), Category: ptr("clothes")}
}

type failingStore struct {
	storage.Store
	fail bool
}

func (f *failingStore) Save(ctx context.Context, period string, snap storage.Snapshot) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, period, snap)
}

func TestPeriod_AddGetUpdateRemove(t *testing.T) {
	ctx := context.Background()
	p := New("2020", storage.NewMemoryStore(), fixedNow)

	eid, err := p.Add(ctx, "", pants())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if eid != 1 {
		t.Fatalf("first id = %d, want 1", eid)
	}

	e, err := p.Get(ctx, "standard", eid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Name != "Pants" || e.Category != "Clothes" || e.Date != "2020-03-14" || !e.Value.Equal(decimal.NewFromInt(-99)) {
		t.Fatalf("unexpected entry: %+v", e)
	}

	if err := p.Update(ctx, "standard", eid, core.Fields{Name: ptr("trousers")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if e, _ := p.Get(ctx, "standard", eid); e.Name != "Trousers" || e.Category != "Clothes" {
		t.Fatalf("update result: %+v", e)
	}

	removed, err := p.Remove(ctx, "standard", eid)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.EID != eid {
		t.Fatalf("removed %d, want %d", removed.EID, eid)
	}
	if _, err := p.Get(ctx, "standard", eid); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
}

func TestPeriod_IDsAreNeverReused(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := New("2020", store, fixedNow)
	for i := 0; i < 3; i++ {
		if _, err := p.Add(ctx, "standard", pants()); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := p.Remove(ctx, "standard", 3); err != nil {
		t.Fatal(err)
	}
	eid, _ := p.Add(ctx, "standard", pants())
	if eid != 4 {
		t.Fatalf("id after removal = %d, want 4", eid)
	}

	// The counter survives a reload.
	reloaded := New("2020", store, fixedNow)
	if _, err := reloaded.Remove(ctx, "standard", 4); err != nil {
		t.Fatal(err)
	}
	eid, _ = reloaded.Add(ctx, "standard", pants())
	if eid != 5 {
		t.Fatalf("id after reload = %d, want 5", eid)
	}
}

func TestPeriod_TablesAreIndependent(t *testing.T) {
	ctx := context.Background()
	p := New("2020", storage.NewMemoryStore(), fixedNow)
	s, _ := p.Add(ctx, "standard", pants())
	r, err := p.Add(ctx, "recurrent", core.Fields{Name: ptr("rent"), Value: ptr(decimal.NewFromInt(-500)), Frequency: ptr("monthly")})
	if err != nil {
		t.Fatalf("add recurrent: %v", err)
	}
	if s != 1 || r != 1 {
		t.Fatalf("ids = %d, %d; want 1, 1", s, r)
	}
}

func TestPeriod_Errors(t *testing.T) {
	ctx := context.Background()
	p := New("2020", storage.NewMemoryStore(), fixedNow)

	if _, err := p.Add(ctx, "savings", pants()); !errors.Is(err, core.ErrInvalidRequest) {
		t.Errorf("unknown table: got %v", err)
	}
	if _, err := p.Add(ctx, "standard", core.Fields{Name: ptr("")}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("invalid entry: got %v", err)
	}
	if err := p.Update(ctx, "standard", 42, core.Fields{Name: ptr("x")}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update missing: got %v", err)
	}
	if _, err := p.Remove(ctx, "recurrent", 1); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("remove missing: got %v", err)
	}

	eid, _ := p.Add(ctx, "standard", pants())
	if err := p.Update(ctx, "standard", eid, core.Fields{Date: ptr("02-30")}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("bad update: got %v", err)
	}
	if e, _ := p.Get(ctx, "standard", eid); e.Date != "2020-03-14" {
		t.Errorf("failed update changed the entry: %+v", e)
	}
}

func TestPeriod_ListMaterializesRecurrent(t *testing.T) {
	ctx := context.Background()
	p := New("2020", storage.NewMemoryStore(), fixedNow)
	if _, err := p.Add(ctx, "standard", pants()); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Add(ctx, "standard", core.Fields{Name: ptr("bread"), Value: ptr(decimal.NewFromInt(-2))}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Add(ctx, "recurrent", core.Fields{
		Name: ptr("rent"), Value: ptr(decimal.NewFromInt(-500)), Category: ptr("home"),
		Frequency: ptr("monthly"), Start: ptr("01-02"), End: ptr("07-01"),
	}); err != nil {
		t.Fatal(err)
	}

	all, err := p.List(ctx, core.Filters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all.Standard) != 2 {
		t.Errorf("standard entries = %d, want 2", len(all.Standard))
	}
	if len(all.Recurrent[1]) != 6 {
		t.Errorf("rent occurrences = %d, want 6", len(all.Recurrent[1]))
	}

	uncategorized, _ := p.List(ctx, core.Filters{NoCategory: true})
	if len(uncategorized.Standard) != 1 || uncategorized.Standard[2].Name != "Bread" {
		t.Errorf("no-category filter: %+v", uncategorized.Standard)
	}
	if len(uncategorized.Recurrent) != 0 {
		t.Errorf("no-category filter kept templates: %+v", uncategorized.Recurrent)
	}

	march, _ := p.List(ctx, core.Filters{Date: "-03-"})
	if len(march.Recurrent[1]) != 1 || march.Recurrent[1][0].Date != "2020-03-02" {
		t.Errorf("date filter on occurrences: %+v", march.Recurrent)
	}
}

func TestPeriod_CommitFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: storage.NewMemoryStore()}
	p := New("2020", store, fixedNow)
	eid, err := p.Add(ctx, "standard", pants())
	if err != nil {
		t.Fatal(err)
	}

	store.fail = true
	if _, err := p.Add(ctx, "standard", pants()); err == nil {
		t.Fatal("expected commit error")
	}
	if _, err := p.Remove(ctx, "standard", eid); err == nil {
		t.Fatal("expected commit error")
	}
	store.fail = false

	if _, err := p.Get(ctx, "standard", eid); err != nil {
		t.Fatalf("entry lost after failed remove: %v", err)
	}
	next, _ := p.Add(ctx, "standard", pants())
	if next != 2 {
		t.Fatalf("id after rollback = %d, want 2", next)
	}
}

func TestPeriod_PersistsToJSONFiles(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	store, err := storage.NewJSONStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	p := New("2020", store, fixedNow)
	if _, err := p.Add(ctx, "standard", pants()); err != nil {
		t.Fatal(err)
	}

	fresh := New("2020", store, fixedNow)
	e, err := fresh.Get(ctx, "standard", 1)
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if e.Name != "Pants" {
		t.Fatalf("reloaded entry: %+v", e)
	}
}

func TestPeriod_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	p := New("2020", storage.NewMemoryStore(), fixedNow)
	const n = 50
	var wg sync.WaitGroup
	ids := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eid, err := p.Add(ctx, "standard", pants())
			if err != nil {
				t.Error(err)
				return
			}
			ids <- eid
		}()
	}
	wg.Wait()
	close(ids)
	seen := make(map[int]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d ids, want %d", len(seen), n)
	}
}
