package server

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/storage"
)

func ptr[T any](v T) *T { return &v }

func fixedNow() time.Time { return time.Date(2020, 3, 14, 9, 0, 0, 0, time.UTC) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	return New(storage.NewMemoryStore(), append([]Option{WithClock(fixedNow)}, opts...)...)
}

func pantsParams(period string) Params {
	return Params{Period: period, Name: ptr("Pants"), Value: ptr(decimal.NewFromInt(-99)), Category: ptr("Clothes")}
}

func TestRun_AddGet(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	resp, err := s.Run(ctx, CmdAdd, pantsParams("2020"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if resp.ID != 1 {
		t.Fatalf("id = %d, want 1", resp.ID)
	}

	resp, err = s.Run(ctx, CmdGet, Params{Period: "2020", EID: 1})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	e := resp.Element
	if e == nil || e.Name != "Pants" || e.Category != "Clothes" || !e.Value.Equal(decimal.NewFromInt(-99)) {
		t.Fatalf("unexpected element: %+v", e)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	resp, err := newTestServer(t).Run(context.Background(), Command("explode"), Params{})
	if err != nil {
		t.Fatalf("unknown command must not be an error: %v", err)
	}
	if !strings.Contains(resp.Error, "explode") {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	if _, err := s.Run(ctx, CmdAdd, pantsParams("2020")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cmd  Command
		p    Params
		want error
	}{
		{"get missing", CmdGet, Params{Period: "2020", EID: 42}, core.ErrNotFound},
		{"get without eid", CmdGet, Params{Period: "2020"}, core.ErrInvalidRequest},
		{"get unknown table", CmdGet, Params{Period: "2020", EID: 1, TableName: "weird"}, core.ErrInvalidRequest},
		{"add without value", CmdAdd, Params{Name: ptr("x")}, core.ErrInvalidRequest},
		{"add bad date", CmdAdd, Params{Name: ptr("x"), Value: ptr(decimal.NewFromInt(1)), Date: ptr("31-31")}, core.ErrValidation},
		{"update missing", CmdUpdate, Params{Period: "2020", EID: 9, Name: ptr("y")}, core.ErrNotFound},
		{"remove missing", CmdRemove, Params{Period: "2020", EID: 9}, core.ErrNotFound},
		{"copy missing", CmdCopy, Params{SourcePeriod: "2020", DestinationPeriod: "2021", EID: 9}, core.ErrNotFound},
		{"list bad filter", CmdList, Params{Period: "2020", Filters: map[string]string{"size": "xl"}}, core.ErrInvalidRequest},
		{"path traversal", CmdList, Params{Period: "../etc"}, core.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Run(ctx, tt.cmd, tt.p)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRun_UpdateRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	if _, err := s.Run(ctx, CmdAdd, pantsParams("2020")); err != nil {
		t.Fatal(err)
	}

	resp, err := s.Run(ctx, CmdUpdate, Params{Period: "2020", EID: 1, Category: ptr("unspecified"), Value: ptr(decimal.NewFromInt(-80))})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if resp.ID != 1 {
		t.Fatalf("update id = %d", resp.ID)
	}
	got, _ := s.Run(ctx, CmdGet, Params{Period: "2020", EID: 1})
	if got.Element.Category != "" || !got.Element.Value.Equal(decimal.NewFromInt(-80)) {
		t.Fatalf("update not applied: %+v", got.Element)
	}

	if _, err := s.Run(ctx, CmdRemove, Params{Period: "2020", EID: 1}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Run(ctx, CmdGet, Params{Period: "2020", EID: 1}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRun_Copy(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	for _, p := range []string{"2020", "2020"} {
		if _, err := s.Run(ctx, CmdAdd, pantsParams(p)); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := s.Run(ctx, CmdCopy, Params{SourcePeriod: "2020", DestinationPeriod: "2021", EID: 2})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if resp.ID != 1 {
		t.Fatalf("copy into empty period id = %d, want 1", resp.ID)
	}

	src, _ := s.Run(ctx, CmdGet, Params{Period: "2020", EID: 2})
	dst, _ := s.Run(ctx, CmdGet, Params{Period: "2021", EID: 1})
	a, b := *src.Element, *dst.Element
	if a.EID != 2 || b.EID != 1 {
		t.Fatalf("eids = %d, %d; want 2, 1", a.EID, b.EID)
	}
	a.EID, b.EID = 0, 0
	if !a.Value.Equal(b.Value) {
		t.Fatalf("value differs: %s vs %s", a.Value, b.Value)
	}
	a.Value, b.Value = decimal.Zero, decimal.Zero
	if a != b {
		t.Fatalf("copy differs: %+v vs %+v", a, b)
	}
}

func TestRun_ListAndFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	if _, err := s.Run(ctx, CmdAdd, pantsParams("2020")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, CmdAdd, Params{Period: "2020", Name: ptr("bread"), Value: ptr(decimal.NewFromInt(-2))}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, CmdAdd, Params{
		Period: "2020", TableName: "recurrent", Name: ptr("rent"), Value: ptr(decimal.NewFromInt(-500)),
		Frequency: ptr("monthly"), Start: ptr("01-02"), End: ptr("07-01"),
	}); err != nil {
		t.Fatal(err)
	}

	resp, err := s.Run(ctx, CmdList, Params{Period: "2020", Filters: map[string]string{"category": "unspecified"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	el := resp.Elements
	if len(el.Standard) != 1 || el.Standard[2].Name != "Bread" {
		t.Errorf("standard = %+v", el.Standard)
	}
	if len(el.Recurrent[1]) != 6 {
		t.Errorf("recurrent occurrences = %d, want 6", len(el.Recurrent[1]))
	}
}

func TestRun_Periods(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	store, err := storage.NewJSONStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s := New(store, WithClock(fixedNow))

	resp, err := s.Run(ctx, CmdPeriods, Params{})
	if err != nil {
		t.Fatalf("periods: %v", err)
	}
	if resp.Periods == nil || len(resp.Periods) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", resp.Periods)
	}
	raw, _ := json.Marshal(resp)
	if string(raw) != `{"periods":[]}` {
		t.Fatalf("wire form = %s", raw)
	}

	for _, p := range []string{"2021", "0", "2021"} {
		if _, err := s.Run(ctx, CmdAdd, pantsParams(p)); err != nil {
			t.Fatal(err)
		}
	}
	// A failed lookup in a mistyped period leaves no trace.
	if _, err := s.Run(ctx, CmdGet, Params{Period: "typo", EID: 1}); core.CodeOf(err) != core.CodeNotFound {
		t.Fatalf("get in unknown period: %v", err)
	}
	resp, _ = s.Run(ctx, CmdPeriods, Params{})
	if !slices.Equal(resp.Periods, []string{"0", "2021"}) {
		t.Fatalf("periods = %v", resp.Periods)
	}
	// A fresh server over the same directory sees the persisted periods.
	resp, _ = New(store).Run(ctx, CmdPeriods, Params{})
	if !slices.Equal(resp.Periods, []string{"0", "2021"}) {
		t.Fatalf("periods = %v", resp.Periods)
	}
}

func TestRun_PeriodsMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	if _, err := s.Run(ctx, CmdAdd, pantsParams("2021")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, CmdList, Params{Period: "2019"}); err != nil {
		t.Fatal(err)
	}
	resp, err := s.Run(ctx, CmdPeriods, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(resp.Periods, []string{"2019", "2021"}) {
		t.Fatalf("periods = %v", resp.Periods)
	}
}

func TestRun_DefaultPeriod(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	if _, err := s.Run(ctx, CmdAdd, pantsParams("")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, CmdGet, Params{Period: "2020", EID: 1}); err != nil {
		t.Fatalf("entry not stored in the default period: %v", err)
	}
}

func TestRun_NotifiesMutations(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{err: errors.New("broker down")}
	s := newTestServer(t, WithNotifier(n))

	if _, err := s.Run(ctx, CmdAdd, pantsParams("2020")); err != nil {
		t.Fatalf("notifier failure must not fail the command: %v", err)
	}
	if _, err := s.Run(ctx, CmdList, Params{Period: "2020"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, CmdCopy, Params{SourcePeriod: "2020", DestinationPeriod: "2022", EID: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, CmdGet, Params{Period: "2020", EID: 5}); err == nil {
		t.Fatal("expected not found")
	}
	// Close drains the event queue.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) != 2 {
		t.Fatalf("events = %+v, want add and copy only", n.events)
	}
	if ev := n.events[1]; ev.Command != CmdCopy || ev.Period != "2022" || ev.EID != 1 || ev.Table != core.Standard {
		t.Fatalf("copy event = %+v", ev)
	}
}

// blockingNotifier holds every delivery until release is closed.
type blockingNotifier struct {
	recordingNotifier
	release chan struct{}
}

func (n *blockingNotifier) Notify(ctx context.Context, ev Event) error {
	<-n.release
	return n.recordingNotifier.Notify(ctx, ev)
}

func TestRun_SlowNotifierDoesNotDelayCommands(t *testing.T) {
	ctx := context.Background()
	n := &blockingNotifier{release: make(chan struct{})}
	s := newTestServer(t, WithNotifier(n))

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx, CmdAdd, pantsParams("2020"))
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("add waited for event delivery")
	}

	close(n.release)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) != 1 || n.events[0].Command != CmdAdd || n.events[0].EID != 1 {
		t.Fatalf("events = %+v", n.events)
	}
}

func TestRun_FullEventQueueDropsEvents(t *testing.T) {
	ctx := context.Background()
	n := &blockingNotifier{release: make(chan struct{})}
	s := newTestServer(t, WithNotifier(n))

	// One event is held by the delivery goroutine, the rest fill the queue.
	total := eventBuffer + 10
	start := time.Now()
	for i := 0; i < total; i++ {
		if _, err := s.Run(ctx, CmdAdd, pantsParams("2020")); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("adds blocked on a full queue: %v", elapsed)
	}

	close(n.release)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 || len(n.events) > eventBuffer+1 {
		t.Fatalf("delivered %d events, want between 1 and %d", len(n.events), eventBuffer+1)
	}
	if _, err := s.Run(ctx, CmdAdd, pantsParams("2020")); err != nil {
		t.Fatalf("add after close: %v", err)
	}
}

func TestRun_ConcurrentPeriods(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			period := []string{"a", "b"}[i%2]
			if _, err := s.Run(ctx, CmdAdd, pantsParams(period)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	for _, p := range []string{"a", "b"} {
		resp, err := s.Run(ctx, CmdList, Params{Period: p})
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Elements.Standard) != 10 {
			t.Fatalf("period %s has %d entries, want 10", p, len(resp.Elements.Standard))
		}
	}
}

func TestResponse_MarshalJSON(t *testing.T) {
	raw, err := json.Marshal(Response{ID: 3})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"id":3}` {
		t.Fatalf("wire form = %s", raw)
	}
}
