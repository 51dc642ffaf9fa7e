package grid

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNew_SetupErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "name count mismatch",
			cfg:  Config{ColNames: []string{"Id"}, Columns: testColumns()},
		},
		{
			name: "duplicate column",
			cfg:  Config{Columns: []Column{{Name: "a"}, {Name: "a"}}},
		},
		{
			name: "two key columns",
			cfg:  Config{Columns: []Column{{Name: "a", Key: true}, {Name: "b", Key: true}}},
		},
		{
			name: "unknown sort column",
			cfg:  Config{Columns: testColumns(), SortName: "price"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, &fakeSource{})
			var setup *SetupError
			if !errors.As(err, &setup) {
				t.Fatalf("New() error = %v, want *SetupError", err)
			}
		})
	}
}

func TestNew_NoSource(t *testing.T) {
	if _, err := New(Config{Columns: testColumns()}, nil); err == nil {
		t.Fatal("New() with nil source succeeded")
	}
}

func TestLoad_LastPage(t *testing.T) {
	src := &fakeSource{records: makeRecords(47)}
	g := newTestGrid(t, Config{RowsPerPage: 20}, src)
	mustLoad(t, g)

	st := g.State()
	if st.TotalPages != 3 || st.TotalRecords != 47 {
		t.Fatalf("after load total=%d records=%d, want 3 and 47", st.TotalPages, st.TotalRecords)
	}
	if n := len(g.GetDataIDs()); n != 20 {
		t.Fatalf("loaded %d rows, want 20", n)
	}

	if err := g.Paginate(context.Background(), PageLast, 0); err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	reqs := src.requests()
	if got := reqs[len(reqs)-1].Page; got != 3 {
		t.Errorf("last request page = %d, want 3", got)
	}
	want := []string{"41", "42", "43", "44", "45", "46", "47"}
	if diff := cmp.Diff(want, g.GetDataIDs()); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestPaginate_NoFetchWhenPageUnchanged(t *testing.T) {
	src := &fakeSource{records: makeRecords(10)}
	g := newTestGrid(t, Config{RowsPerPage: 20}, src)
	mustLoad(t, g)

	if err := g.Paginate(context.Background(), PageNext, 0); err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	if n := len(src.requests()); n != 1 {
		t.Errorf("issued %d requests, want 1", n)
	}
}

func TestLoad_SingleInFlight(t *testing.T) {
	src := &fakeSource{records: makeRecords(30), block: make(chan struct{})}
	g := newTestGrid(t, Config{}, src)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Load(context.Background()); err != nil {
				t.Errorf("Load: %v", err)
			}
		}()
	}

	waitFor(t, func() bool { return len(src.requests()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := len(src.requests()); n != 1 {
		t.Fatalf("second fetch issued while first in flight: %d requests", n)
	}
	if !g.State().Loading {
		t.Error("state not loading while fetch in flight")
	}

	close(src.block)
	wg.Wait()

	if n := len(src.requests()); n != 2 {
		t.Errorf("issued %d requests, want 2", n)
	}
	if src.maxInflight != 1 {
		t.Errorf("max concurrent fetches = %d, want 1", src.maxInflight)
	}
}

func TestLoadMore_RefusedWhileLoading(t *testing.T) {
	src := &fakeSource{records: makeRecords(30), block: make(chan struct{})}
	g := newTestGrid(t, Config{Scroll: true}, src)

	done := make(chan error)
	go func() { done <- g.Load(context.Background()) }()
	waitFor(t, func() bool { return len(src.requests()) == 1 })

	ok, err := g.LoadMore(context.Background())
	if ok || !errors.Is(err, ErrLoading) {
		t.Errorf("LoadMore() = %v, %v while loading, want false, ErrLoading", ok, err)
	}
	close(src.block)
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestEdit_RefusedWhileLoading(t *testing.T) {
	src := &fakeSource{records: makeRecords(5)}
	p := &fakePersister{}
	g := newTestGrid(t, Config{}, src, WithPersister(p))
	mustLoad(t, g)
	ctx := context.Background()
	ed := g.Editor()
	if _, err := ed.EditRow(ctx, "1"); err != nil {
		t.Fatalf("EditRow: %v", err)
	}

	src.mu.Lock()
	src.block = make(chan struct{})
	src.mu.Unlock()
	done := make(chan error)
	go func() { done <- g.Load(ctx) }()
	waitFor(t, func() bool { return len(src.requests()) == 2 })

	st, err := ed.SaveRow(ctx, "1")
	if !errors.Is(err, ErrLoading) || st != StateEditing {
		t.Errorf("SaveRow() = %s, %v while loading, want editing, ErrLoading", st, err)
	}
	if err := ed.DelRow(ctx, "2"); !errors.Is(err, ErrLoading) {
		t.Errorf("DelRow() error = %v while loading, want ErrLoading", err)
	}
	close(src.block)
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := len(p.operations()); n != 0 {
		t.Errorf("persisted %d operations while loading", n)
	}
}

func TestLoad_DropsOpenInlineEdit(t *testing.T) {
	src := &fakeSource{records: makeRecords(5)}
	g := newTestGrid(t, Config{}, src, WithPersister(&fakePersister{}))
	mustLoad(t, g)
	ctx := context.Background()
	ed := g.Editor()

	if _, err := ed.EditRow(ctx, "1"); err != nil {
		t.Fatalf("EditRow: %v", err)
	}
	if err := ed.SetValue("1", "name", "typed"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	src.mu.Lock()
	src.records[0]["name"] = "server value"
	src.mu.Unlock()
	mustLoad(t, g)

	if st := ed.State(); st != StateViewing {
		t.Errorf("state after reload = %s, want viewing", st)
	}
	if n := len(ed.Locks()); n != 0 {
		t.Errorf("edit locks after reload = %d, want 0", n)
	}
	if g.ViewRows()[0].Editing {
		t.Error("reloaded row still shown as editing")
	}
	ed.RestoreRow("1")
	if v, _ := g.GetCell("1", "name"); v != "server value" {
		t.Errorf("name after restore = %q, want the reloaded value", v)
	}
}

func TestLoad_HookMayReload(t *testing.T) {
	src := &fakeSource{records: makeRecords(5)}
	var g *Grid
	var calls int
	hooks := Hooks{OnLoadComplete: func(rs *RowSet) {
		calls++
		if calls == 1 {
			if err := g.Load(context.Background()); err != nil {
				t.Errorf("Load from hook: %v", err)
			}
		}
	}}
	g = newTestGrid(t, Config{}, src, WithHooks(hooks))

	done := make(chan error)
	go func() { done <- g.Load(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Load from a load hook deadlocked")
	}
	if calls != 2 || len(src.requests()) != 2 {
		t.Errorf("hook calls = %d, fetches = %d, want 2 and 2", calls, len(src.requests()))
	}
}

func TestLoad_ErrorKeepsPriorData(t *testing.T) {
	src := &fakeSource{records: makeRecords(47)}
	var loadErrs []error
	g := newTestGrid(t, Config{}, src, WithHooks(Hooks{
		OnLoadError: func(err error) { loadErrs = append(loadErrs, err) },
	}))
	mustLoad(t, g)
	before := g.GetDataIDs()

	boom := &TransportError{Op: "fetch", Status: 500, Err: errors.New("internal")}
	src.setErr(boom)
	err := g.Paginate(context.Background(), PageNext, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("Paginate() error = %v, want %v", err, boom)
	}
	if diff := cmp.Diff(before, g.GetDataIDs()); diff != "" {
		t.Errorf("rows changed after failed fetch (-want +got):\n%s", diff)
	}
	st := g.State()
	if st.Page != 1 || st.Loading {
		t.Errorf("state page=%d loading=%v, want 1 and false", st.Page, st.Loading)
	}
	if len(loadErrs) != 1 {
		t.Errorf("OnLoadError called %d times, want 1", len(loadErrs))
	}

	// the grid stays usable
	src.setErr(nil)
	if err := g.Paginate(context.Background(), PageNext, 0); err != nil {
		t.Fatalf("retry Paginate: %v", err)
	}
	if got := g.State().Page; got != 2 {
		t.Errorf("page after retry = %d, want 2", got)
	}
}

func TestLoad_RowIDs(t *testing.T) {
	t.Run("position", func(t *testing.T) {
		src := &fakeSource{records: makeRecords(30), noIDs: true}
		cols := testColumns()
		cols[0].Key = false
		g := newTestGrid(t, Config{Columns: cols, RowsPerPage: 10}, src)
		mustLoad(t, g)
		if err := g.Paginate(context.Background(), PageNext, 0); err != nil {
			t.Fatalf("Paginate: %v", err)
		}
		ids := g.GetDataIDs()
		if ids[0] != "11" || ids[9] != "20" {
			t.Errorf("page 2 ids = %v, want 11..20", ids)
		}
		if err := g.Load(context.Background()); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if diff := cmp.Diff(ids, g.GetDataIDs()); diff != "" {
			t.Errorf("ids not stable across re-fetch (-want +got):\n%s", diff)
		}
	})

	t.Run("key column", func(t *testing.T) {
		recs := makeRecords(3)
		for i, r := range recs {
			r["name"] = "code-" + strconv.Itoa(i)
		}
		src := &fakeSource{records: recs, noIDs: true}
		cols := testColumns()
		cols[0].Key = false
		cols[1].Key = true
		g := newTestGrid(t, Config{Columns: cols}, src)
		mustLoad(t, g)
		want := []string{"code-0", "code-1", "code-2"}
		if diff := cmp.Diff(want, g.GetDataIDs()); diff != "" {
			t.Errorf("ids mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestLocal_SortSearchPage(t *testing.T) {
	names := []string{"b", "A", "c", "a", "B"}
	recs := make([]map[string]string, len(names))
	for i, n := range names {
		recs[i] = map[string]string{"id": strconv.Itoa(i + 1), "name": n, "qty": strconv.Itoa(i * 10)}
	}
	src := &fakeSource{records: recs, local: true}
	g := newTestGrid(t, Config{RowsPerPage: 10}, src)
	mustLoad(t, g)
	ctx := context.Background()

	if !g.State().Local {
		t.Fatal("grid did not switch to local data")
	}

	if err := g.SortBy(ctx, "name"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	col, _ := g.GetCol("name")
	if diff := cmp.Diff([]string{"A", "a", "b", "B", "c"}, col); diff != "" {
		t.Errorf("asc order (-want +got):\n%s", diff)
	}

	if err := g.SortBy(ctx, "name"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	col, _ = g.GetCol("name")
	if diff := cmp.Diff([]string{"c", "b", "B", "A", "a"}, col); diff != "" {
		t.Errorf("desc order (-want +got):\n%s", diff)
	}

	if err := g.SortBy(ctx, "qty"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	col, _ = g.GetCol("qty")
	if diff := cmp.Diff([]string{"0", "10", "20", "30", "40"}, col); diff != "" {
		t.Errorf("numeric order (-want +got):\n%s", diff)
	}

	if err := g.Search(ctx, "name", "eq", "a"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if diff := cmp.Diff([]string{"2", "4"}, g.GetDataIDs()); diff != "" {
		t.Errorf("search ids (-want +got):\n%s", diff)
	}
	if err := g.ClearSearch(ctx); err != nil {
		t.Fatalf("ClearSearch: %v", err)
	}

	if err := g.SetRowsPerPage(ctx, 2); err != nil {
		t.Fatalf("SetRowsPerPage: %v", err)
	}
	if err := g.Paginate(ctx, PageLast, 0); err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	st := g.State()
	if st.Page != 3 || st.TotalPages != 3 || len(g.GetDataIDs()) != 1 {
		t.Errorf("local last page = %d/%d with %d rows, want 3/3 with 1", st.Page, st.TotalPages, len(g.GetDataIDs()))
	}

	if n := len(src.requests()); n != 1 {
		t.Errorf("local grid issued %d fetches, want 1", n)
	}
}

func TestSortBy_Remote(t *testing.T) {
	src := &fakeSource{records: makeRecords(47)}
	g := newTestGrid(t, Config{}, src)
	mustLoad(t, g)
	ctx := context.Background()
	if err := g.Paginate(ctx, PageNext, 0); err != nil {
		t.Fatalf("Paginate: %v", err)
	}

	if err := g.SortBy(ctx, "name"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	if err := g.SortBy(ctx, "name"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	reqs := src.requests()
	first, second := reqs[len(reqs)-2], reqs[len(reqs)-1]
	if first.SortIndex != "name" || first.SortOrder != Asc || first.Page != 1 {
		t.Errorf("first sort request = %+v, want name asc page 1", first)
	}
	if second.SortOrder != Desc {
		t.Errorf("second sort order = %s, want desc", second.SortOrder)
	}

	cols := g.Columns()
	cols[2].Sortable = false
	if err := g.SetColumns(nil, cols); err != nil {
		t.Fatalf("SetColumns: %v", err)
	}
	if err := g.SortBy(ctx, "qty"); !errors.Is(err, ErrNotSortable) {
		t.Errorf("SortBy(qty) error = %v, want ErrNotSortable", err)
	}
	if err := g.SortBy(ctx, "nope"); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("SortBy(nope) error = %v, want ErrUnknownColumn", err)
	}
}

func TestSearch_RemoteParams(t *testing.T) {
	src := &fakeSource{records: makeRecords(5)}
	g := newTestGrid(t, Config{}, src)
	if err := g.Search(context.Background(), "name", "cn", "item"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	req := src.requests()[0]
	want := &Filter{Field: "name", Oper: "cn", Value: "item"}
	if !req.Search || !cmp.Equal(want, req.Filter) {
		t.Errorf("request search=%v filter=%+v, want true and %+v", req.Search, req.Filter, want)
	}
	if err := g.Search(context.Background(), "name", "xx", "item"); err == nil {
		t.Error("Search with unknown operator succeeded")
	}
}

func TestSelection(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		src := &fakeSource{records: makeRecords(47)}
		type event struct {
			id  string
			sel bool
		}
		var events []event
		g := newTestGrid(t, Config{}, src, WithHooks(Hooks{
			OnSelectRow: func(id string, selected bool) { events = append(events, event{id, selected}) },
		}))
		mustLoad(t, g)

		if err := g.SetSelection("1"); err != nil {
			t.Fatalf("SetSelection: %v", err)
		}
		if err := g.SetSelection("2"); err != nil {
			t.Fatalf("SetSelection: %v", err)
		}
		if diff := cmp.Diff([]string{"2"}, g.Selection()); diff != "" {
			t.Errorf("selection (-want +got):\n%s", diff)
		}
		want := []event{{"1", true}, {"1", false}, {"2", true}}
		if diff := cmp.Diff(want, events, cmp.AllowUnexported(event{})); diff != "" {
			t.Errorf("events (-want +got):\n%s", diff)
		}

		if err := g.Load(context.Background()); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if diff := cmp.Diff([]string{"2"}, g.Selection()); diff != "" {
			t.Errorf("selection after reload of same page (-want +got):\n%s", diff)
		}
		if err := g.Paginate(context.Background(), PageNext, 0); err != nil {
			t.Fatalf("Paginate: %v", err)
		}
		if sel := g.Selection(); len(sel) != 0 {
			t.Errorf("selection after page change = %v, want empty", sel)
		}
		if err := g.SetSelection("nope"); !errors.Is(err, ErrUnknownRow) {
			t.Errorf("SetSelection(nope) error = %v, want ErrUnknownRow", err)
		}
	})

	t.Run("multi", func(t *testing.T) {
		src := &fakeSource{records: makeRecords(3)}
		g := newTestGrid(t, Config{MultiSelect: true}, src)
		mustLoad(t, g)
		_ = g.SetSelection("1")
		_ = g.SetSelection("3")
		if diff := cmp.Diff([]string{"1", "3"}, g.Selection()); diff != "" {
			t.Errorf("selection (-want +got):\n%s", diff)
		}
		_ = g.SetSelection("1")
		if diff := cmp.Diff([]string{"3"}, g.Selection()); diff != "" {
			t.Errorf("selection after toggle (-want +got):\n%s", diff)
		}
		g.SelectAll()
		if len(g.Selection()) != 3 {
			t.Errorf("SelectAll selected %v", g.Selection())
		}
		g.ResetSelection()
		if len(g.Selection()) != 0 {
			t.Errorf("ResetSelection left %v", g.Selection())
		}
	})
}

func TestVirtualScroll(t *testing.T) {
	src := &fakeSource{records: makeRecords(47)}
	g := newTestGrid(t, Config{Scroll: true}, src)
	mustLoad(t, g)
	ctx := context.Background()

	fetched, err := g.Scroll(ctx, 0, 1, 10)
	if fetched || err != nil {
		t.Fatalf("Scroll inside loaded rows = %v, %v", fetched, err)
	}
	fetched, err = g.Scroll(ctx, 15, 1, 10)
	if !fetched || err != nil {
		t.Fatalf("Scroll past loaded rows = %v, %v", fetched, err)
	}
	ids := g.GetDataIDs()
	if len(ids) != 40 || ids[0] != "1" || ids[39] != "40" {
		t.Errorf("after scroll ids = %d rows %s..%s, want 40 rows 1..40", len(ids), ids[0], ids[len(ids)-1])
	}
	if last := src.requests()[1]; !last.More || last.Page != 2 {
		t.Errorf("continuation request = %+v, want more page 2", last)
	}

	if ok, err := g.LoadMore(ctx); !ok || err != nil {
		t.Fatalf("LoadMore = %v, %v", ok, err)
	}
	if ok, _ := g.LoadMore(ctx); ok {
		t.Error("LoadMore fetched past the last record")
	}
	if n := len(g.GetDataIDs()); n != 47 {
		t.Errorf("loaded %d rows, want 47", n)
	}
}

func TestRowDataAPI(t *testing.T) {
	src := &fakeSource{records: makeRecords(3)}
	g := newTestGrid(t, Config{}, src)
	mustLoad(t, g)

	if err := g.SetRowData("2", map[string]string{"name": "changed"}); err != nil {
		t.Fatalf("SetRowData: %v", err)
	}
	if v, _ := g.GetCell("2", "name"); v != "changed" {
		t.Errorf("GetCell = %q, want changed", v)
	}
	if err := g.SetRowData("2", map[string]string{"price": "1"}); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("SetRowData unknown column error = %v", err)
	}
	id, err := g.AddRowData("", map[string]string{"id": "9", "name": "nine"}, PosFirst)
	if err != nil || id != "9" {
		t.Fatalf("AddRowData = %q, %v, want 9", id, err)
	}
	if err := g.DelRowData("1"); err != nil {
		t.Fatalf("DelRowData: %v", err)
	}
	if diff := cmp.Diff([]string{"9", "2", "3"}, g.GetDataIDs()); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}
	data, _ := g.GetRowData("9")
	if data["name"] != "nine" {
		t.Errorf("GetRowData = %v", data)
	}
	if _, err := g.GetCell("1", "name"); !errors.Is(err, ErrUnknownRow) {
		t.Errorf("GetCell on deleted row error = %v", err)
	}
}
