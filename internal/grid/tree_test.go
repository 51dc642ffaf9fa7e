package grid

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func treeColumns() []Column {
	return []Column{
		{Name: "id", Key: true, Hidden: true},
		{Name: "name", Sortable: true, Editable: true},
	}
}

func nestedSource() *fakeSource {
	return &fakeSource{
		records: []map[string]string{
			{"id": "1", "name": "Fruits", "level": "0", "lft": "1", "rgt": "6", "isLeaf": "false"},
			{"id": "2", "name": "Vegetables", "level": "0", "lft": "7", "rgt": "8", "isLeaf": "true"},
		},
		children: map[string][]map[string]string{
			"1": {
				{"id": "3", "name": "Apple", "level": "7", "lft": "2", "rgt": "3", "isLeaf": "true"},
				{"id": "4", "name": "Banana", "level": "7", "lft": "4", "rgt": "5", "isLeaf": "true"},
			},
		},
	}
}

func newTreeGrid(t *testing.T, src *fakeSource, tree *Tree) *Grid {
	t.Helper()
	g := newTestGrid(t, Config{Columns: treeColumns(), RowsPerPage: 100}, src, WithExtensions(tree))
	mustLoad(t, g)
	return g
}

func TestTree_InstallAddsColumns(t *testing.T) {
	tree := NewTree(NestedSet, "name")
	g := newTreeGrid(t, nestedSource(), tree)

	var hidden []string
	for _, c := range g.Columns() {
		if c.Hidden {
			hidden = append(hidden, c.Name)
		}
	}
	want := []string{"id", "level", "lft", "rgt", "isLeaf", "expanded", "loaded"}
	if diff := cmp.Diff(want, hidden); diff != "" {
		t.Errorf("hidden columns (-want +got):\n%s", diff)
	}
	if tree.ExpandColumnIndex() != 1 {
		t.Errorf("expand column index = %d, want 1", tree.ExpandColumnIndex())
	}
	if v := g.ViewRows()[0]; v.ExpandCell != 0 {
		t.Errorf("view expand cell = %d, want 0", v.ExpandCell)
	}

	_, err := New(Config{Columns: treeColumns()}, &fakeSource{}, WithExtensions(NewTree(NestedSet, "missing")))
	var setup *SetupError
	if !errors.As(err, &setup) {
		t.Errorf("unknown expand column error = %v, want *SetupError", err)
	}
}

func TestTree_ExpandNestedSetLazily(t *testing.T) {
	src := nestedSource()
	tree := NewTree(NestedSet, "name")
	g := newTreeGrid(t, src, tree)
	ctx := context.Background()

	if err := tree.ExpandNode(ctx, "1"); err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	reqs := src.requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	want := &NodeRequest{ID: "1", Level: 0, Lft: 1, Rgt: 6, Model: NestedSet}
	if diff := cmp.Diff(want, reqs[1].Node); diff != "" {
		t.Errorf("node request (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "3", "4", "2"}, g.GetDataIDs()); diff != "" {
		t.Errorf("row order (-want +got):\n%s", diff)
	}
	for _, id := range []string{"3", "4"} {
		if d, _ := tree.GetNodeDepth(id); d != 1 {
			t.Errorf("depth of %s = %d, want 1", id, d)
		}
		if p, _ := tree.GetNodeParent(id); p == nil || p.ID != "1" {
			t.Errorf("parent of %s = %v, want 1", id, p)
		}
	}
	if err := VerifyNestedSet(g.Rows()); err != nil {
		t.Errorf("VerifyNestedSet: %v", err)
	}

	if err := tree.CollapseNode("1"); err != nil {
		t.Fatalf("CollapseNode: %v", err)
	}
	if n := len(g.ViewRows()); n != 2 {
		t.Errorf("visible rows after collapse = %d, want 2", n)
	}
	if ok, _ := tree.IsVisibleNode("3"); ok {
		t.Error("child visible under collapsed parent")
	}
	if n := len(g.GetDataIDs()); n != 4 {
		t.Errorf("collapse removed rows: %d left", n)
	}

	if err := tree.ToggleNode(ctx, "1"); err != nil {
		t.Fatalf("ToggleNode: %v", err)
	}
	if n := len(src.requests()); n != 2 {
		t.Errorf("re-expand fetched again: %d requests", n)
	}
	if ok, _ := tree.IsVisibleNode("3"); !ok {
		t.Error("child hidden after re-expand")
	}
	kids, _ := tree.GetNodeChildren("1")
	if len(kids) != 2 {
		t.Errorf("children = %d, want 2", len(kids))
	}
	if leaf, _ := tree.IsLeaf("3"); !leaf {
		t.Error("Apple is not a leaf")
	}
}

func TestTree_BadRangeRollsBack(t *testing.T) {
	src := nestedSource()
	src.children["1"][1]["rgt"] = "9"
	tree := NewTree(NestedSet, "name")
	g := newTreeGrid(t, src, tree)

	err := tree.ExpandNode(context.Background(), "1")
	var rerr *TreeRangeError
	if !errors.As(err, &rerr) || rerr.Parent != "1" || rerr.Child != "4" {
		t.Fatalf("ExpandNode error = %v, want range error of 4 under 1", err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, g.GetDataIDs()); diff != "" {
		t.Errorf("rows after rollback (-want +got):\n%s", diff)
	}
	row, _ := g.Row("1")
	if row.Loaded || row.Expanded {
		t.Errorf("parent flags after rollback: loaded=%v expanded=%v", row.Loaded, row.Expanded)
	}
}

func TestTree_ExpandAdjacency(t *testing.T) {
	src := &fakeSource{
		records: []map[string]string{
			{"id": "a", "name": "A", "level": "0", "parent": "null", "isLeaf": "false"},
			{"id": "z", "name": "Z", "level": "0", "parent": "", "isLeaf": "false"},
		},
		children: map[string][]map[string]string{
			"a": {
				{"id": "b", "name": "B", "isLeaf": "false"},
				{"id": "c", "name": "C", "isLeaf": "true"},
			},
			"b": {
				{"id": "d", "name": "D", "isLeaf": "true"},
			},
		},
	}
	tree := NewTree(Adjacency, "name")
	g := newTreeGrid(t, src, tree)
	ctx := context.Background()

	if err := tree.ExpandNode(ctx, "a"); err != nil {
		t.Fatalf("ExpandNode(a): %v", err)
	}
	if node := src.requests()[1].Node; node.ParentID != "a" || node.ID != "a" {
		t.Errorf("node request = %+v, want parent id a", node)
	}
	if err := tree.ExpandNode(ctx, "b"); err != nil {
		t.Fatalf("ExpandNode(b): %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "d", "c", "z"}, g.GetDataIDs()); diff != "" {
		t.Errorf("row order (-want +got):\n%s", diff)
	}
	if got, _ := g.GetCell("d", "parent"); got != "b" {
		t.Errorf("parent cell of d = %q, want b", got)
	}
	anc, _ := tree.GetNodeAncestors("d")
	var ids []string
	for _, r := range anc {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"b", "a"}, ids); diff != "" {
		t.Errorf("ancestors (-want +got):\n%s", diff)
	}
	if d, _ := tree.GetNodeDepth("d"); d != 2 {
		t.Errorf("depth of d = %d, want 2", d)
	}
	if roots := tree.GetRootNodes(); len(roots) != 2 {
		t.Errorf("roots = %d, want 2", len(roots))
	}

	if err := tree.CollapseNode("a"); err != nil {
		t.Fatalf("CollapseNode: %v", err)
	}
	if ok, _ := tree.IsVisibleNode("d"); ok {
		t.Error("grandchild visible under collapsed root")
	}
	if n := len(g.ViewRows()); n != 2 {
		t.Errorf("visible rows = %d, want 2", n)
	}
}

func TestTree_LocalSortBySiblings(t *testing.T) {
	recs := []map[string]string{
		{"id": "1", "name": "Zoo", "parent": ""},
		{"id": "3", "name": "m", "parent": "1"},
		{"id": "4", "name": "b", "parent": "1"},
		{"id": "7", "name": "q", "parent": "4"},
		{"id": "8", "name": "D", "parent": "4"},
		{"id": "2", "name": "Ant", "parent": ""},
		{"id": "5", "name": "y", "parent": "2"},
		{"id": "6", "name": "c", "parent": "2"},
	}
	src := &fakeSource{records: recs, local: true}
	tree := NewTree(Adjacency, "name")
	g := newTreeGrid(t, src, tree)

	if err := g.SortBy(context.Background(), "name"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	want := []string{"2", "6", "5", "1", "4", "8", "7", "3"}
	if diff := cmp.Diff(want, g.GetDataIDs()); diff != "" {
		t.Errorf("sorted order (-want +got):\n%s", diff)
	}
	if n := len(src.requests()); n != 1 {
		t.Errorf("local tree fetched %d times", n)
	}

	if err := tree.ExpandNode(context.Background(), "2"); err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	if n := len(src.requests()); n != 1 {
		t.Errorf("local expand fetched: %d requests", n)
	}
}

func TestTree_LocalSearchKeepsAncestors(t *testing.T) {
	recs := []map[string]string{
		{"id": "1", "name": "Fruit", "parent": ""},
		{"id": "2", "name": "Apple", "parent": "1"},
		{"id": "3", "name": "Pear", "parent": "1"},
		{"id": "5", "name": "Pear drops", "parent": "3"},
		{"id": "4", "name": "Vegetables", "parent": ""},
	}
	src := &fakeSource{records: recs, local: true}
	tree := NewTree(Adjacency, "name")
	g := newTreeGrid(t, src, tree)
	ctx := context.Background()

	if err := g.Search(ctx, "name", "cn", "drop"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	var ids []string
	for _, v := range g.ViewRows() {
		ids = append(ids, v.ID)
	}
	if diff := cmp.Diff([]string{"1", "3", "5"}, ids); diff != "" {
		t.Errorf("visible rows (-want +got):\n%s", diff)
	}

	if err := g.ClearSearch(ctx); err != nil {
		t.Fatalf("ClearSearch: %v", err)
	}
	if n := len(g.GetDataIDs()); n != len(recs) {
		t.Errorf("rows after clearing search = %d, want %d", n, len(recs))
	}
}

func TestVerifyNestedSet(t *testing.T) {
	node := func(id string, l, r int) *Row { return &Row{ID: id, Lft: l, Rgt: r} }
	tests := []struct {
		name string
		rows []*Row
		ok   bool
	}{
		{"valid", []*Row{node("a", 1, 8), node("b", 2, 3), node("c", 4, 7), node("d", 5, 6), node("e", 9, 10)}, true},
		{"empty range", []*Row{node("a", 3, 3)}, false},
		{"overlap", []*Row{node("a", 1, 6), node("b", 4, 8)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyNestedSet(tt.rows)
			if (err == nil) != tt.ok {
				t.Errorf("VerifyNestedSet() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
