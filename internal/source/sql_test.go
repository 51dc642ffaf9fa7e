package source

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"tedgrid/internal/dblib"
	"tedgrid/internal/grid"
)

func setupTestDB(t *testing.T, schema string) *sql.DB {
	tmpFile, err := os.CreateTemp("", "source-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	db, err := sql.Open("sqlite3", tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return db
}

const usersSchema = `
	CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER);
	INSERT INTO users (id, name, age) VALUES
		(1, 'Alice', 30), (2, 'Bob', 25), (3, 'Charlie', 30),
		(4, 'David', 25), (5, 'Eve', 35), (6, 'Frank', 25);
`

func newUsersSource(t *testing.T) *SQL {
	db := setupTestDB(t, usersSchema)
	rel, err := dblib.NewRelation(context.Background(), db, dblib.SQLite, "users")
	if err != nil {
		t.Fatalf("NewRelation() error = %v", err)
	}
	return NewSQL(rel)
}

func ids(rows []*grid.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestSQL_Fetch(t *testing.T) {
	src := newUsersSource(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     grid.Request
		ids     []string
		total   int
		records int
	}{
		{
			name:  "second page by name",
			req:   grid.Request{Page: 2, Rows: 4, SortIndex: "name", Columns: []string{"name", "age"}},
			ids:   []string{"5", "6"},
			total: 2, records: 6,
		},
		{
			name:  "age descending",
			req:   grid.Request{Page: 1, Rows: 2, SortIndex: "age", SortOrder: grid.Desc},
			ids:   []string{"5", "1"},
			total: 3, records: 6,
		},
		{
			name: "search",
			req: grid.Request{
				Page: 1, Rows: 10, Search: true,
				Filter: &grid.Filter{Field: "age", Oper: "eq", Value: "25"},
			},
			ids:   []string{"2", "4", "6"},
			total: 1, records: 3,
		},
		{
			name:  "unpaged",
			req:   grid.Request{Page: 1, SortIndex: "unknown"},
			ids:   []string{"1", "2", "3", "4", "5", "6"},
			total: 1, records: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := src.Fetch(ctx, tt.req)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if diff := cmp.Diff(tt.ids, ids(rs.Rows)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
			if rs.Total != tt.total || rs.Records != tt.records {
				t.Errorf("total/records = %d/%d, want %d/%d", rs.Total, rs.Records, tt.total, tt.records)
			}
		})
	}

	t.Run("key column always selected", func(t *testing.T) {
		rs, err := src.Fetch(ctx, grid.Request{Page: 1, Rows: 1, Columns: []string{"name", "nickname"}})
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		want := map[string]string{"id": "1", "name": "Alice"}
		if diff := cmp.Diff(want, rs.Rows[0].Cells); diff != "" {
			t.Errorf("cells mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSQL_Persist(t *testing.T) {
	src := newUsersSource(t)
	ctx := context.Background()

	res, err := src.Persist(ctx, grid.Operation{Kind: grid.OperAdd, Values: map[string]string{"name": "Grace", "age": "41", "bogus": "x"}})
	if err != nil {
		t.Fatalf("Persist(add) error = %v", err)
	}
	if diff := cmp.Diff(grid.Result{ID: "7", Values: map[string]string{"id": "7", "name": "Grace", "age": "41"}}, res); diff != "" {
		t.Errorf("Persist(add) mismatch (-want +got):\n%s", diff)
	}

	res, err = src.Persist(ctx, grid.Operation{Kind: grid.OperEdit, ID: "7", Values: map[string]string{"id": "99", "name": "Gina"}})
	if err != nil {
		t.Fatalf("Persist(edit) error = %v", err)
	}
	if res.ID != "7" || res.Values["name"] != "Gina" || res.Values["age"] != "41" {
		t.Errorf("Persist(edit) = %+v", res)
	}

	if _, err := src.Persist(ctx, grid.Operation{Kind: grid.OperDel, ID: "7"}); err != nil {
		t.Fatalf("Persist(del) error = %v", err)
	}
	_, err = src.Persist(ctx, grid.Operation{Kind: grid.OperDel, ID: "7"})
	if !errors.Is(err, grid.ErrUnknownRow) {
		t.Errorf("second delete error = %v, want ErrUnknownRow", err)
	}
}

func TestSQL_NestedSetTree(t *testing.T) {
	db := setupTestDB(t, `
		CREATE TABLE nodes (id INTEGER PRIMARY KEY, name TEXT, level INTEGER, lft INTEGER, rgt INTEGER);
		INSERT INTO nodes VALUES
			(1, 'root', 0, 1, 6), (2, 'other', 0, 7, 8),
			(3, 'left', 1, 2, 3), (4, 'right', 1, 4, 5);
	`)
	rel, err := dblib.NewRelation(context.Background(), db, dblib.SQLite, "nodes")
	if err != nil {
		t.Fatalf("NewRelation() error = %v", err)
	}
	src := NewSQL(rel)
	src.Tree = &TreeColumns{Model: grid.NestedSet, Level: "level", Left: "lft", Right: "rgt"}
	ctx := context.Background()

	rs, err := src.Fetch(ctx, grid.Request{Page: 1, Rows: 10, Columns: []string{"id", "name"}})
	if err != nil {
		t.Fatalf("Fetch(roots) error = %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, ids(rs.Rows)); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}
	if rs.Rows[0].Cells["lft"] != "1" || rs.Rows[0].Cells["rgt"] != "6" {
		t.Errorf("bookkeeping cells not selected: %v", rs.Rows[0].Cells)
	}

	rs, err = src.Fetch(ctx, grid.Request{Page: 1, Node: &grid.NodeRequest{ID: "1", Level: 0, Lft: 1, Rgt: 6, Model: grid.NestedSet}})
	if err != nil {
		t.Fatalf("Fetch(children) error = %v", err)
	}
	if diff := cmp.Diff([]string{"3", "4"}, ids(rs.Rows)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestSQL_AdjacencyTree(t *testing.T) {
	db := setupTestDB(t, `
		CREATE TABLE folders (id TEXT PRIMARY KEY, name TEXT, parent TEXT);
		INSERT INTO folders VALUES ('a', 'home', NULL), ('b', 'docs', 'a'), ('c', 'music', 'a'), ('z', 'tmp', NULL);
	`)
	rel, err := dblib.NewRelation(context.Background(), db, dblib.SQLite, "folders")
	if err != nil {
		t.Fatalf("NewRelation() error = %v", err)
	}
	src := NewSQL(rel)
	src.Tree = &TreeColumns{Model: grid.Adjacency, Parent: "parent"}
	ctx := context.Background()

	rs, err := src.Fetch(ctx, grid.Request{Page: 1})
	if err != nil {
		t.Fatalf("Fetch(roots) error = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "z"}, ids(rs.Rows)); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}

	rs, err = src.Fetch(ctx, grid.Request{Page: 1, Node: &grid.NodeRequest{ID: "a", ParentID: "a", Model: grid.Adjacency}})
	if err != nil {
		t.Fatalf("Fetch(children) error = %v", err)
	}
	if diff := cmp.Diff([]string{"b", "c"}, ids(rs.Rows)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestLocal_FetchOnce(t *testing.T) {
	src := NewLocal([]map[string]string{{"id": "x", "v": "1"}, {"v": "2"}})
	if !src.IsLocal() {
		t.Fatal("IsLocal() = false")
	}
	rs, err := src.Fetch(context.Background(), grid.Request{Page: 3, Rows: 1})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if diff := cmp.Diff([]string{"x", ""}, ids(rs.Rows)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if rs.Page != 1 || rs.Total != 1 || rs.Records != 2 {
		t.Errorf("envelope = %d/%d/%d, want 1/1/2", rs.Page, rs.Total, rs.Records)
	}
	if _, err := src.Fetch(context.Background(), grid.Request{Page: 1}); !errors.Is(err, grid.ErrLocalSource) {
		t.Errorf("second Fetch() error = %v, want ErrLocalSource", err)
	}
}

func TestSQL_Bind(t *testing.T) {
	src := newUsersSource(t)
	src.Bind = map[string]string{"owner_age": "age"}

	rs, err := src.Fetch(context.Background(), grid.Request{Page: 1, Extra: map[string]string{"owner_age": "30", "other": "x"}})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if diff := cmp.Diff([]string{"1", "3"}, ids(rs.Rows)); diff != "" {
		t.Errorf("bound ids mismatch (-want +got):\n%s", diff)
	}
}
