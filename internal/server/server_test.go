package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"tedgrid/internal/dblib"
	"tedgrid/internal/grid"
	"tedgrid/internal/source"
)

var userColumns = []string{"id", "name", "age"}

func setupUsers(t *testing.T) *dblib.Relation {
	tmpFile, err := os.CreateTemp("", "server-*.db")
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
	_, err = db.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER);
		INSERT INTO users (id, name, age) VALUES
			(1, 'Alice', 30), (2, 'Bob', 25), (3, 'Charlie', 30),
			(4, 'David', 25), (5, 'Eve', 35), (6, 'Frank', 25);
	`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	rel, err := dblib.NewRelation(context.Background(), db, dblib.SQLite, "users")
	if err != nil {
		t.Fatalf("NewRelation() error = %v", err)
	}
	return rel
}

func newUsersServer(t *testing.T, opts ...Option) (*httptest.Server, *dblib.Relation) {
	rel := setupUsers(t)
	src := source.NewSQL(rel)
	opts = append([]Option{WithPersister(src)}, opts...)
	srv := httptest.NewServer(New(src, userColumns, opts...))
	t.Cleanup(srv.Close)
	return srv, rel
}

func get(t *testing.T, u string) (int, string) {
	t.Helper()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, u string, form url.Values) (int, string) {
	t.Helper()
	resp, err := http.PostForm(u, form)
	if err != nil {
		t.Fatalf("POST %s: %v", u, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHandler_JSONEnvelope(t *testing.T) {
	srv, _ := newUsersServer(t)
	status, body := get(t, srv.URL+"?page=2&rows=4&sidx=name&sord=asc&_search=false&nd=1")
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}
	var got jsonEnvelope
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := jsonEnvelope{
		Page: 2, Total: 2, Records: 6,
		Rows: []jsonRow{
			{ID: "5", Cell: []string{"5", "Eve", "35"}},
			{ID: "6", Cell: []string{"6", "Frank", "25"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_XMLEnvelope(t *testing.T) {
	srv, _ := newUsersServer(t, WithFormat(source.FormatXML))
	status, body := get(t, srv.URL+"?page=1&rows=10&_search=true&searchField=name&searchOper=bw&searchString=C")
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}
	if !strings.HasPrefix(body, "<?xml") {
		t.Errorf("body does not start with an XML header: %.40q", body)
	}
	rs, err := source.DefaultXMLReader().Read([]byte(body), userColumns)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if rs.Records != 1 || len(rs.Rows) != 1 {
		t.Fatalf("row set = %+v", rs)
	}
	want := map[string]string{"id": "3", "name": "Charlie", "age": "30"}
	if diff := cmp.Diff(want, rs.Rows[0].Cells); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_Edits(t *testing.T) {
	srv, rel := newUsersServer(t)
	ctx := context.Background()

	status, body := post(t, srv.URL, url.Values{"oper": {"add"}, "id": {"_empty"}, "name": {"Grace"}, "age": {"41"}})
	if status != http.StatusOK {
		t.Fatalf("add status = %d: %s", status, body)
	}
	var reply editReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(editReply{ID: "7", Row: map[string]string{"id": "7", "name": "Grace", "age": "41"}}, reply); diff != "" {
		t.Errorf("add reply mismatch (-want +got):\n%s", diff)
	}

	if status, body := post(t, srv.URL, url.Values{"oper": {"edit"}, "id": {"7"}, "age": {"42"}}); status != http.StatusOK {
		t.Fatalf("edit status = %d: %s", status, body)
	}
	rec, err := rel.Get(ctx, "7")
	if err != nil || rec["age"] != "42" {
		t.Errorf("record after edit = %v, %v", rec, err)
	}

	if status, _ := post(t, srv.URL, url.Values{"oper": {"del"}, "id": {"7"}}); status != http.StatusOK {
		t.Errorf("del status = %d", status)
	}

	tests := []struct {
		name   string
		form   url.Values
		status int
	}{
		{"unknown row", url.Values{"oper": {"del"}, "id": {"7"}}, http.StatusNotFound},
		{"unknown oper", url.Values{"oper": {"merge"}, "id": {"1"}}, http.StatusBadRequest},
		{"edit without id", url.Values{"oper": {"edit"}, "name": {"x"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := post(t, srv.URL, tt.form); status != tt.status {
				t.Errorf("status = %d, want %d: %s", status, tt.status, body)
			}
		})
	}

	t.Run("edit over GET", func(t *testing.T) {
		if status, _ := get(t, srv.URL+"?oper=del&id=1"); status != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", status)
		}
	})
}

func TestHandler_ReadOnlyAndBadRequests(t *testing.T) {
	rel := setupUsers(t)
	var failures atomic.Int32
	h := New(source.NewSQL(rel), userColumns, WithErrorHandler(func(*http.Request, error) { failures.Add(1) }))
	srv := httptest.NewServer(h)
	defer srv.Close()

	if status, _ := post(t, srv.URL, url.Values{"oper": {"del"}, "id": {"1"}}); status != http.StatusForbidden {
		t.Errorf("edit on read-only grid: status = %d, want 403", status)
	}
	if status, _ := get(t, srv.URL+"?page=two"); status != http.StatusBadRequest {
		t.Errorf("bad page: status = %d, want 400", status)
	}
	if status, _ := get(t, srv.URL+"?_search=true&searchField=nickname&searchString=x"); status != http.StatusInternalServerError {
		t.Errorf("unknown search field: status = %d, want 500", status)
	}
	if n := failures.Load(); n != 3 {
		t.Errorf("error handler calls = %d, want 3", n)
	}

	req, _ := http.NewRequest(http.MethodPut, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d, want 405", resp.StatusCode)
	}
}

// TestGridOverHTTP drives a grid through the HTTP source against the handler.
func TestGridOverHTTP(t *testing.T) {
	srv, rel := newUsersServer(t)
	remote := source.NewHTTP(srv.URL, source.FormatJSON)
	g, err := grid.New(grid.Config{
		Columns: []grid.Column{
			{Name: "id", Key: true, Hidden: true},
			{Name: "name", Sortable: true, Editable: true, EditRules: grid.EditRules{Required: true}},
			{Name: "age", Sortable: true, Editable: true, Formatter: grid.FormatInteger, EditRules: grid.EditRules{Integer: true}},
		},
		RowsPerPage: 4,
		SortName:    "name",
	}, remote, grid.WithPersister(remote))
	if err != nil {
		t.Fatalf("grid.New() error = %v", err)
	}
	ctx := context.Background()

	if err := g.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2", "3", "4"}, g.GetDataIDs()); diff != "" {
		t.Errorf("page 1 ids mismatch (-want +got):\n%s", diff)
	}
	if st := g.State(); st.TotalPages != 2 || st.TotalRecords != 6 {
		t.Errorf("pager = %d pages %d records, want 2/6", st.TotalPages, st.TotalRecords)
	}

	if err := g.Paginate(ctx, grid.PageNext, 0); err != nil {
		t.Fatalf("Paginate() error = %v", err)
	}
	if diff := cmp.Diff([]string{"5", "6"}, g.GetDataIDs()); diff != "" {
		t.Errorf("page 2 ids mismatch (-want +got):\n%s", diff)
	}

	if err := g.SortBy(ctx, "age"); err != nil {
		t.Fatalf("SortBy() error = %v", err)
	}
	if diff := cmp.Diff([]string{"2", "4", "6", "1"}, g.GetDataIDs()); diff != "" {
		t.Errorf("sorted ids mismatch (-want +got):\n%s", diff)
	}

	ed := g.Editor()
	if _, err := ed.EditRow(ctx, "2"); err != nil {
		t.Fatalf("EditRow() error = %v", err)
	}
	if err := ed.SetValue("2", "name", "Bobby"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if st, err := ed.SaveRow(ctx, "2"); err != nil || st != grid.StateViewing {
		t.Fatalf("SaveRow() = %s, %v", st, err)
	}
	rec, err := rel.Get(ctx, "2")
	if err != nil || rec["name"] != "Bobby" {
		t.Errorf("stored record = %v, %v", rec, err)
	}
	if v, _ := g.GetCell("2", "name"); v != "Bobby" {
		t.Errorf("grid cell = %q, want Bobby", v)
	}
}
