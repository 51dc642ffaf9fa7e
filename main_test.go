package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tedgrid/internal/dblib"
)

func TestResolveGrid(t *testing.T) {
	file := &GridFile{Grids: map[string]GridDef{
		"people": {Table: "users"},
	}}

	tests := []struct {
		name     string
		args     []string
		wantName string
		wantDef  GridDef
		wantErr  bool
	}{
		{"named grid", []string{"people"}, "people", GridDef{Table: "users"}, false},
		{"table", []string{"orders"}, "orders", GridDef{Table: "orders"}, false},
		{"table with columns", []string{"orders.id,total"}, "orders", GridDef{Table: "orders", Show: []string{"id", "total"}}, false},
		{"only grid", nil, "people", GridDef{Table: "users"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, def, err := resolveGrid(file, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveGrid() error = %v, wantErr %v", err, tt.wantErr)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if diff := cmp.Diff(tt.wantDef, def); diff != "" {
				t.Errorf("def mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, _, err := resolveGrid(&GridFile{}, nil); err == nil {
		t.Error("resolveGrid() with nothing to open succeeded")
	}
}

func TestMountGrids(t *testing.T) {
	db, _ := setupTestDB(t)
	file := &GridFile{Grids: map[string]GridDef{
		"people": {Table: "users"},
		"colors": {Data: []map[string]string{{"id": "1"}}},
	}}

	mux := http.NewServeMux()
	mounted, err := mountGrids(context.Background(), mux, file, []string{"colors", "people"}, db, dblib.SQLite)
	if err != nil {
		t.Fatalf("mountGrids() error = %v", err)
	}
	if diff := cmp.Diff([]string{"people"}, mounted); diff != "" {
		t.Errorf("mounted (-want +got):\n%s", diff)
	}

	srv := httptest.NewServer(mux)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/grids/people?page=2&rows=4&sidx=id&sord=asc")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var reply struct {
		Page    int `json:"page"`
		Total   int `json:"total"`
		Records int `json:"records"`
		Rows    []struct {
			ID string `json:"id"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if reply.Page != 2 || reply.Total != 2 || reply.Records != 6 {
		t.Errorf("envelope = page %d total %d records %d, want 2/2/6", reply.Page, reply.Total, reply.Records)
	}
	var ids []string
	for _, r := range reply.Rows {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"5", "6"}, ids); diff != "" {
		t.Errorf("row ids (-want +got):\n%s", diff)
	}

	if _, err := mountGrids(context.Background(), http.NewServeMux(), file, []string{"missing"}, db, dblib.SQLite); err == nil {
		t.Error("mountGrids() accepted an unknown grid")
	}
}
