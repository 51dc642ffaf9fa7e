package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"tedgrid/internal/dblib"
	"tedgrid/internal/grid"
)

// setupTestDB creates a sqlite file with a users table and an adjacency
// list of categories.
func setupTestDB(t *testing.T) (*sql.DB, Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			age INTEGER
		)`,
		`INSERT INTO users (id, name, age) VALUES
			(1, 'Alice', 30), (2, 'Bob', 25), (3, 'Charlie', 30),
			(4, 'David', 25), (5, 'Eve', 35), (6, 'Frank', 25)`,
		`CREATE TABLE categories (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			parent INTEGER
		)`,
		`INSERT INTO categories (id, name, parent) VALUES
			(1, 'Fruit', NULL), (2, 'Apple', 1), (3, 'Pear', 1), (4, 'Vegetables', NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to set up database: %v", err)
		}
	}
	return db, Config{Database: path}
}

func openTestSession(t *testing.T, db *sql.DB, def GridDef) *session {
	t.Helper()
	s, err := openSession(context.Background(), "test", def, db, dblib.SQLite, grid.DefaultLocale(), defaultSettings(), grid.Hooks{})
	if err != nil {
		t.Fatalf("openSession() error = %v", err)
	}
	return s
}

func viewIDs(g *grid.Grid) []string {
	var ids []string
	for _, v := range g.ViewRows() {
		ids = append(ids, v.ID)
	}
	return ids
}
