package dblib

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
)

// loadColumnsSQLite reads PRAGMA table_info. Primary key columns are returned
// in key ordinal order.
func loadColumnsSQLite(ctx context.Context, db *sql.DB, tableName string) ([]Column, []string, error) {
	query := fmt.Sprintf("PRAGMA table_xinfo(%s)", quoteIdent(SQLite, tableName))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	type pkEntry struct {
		ord  int
		name string
	}
	var columns []Column
	var pkEntries []pkEntry
	for rows.Next() {
		var (
			cid       int
			col       Column
			notNull   int
			dfltValue sql.NullString
			pk        int
			hidden    int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dfltValue, &pk, &hidden); err != nil {
			return nil, nil, err
		}
		if hidden == 1 {
			// hidden columns of virtual tables
			continue
		}
		col.Nullable = notNull == 0
		col.Generated = hidden == 2 || hidden == 3
		if pk > 0 {
			pkEntries = append(pkEntries, pkEntry{ord: pk, name: col.Name})
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	slices.SortFunc(pkEntries, func(a, b pkEntry) int { return a.ord - b.ord })
	key := make([]string, len(pkEntries))
	for i, e := range pkEntries {
		key[i] = e.name
	}
	// INTEGER PRIMARY KEY aliases rowid and is filled in on insert
	if len(key) == 1 {
		for i := range columns {
			if columns[i].Name == key[0] && strings.EqualFold(columns[i].Type, "integer") {
				columns[i].Nullable = true
			}
		}
	}
	return columns, key, nil
}
