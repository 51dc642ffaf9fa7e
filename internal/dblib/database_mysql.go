package dblib

import (
	"context"
	"database/sql"
	"strings"
)

// loadColumnsMySQL reads information_schema of the current database.
func loadColumnsMySQL(ctx context.Context, db *sql.DB, tableName string) ([]Column, []string, error) {
	rows, err := db.QueryContext(ctx, `SELECT column_name, column_type, is_nullable, column_key, extra
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`, tableName)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var columns []Column
	var key []string
	for rows.Next() {
		var col Column
		var nullable, colKey, extra string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &colKey, &extra); err != nil {
			return nil, nil, err
		}
		extra = strings.ToLower(extra)
		col.Nullable = strings.EqualFold(nullable, "yes") || strings.Contains(extra, "auto_increment")
		col.Generated = strings.Contains(extra, "generated")
		if colKey == "PRI" {
			key = append(key, col.Name)
		}
		columns = append(columns, col)
	}
	return columns, key, rows.Err()
}
