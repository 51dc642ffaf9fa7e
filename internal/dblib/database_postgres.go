package dblib

import (
	"context"
	"database/sql"
	"strings"
)

func splitSchema(tableName, def string) (string, string) {
	if dot := strings.IndexByte(tableName, '.'); dot != -1 {
		return tableName[:dot], tableName[dot+1:]
	}
	return def, tableName
}

// loadColumnsPostgreSQL reads information_schema for columns and the primary key.
func loadColumnsPostgreSQL(ctx context.Context, db *sql.DB, tableName string) ([]Column, []string, error) {
	schema, rel := splitSchema(tableName, "public")

	rows, err := db.QueryContext(ctx, `SELECT column_name, data_type, is_nullable, is_generated, column_default
			FROM information_schema.columns
			WHERE table_schema = $1 AND table_name = $2
			ORDER BY ordinal_position`, schema, rel)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var columns []Column
	for rows.Next() {
		var col Column
		var nullable, generated string
		var dflt sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &generated, &dflt); err != nil {
			return nil, nil, err
		}
		// serial and identity columns take their default on insert
		col.Nullable = strings.EqualFold(nullable, "yes") || strings.HasPrefix(dflt.String, "nextval(")
		col.Generated = strings.EqualFold(generated, "always")
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	keyRows, err := db.QueryContext(ctx, `SELECT kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
			ORDER BY kcu.ordinal_position`, schema, rel)
	if err != nil {
		return nil, nil, err
	}
	defer keyRows.Close()
	var key []string
	for keyRows.Next() {
		var name string
		if err := keyRows.Scan(&name); err != nil {
			return nil, nil, err
		}
		key = append(key, name)
	}
	return columns, key, keyRows.Err()
}
