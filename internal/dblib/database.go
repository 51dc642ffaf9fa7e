package dblib

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrReadOnly is returned by writes against a custom query relation.
	ErrReadOnly = errors.New("relation is read-only")
	ErrNotFound = errors.New("record not found")
)

// NewRelation loads the schema of a table and picks its lookup key.
func NewRelation(ctx context.Context, db *sql.DB, dbType DatabaseType, tableName string) (*Relation, error) {
	if tableName == "" {
		return nil, fmt.Errorf("table name is required")
	}
	wrapErr := func(err error) (*Relation, error) {
		return nil, fmt.Errorf("failed to load table schema: %w", err)
	}

	var (
		columns []Column
		key     []string
		err     error
	)
	switch dbType {
	case SQLite:
		columns, key, err = loadColumnsSQLite(ctx, db, tableName)
	case PostgreSQL:
		columns, key, err = loadColumnsPostgreSQL(ctx, db, tableName)
	case MySQL:
		columns, key, err = loadColumnsMySQL(ctx, db, tableName)
	default:
		err = fmt.Errorf("unsupported database type: %v", dbType)
	}
	if err != nil {
		return wrapErr(err)
	}
	if len(columns) == 0 {
		return wrapErr(fmt.Errorf("table %s not found", tableName))
	}
	if len(key) == 0 {
		return wrapErr(fmt.Errorf("no primary key found"))
	}
	debugLog("relation %s: %d columns, key %v\n", tableName, len(columns), key)

	return newRelation(db, dbType, tableName, columns, key), nil
}

func newRelation(db *sql.DB, dbType DatabaseType, name string, columns []Column, key []string) *Relation {
	rel := &Relation{
		DB:          db,
		DBType:      dbType,
		Name:        name,
		Columns:     columns,
		ColumnIndex: make(map[string]int, len(columns)),
		Key:         key,
	}
	for i, c := range columns {
		rel.ColumnIndex[c.Name] = i
	}
	return rel
}

// ColumnNames returns the column names in table order.
func (rel *Relation) ColumnNames() []string {
	names := make([]string, len(rel.Columns))
	for i, c := range rel.Columns {
		names[i] = c.Name
	}
	return names
}

func (rel *Relation) HasColumn(name string) bool {
	_, ok := rel.ColumnIndex[name]
	return ok
}

func (rel *Relation) typeOf(name string) string {
	if i, ok := rel.ColumnIndex[name]; ok {
		return rel.Columns[i].Type
	}
	return ""
}

func (rel *Relation) from() string {
	if rel.IsCustomSQL {
		return "(" + rel.SQLStatement + ") AS q"
	}
	return quoteQualified(rel.DBType, rel.Name)
}

func (rel *Relation) checkColumns(names []string) error {
	for _, n := range names {
		if !rel.HasColumn(n) {
			return fmt.Errorf("unknown column %q in %s", n, rel.Name)
		}
	}
	return nil
}

func (rel *Relation) checkConds(where []Cond) error {
	for _, c := range where {
		if !rel.HasColumn(c.Column) {
			return fmt.Errorf("unknown column %q in %s", c.Column, rel.Name)
		}
	}
	return nil
}

// Count returns the number of records matching where.
func (rel *Relation) Count(ctx context.Context, where []Cond) (int, error) {
	if err := rel.checkConds(where); err != nil {
		return 0, err
	}
	ph := &placeholders{dbType: rel.DBType}
	clause, args, err := whereClause(rel.DBType, where, rel.typeOf, ph)
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + rel.from() + clause
	var n int
	if err := rel.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

// Select returns one page of records.
func (rel *Relation) Select(ctx context.Context, page Page) ([]Record, error) {
	columns := page.Columns
	if len(columns) == 0 {
		columns = rel.ColumnNames()
	}
	if err := rel.checkColumns(columns); err != nil {
		return nil, err
	}
	if err := rel.checkConds(page.Where); err != nil {
		return nil, err
	}
	if page.Sort != nil && !rel.HasColumn(page.Sort.Name) {
		return nil, fmt.Errorf("unknown sort column %q in %s", page.Sort.Name, rel.Name)
	}
	query, args, err := selectQuery(rel.DBType, rel.from(), columns, page, rel.Key, rel.typeOf)
	if err != nil {
		return nil, err
	}
	debugLog("select: %s %v\n", query, args)
	rows, err := rel.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select failed: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan, columns)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordID joins the key values of a record into a row id. Composite keys
// are joined with commas.
func (rel *Relation) RecordID(rec Record) string {
	parts := make([]string, len(rel.Key))
	for i, k := range rel.Key {
		parts[i] = rec[k]
	}
	return strings.Join(parts, ",")
}

// keyWhere turns a row id back into key conditions.
func (rel *Relation) keyWhere(id string) ([]Cond, error) {
	if len(rel.Key) == 0 {
		return nil, ErrReadOnly
	}
	parts := []string{id}
	if len(rel.Key) > 1 {
		parts = strings.Split(id, ",")
	}
	if len(parts) != len(rel.Key) {
		return nil, fmt.Errorf("id %q does not match key %v", id, rel.Key)
	}
	conds := make([]Cond, len(parts))
	for i, p := range parts {
		conds[i] = Cond{Column: rel.Key[i], Op: "eq", Value: p}
	}
	return conds, nil
}

// Get fetches one record by row id.
func (rel *Relation) Get(ctx context.Context, id string) (Record, error) {
	where, err := rel.keyWhere(id)
	if err != nil {
		return nil, err
	}
	recs, err := rel.Select(ctx, Page{Where: where, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return recs[0], nil
}

func (rel *Relation) writable(values map[string]string) error {
	if rel.IsCustomSQL {
		return ErrReadOnly
	}
	for name := range values {
		i, ok := rel.ColumnIndex[name]
		if !ok {
			return fmt.Errorf("unknown column %q in %s", name, rel.Name)
		}
		if rel.Columns[i].Generated {
			return fmt.Errorf("column %q is generated", name)
		}
	}
	return nil
}

// sortedNames orders value names by table column order so statements are stable.
func (rel *Relation) sortedNames(values map[string]string) []string {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	slices.SortFunc(names, func(a, b string) int { return rel.ColumnIndex[a] - rel.ColumnIndex[b] })
	return names
}

func (rel *Relation) returningList() string {
	cols := make([]string, len(rel.Columns))
	for i, c := range rel.Columns {
		cols[i] = quoteIdent(rel.DBType, c.Name)
	}
	return strings.Join(cols, ", ")
}

// Insert adds a record and returns it as stored, server defaults included.
// Empty values of nullable columns are left to the database default.
func (rel *Relation) Insert(ctx context.Context, values map[string]string) (Record, error) {
	if err := rel.writable(values); err != nil {
		return nil, err
	}
	ph := &placeholders{dbType: rel.DBType}
	var cols, marks []string
	var args []any
	for _, name := range rel.sortedNames(values) {
		col := rel.Columns[rel.ColumnIndex[name]]
		raw := values[name]
		if raw == "" && col.Nullable {
			continue
		}
		cols = append(cols, quoteIdent(rel.DBType, name))
		marks = append(marks, ph.next())
		args = append(args, toDBValue(col.Type, raw))
	}

	table := quoteQualified(rel.DBType, rel.Name)
	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table)
		if rel.DBType == MySQL {
			query = fmt.Sprintf("INSERT INTO %s () VALUES ()", table)
		}
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	}
	debugLog("insert: %s %v\n", query, args)

	if databaseFeatures[rel.DBType].returning {
		query += " RETURNING " + rel.returningList()
		rec, err := scanRecord(rel.DB.QueryRowContext(ctx, query, args...).Scan, rel.ColumnNames())
		if err != nil {
			return nil, fmt.Errorf("insert failed: %w", err)
		}
		return rec, nil
	}

	// Without RETURNING the row is re-read inside the same transaction.
	tx, err := rel.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx failed: %w", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}
	key := make(Record, len(rel.Key))
	for _, k := range rel.Key {
		key[k] = values[k]
	}
	if len(rel.Key) == 1 && key[rel.Key[0]] == "" {
		lastID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert id: %w", err)
		}
		key[rel.Key[0]] = formatValue(lastID)
	}
	rec, err := rel.selectByKey(ctx, tx, rel.RecordID(key))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit failed: %w", err)
	}
	return rec, nil
}

func (rel *Relation) selectByKey(ctx context.Context, tx *sql.Tx, id string) (Record, error) {
	where, err := rel.keyWhere(id)
	if err != nil {
		return nil, err
	}
	ph := &placeholders{dbType: rel.DBType}
	clause, args, err := whereClause(rel.DBType, where, rel.typeOf, ph)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s", rel.returningList(), quoteQualified(rel.DBType, rel.Name), clause)
	rec, err := scanRecord(tx.QueryRowContext(ctx, query, args...).Scan, rel.ColumnNames())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Update sets values on the record with row id and returns the refreshed record.
func (rel *Relation) Update(ctx context.Context, id string, values map[string]string) (Record, error) {
	if err := rel.writable(values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return rel.Get(ctx, id)
	}
	where, err := rel.keyWhere(id)
	if err != nil {
		return nil, err
	}
	ph := &placeholders{dbType: rel.DBType}
	var sets []string
	var args []any
	for _, name := range rel.sortedNames(values) {
		col := rel.Columns[rel.ColumnIndex[name]]
		sets = append(sets, quoteIdent(rel.DBType, name)+" = "+ph.next())
		args = append(args, toDBValue(col.Type, values[name]))
	}
	clause, keyArgs, err := whereClause(rel.DBType, where, rel.typeOf, ph)
	if err != nil {
		return nil, err
	}
	args = append(args, keyArgs...)
	query := fmt.Sprintf("UPDATE %s SET %s%s", quoteQualified(rel.DBType, rel.Name), strings.Join(sets, ", "), clause)
	debugLog("update: %s %v\n", query, args)

	if databaseFeatures[rel.DBType].returning {
		query += " RETURNING " + rel.returningList()
		rec, err := scanRecord(rel.DB.QueryRowContext(ctx, query, args...).Scan, rel.ColumnNames())
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("update failed: %w", err)
		}
		return rec, nil
	}

	tx, err := rel.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx failed: %w", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update failed: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// the key itself may have been edited
	newKey := make(Record, len(rel.Key))
	old, _ := rel.keyWhere(id)
	for i, k := range rel.Key {
		newKey[k] = old[i].Value
		if v, ok := values[k]; ok {
			newKey[k] = v
		}
	}
	rec, err := rel.selectByKey(ctx, tx, rel.RecordID(newKey))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit failed: %w", err)
	}
	return rec, nil
}

// Delete removes the record with row id.
func (rel *Relation) Delete(ctx context.Context, id string) error {
	if rel.IsCustomSQL {
		return ErrReadOnly
	}
	where, err := rel.keyWhere(id)
	if err != nil {
		return err
	}
	ph := &placeholders{dbType: rel.DBType}
	clause, args, err := whereClause(rel.DBType, where, rel.typeOf, ph)
	if err != nil {
		return err
	}
	query := "DELETE FROM " + quoteQualified(rel.DBType, rel.Name) + clause
	debugLog("delete: %s %v\n", query, args)
	res, err := rel.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
