package dblib

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// quoteIdent safely quotes an identifier (table/column) for the target DB.
// Identifiers that are obviously safe are returned unquoted:
// - comprised of lowercase letters, digits, and underscores
// - does not start with a digit
// - not a common SQL reserved keyword
func quoteIdent(dbType DatabaseType, ident string) string {
	if isSafeUnquotedIdent(ident) {
		return ident
	}
	switch dbType {
	case MySQL:
		escaped := strings.ReplaceAll(ident, "`", "``")
		return "`" + escaped + "`"
	default:
		escaped := strings.ReplaceAll(ident, "\"", "\"\"")
		return "\"" + escaped + "\""
	}
}

// quoteQualified splits on '.' and quotes each identifier part independently.
func quoteQualified(dbType DatabaseType, qualified string) string {
	parts := strings.Split(qualified, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(dbType, p)
	}
	return strings.Join(parts, ".")
}

func isSafeUnquotedIdent(ident string) bool {
	if ident == "" {
		return false
	}
	c0 := ident[0]
	if !((c0 >= 'a' && c0 <= 'z') || c0 == '_') {
		return false
	}
	for i := 1; i < len(ident); i++ {
		c := ident[i]
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	if _, ok := commonReservedIdents[ident]; ok {
		return false
	}
	return true
}

// Small, conservative set of common SQL reserved keywords to avoid unquoted.
var commonReservedIdents = map[string]struct{}{
	// DML/DDL
	"select": {}, "insert": {}, "update": {}, "delete": {}, "into": {}, "values": {},
	"create": {}, "alter": {}, "drop": {}, "table": {}, "index": {}, "view": {},
	// Clauses
	"from": {}, "where": {}, "group": {}, "order": {}, "by": {}, "having": {},
	"limit": {}, "offset": {}, "join": {}, "inner": {}, "left": {}, "right": {}, "full": {}, "outer": {},
	// Operators/Predicates
	"and": {}, "or": {}, "not": {}, "in": {}, "is": {}, "like": {}, "between": {}, "exists": {},
	// Literals
	"null": {}, "true": {}, "false": {},
	// Misc
	"as": {}, "on": {},
}

// placeholders hands out bind markers in order, $n for positional databases.
type placeholders struct {
	dbType DatabaseType
	n      int
}

func (p *placeholders) next() string {
	p.n++
	if databaseFeatures[p.dbType].positionalPlaceholder {
		return fmt.Sprintf("$%d", p.n)
	}
	return "?"
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// condSQL renders one search condition.
func condSQL(dbType DatabaseType, c Cond, colType string, ph *placeholders) (string, []any, error) {
	col := quoteIdent(dbType, c.Column)
	val := toDBValue(colType, c.Value)
	like := func(not bool, pattern string) (string, []any, error) {
		op := " LIKE "
		if not {
			op = " NOT LIKE "
		}
		return col + op + ph.next() + " ESCAPE '!'", []any{pattern}, nil
	}
	switch c.Op {
	case "eq":
		return col + " = " + ph.next(), []any{val}, nil
	case "ne":
		return col + " <> " + ph.next(), []any{val}, nil
	case "lt":
		return col + " < " + ph.next(), []any{val}, nil
	case "le":
		return col + " <= " + ph.next(), []any{val}, nil
	case "gt":
		return col + " > " + ph.next(), []any{val}, nil
	case "ge":
		return col + " >= " + ph.next(), []any{val}, nil
	case "bw":
		return like(false, escapeLike(c.Value)+"%")
	case "bn":
		return like(true, escapeLike(c.Value)+"%")
	case "ew":
		return like(false, "%"+escapeLike(c.Value))
	case "en":
		return like(true, "%"+escapeLike(c.Value))
	case "cn":
		return like(false, "%"+escapeLike(c.Value)+"%")
	case "nc":
		return like(true, "%"+escapeLike(c.Value)+"%")
	case "nu":
		return col + " IS NULL", nil, nil
	case "nn":
		return col + " IS NOT NULL", nil, nil
	}
	return "", nil, fmt.Errorf("unsupported search operator %q", c.Op)
}

// whereClause joins conditions with AND. It returns "" when there are none.
func whereClause(dbType DatabaseType, conds []Cond, typeOf func(string) string, ph *placeholders) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(conds))
	var args []any
	for _, c := range conds {
		s, a, err := condSQL(dbType, c, typeOf(c.Column), ph)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, s)
		args = append(args, a...)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// selectQuery builds a paged select. Rows are secondarily ordered by the key
// columns so pages are stable.
func selectQuery(dbType DatabaseType, from string, columns []string, page Page, keyCols []string, typeOf func(string) string) (string, []any, error) {
	var builder strings.Builder
	builder.WriteString("SELECT ")
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(dbType, col)
	}
	builder.WriteString(strings.Join(quoted, ", "))
	builder.WriteString(" FROM ")
	builder.WriteString(from)

	ph := &placeholders{dbType: dbType}
	where, args, err := whereClause(dbType, page.Where, typeOf, ph)
	if err != nil {
		return "", nil, err
	}
	builder.WriteString(where)

	var order []string
	if page.Sort != nil {
		order = append(order, SortColumn{Name: quoteIdent(dbType, page.Sort.Name), Asc: page.Sort.Asc}.String())
	}
	for _, k := range keyCols {
		if page.Sort != nil && k == page.Sort.Name {
			continue
		}
		order = append(order, quoteIdent(dbType, k)+" ASC")
	}
	if len(order) > 0 {
		builder.WriteString(" ORDER BY ")
		builder.WriteString(strings.Join(order, ", "))
	}
	if page.Limit > 0 {
		builder.WriteString(fmt.Sprintf(" LIMIT %d", page.Limit))
		if page.Offset > 0 {
			builder.WriteString(fmt.Sprintf(" OFFSET %d", page.Offset))
		}
	}
	return builder.String(), args, nil
}

// toDBValue converts raw text to a value typed after the column's SQL type.
func toDBValue(colType, raw string) any {
	if raw == NullGlyph {
		return nil
	}
	t := strings.ToLower(colType)
	switch {
	case strings.Contains(t, "bool"):
		lower := strings.ToLower(strings.TrimSpace(raw))
		if lower == "1" || lower == "true" || lower == "t" {
			return true
		}
		if lower == "0" || lower == "false" || lower == "f" {
			return false
		}
		return raw
	case strings.Contains(t, "int"):
		if v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			return v
		}
		return raw
	case strings.Contains(t, "real") || strings.Contains(t, "double") || strings.Contains(t, "float") || strings.Contains(t, "numeric") || strings.Contains(t, "decimal"):
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return v
		}
		return raw
	default:
		return raw
	}
}

// formatValue renders a scanned value as raw grid text. NULL becomes "".
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// scanRecord reads the current row of a cursor into a Record.
func scanRecord(scan func(...any) error, columns []string) (Record, error) {
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	if err := scan(scanArgs...); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	rec := make(Record, len(columns))
	for i, col := range columns {
		rec[col] = formatValue(values[i])
	}
	return rec, nil
}
