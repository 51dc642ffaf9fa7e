package dblib

import (
	"database/sql"
)

// NullGlyph is the raw text standing for SQL NULL in edited values.
const NullGlyph = "\\0"

type DatabaseType int

const (
	SQLite DatabaseType = iota
	PostgreSQL
	MySQL
)

func (t DatabaseType) String() string {
	switch t {
	case PostgreSQL:
		return "postgres"
	case MySQL:
		return "mysql"
	}
	return "sqlite3"
}

type databaseFeature struct {
	systemId              string
	returning             bool
	positionalPlaceholder bool
}

var databaseFeatures = map[DatabaseType]databaseFeature{
	SQLite: {
		systemId:              "rowid",
		returning:             true,
		positionalPlaceholder: false,
	},
	PostgreSQL: {
		systemId:              "ctid",
		returning:             true,
		positionalPlaceholder: true,
	},
	MySQL: {
		systemId:              "",
		returning:             false,
		positionalPlaceholder: false,
	},
}

// Relation is a table, or a read-only custom query, served as grid rows.
type Relation struct {
	DB     *sql.DB
	DBType DatabaseType

	Name         string
	IsCustomSQL  bool   // true if the relation is a parsed SELECT, not a table
	SQLStatement string // original SQL of a custom relation
	BaseTables   []string
	Columns      []Column
	ColumnIndex  map[string]int
	Key          []string // lookup key column names
}

type Column struct {
	Name      string
	Type      string
	Nullable  bool
	Generated bool // computed or derived, read-only
}

type SortColumn struct {
	Name string
	Asc  bool
}

func (sc SortColumn) String() string {
	if sc.Asc {
		return sc.Name + " ASC"
	}
	return sc.Name + " DESC"
}

// Cond is one search condition. Op uses the grid search operators
// (eq, ne, lt, le, gt, ge, bw, bn, ew, en, cn, nc, nu, nn).
type Cond struct {
	Column string
	Op     string
	Value  string
}

// Page selects one window of a relation.
type Page struct {
	Columns []string // empty selects every column
	Sort    *SortColumn
	Where   []Cond
	Limit   int // 0 means no limit
	Offset  int
}

// Record is one row keyed by column name, values rendered as text.
type Record map[string]string
