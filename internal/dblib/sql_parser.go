package dblib

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	_ "github.com/pingcap/tidb/parser/test_driver"
)

// QueryAnalysis is what a custom grid query reveals about itself.
type QueryAnalysis struct {
	Columns     []ColumnLineage
	BaseTables  []string
	HasGroupBy  bool
	HasDistinct bool
	HasWildcard bool
}

// ColumnLineage tracks where an output column comes from.
type ColumnLineage struct {
	Name         string // output name, alias if given
	SourceTable  string // base table, empty if derived
	SourceColumn string // base column, empty if derived
	IsDerived    bool   // aggregates and expressions
}

// ParseQuery checks that sqlStr is a single SELECT and analyzes its output
// columns.
func ParseQuery(sqlStr string) (*QueryAnalysis, error) {
	p := parser.New()
	stmtNodes, _, err := p.Parse(sqlStr, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	if len(stmtNodes) == 0 {
		return nil, fmt.Errorf("no SQL statement found")
	}
	if len(stmtNodes) > 1 {
		return nil, fmt.Errorf("expected one statement, got %d", len(stmtNodes))
	}
	stmt, ok := stmtNodes[0].(*ast.SelectStmt)
	if !ok {
		return nil, fmt.Errorf("expected SELECT statement, got %T", stmtNodes[0])
	}

	analysis := &QueryAnalysis{
		HasDistinct: stmt.Distinct,
		HasGroupBy:  stmt.GroupBy != nil,
	}
	aliases := make(map[string]string)
	if stmt.From != nil && stmt.From.TableRefs != nil {
		tables, err := extractTables(stmt.From.TableRefs, aliases)
		if err != nil {
			return nil, err
		}
		analysis.BaseTables = tables
	}
	if stmt.Fields == nil {
		return analysis, nil
	}
	for _, field := range stmt.Fields.Fields {
		if field.WildCard != nil {
			analysis.HasWildcard = true
			continue
		}
		analysis.Columns = append(analysis.Columns, analyzeField(field, analysis.BaseTables, aliases))
	}
	return analysis, nil
}

// extractTables collects base table names from a FROM clause and records
// aliases as it goes.
func extractTables(node ast.ResultSetNode, aliases map[string]string) ([]string, error) {
	switch ref := node.(type) {
	case nil:
		return nil, nil
	case *ast.TableSource:
		switch src := ref.Source.(type) {
		case *ast.TableName:
			name := src.Name.String()
			if alias := ref.AsName.String(); alias != "" {
				aliases[alias] = name
			}
			return []string{name}, nil
		case *ast.Join:
			return extractTables(src, aliases)
		case *ast.SelectStmt:
			if src.From != nil && src.From.TableRefs != nil {
				return extractTables(src.From.TableRefs, aliases)
			}
			return nil, nil
		default:
			return nil, fmt.Errorf("unsupported table source %T", src)
		}
	case *ast.Join:
		left, err := extractTables(ref.Left, aliases)
		if err != nil {
			return nil, err
		}
		right, err := extractTables(ref.Right, aliases)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	case *ast.TableName:
		return []string{ref.Name.String()}, nil
	default:
		return nil, fmt.Errorf("unsupported table reference type: %T", ref)
	}
}

func analyzeField(field *ast.SelectField, tables []string, aliases map[string]string) ColumnLineage {
	lineage := ColumnLineage{Name: field.AsName.String(), IsDerived: true}
	col, ok := field.Expr.(*ast.ColumnNameExpr)
	if !ok {
		if lineage.Name == "" {
			lineage.Name = formatExpr(field.Expr)
		}
		return lineage
	}
	name := col.Name.Name.String()
	if lineage.Name == "" {
		lineage.Name = name
	}
	table := col.Name.Table.String()
	if resolved, ok := aliases[table]; ok {
		table = resolved
	}
	if table == "" && len(tables) == 1 {
		table = tables[0]
	}
	if table != "" {
		lineage.SourceTable = table
		lineage.SourceColumn = name
		lineage.IsDerived = false
	}
	return lineage
}

// formatExpr formats an AST expression to a string
func formatExpr(expr ast.ExprNode) string {
	switch e := expr.(type) {
	case *ast.ColumnNameExpr:
		if e.Name.Table.String() != "" {
			return fmt.Sprintf("%s.%s", e.Name.Table.String(), e.Name.Name.String())
		}
		return e.Name.Name.String()
	case *ast.AggregateFuncExpr:
		return e.F
	case *ast.FuncCallExpr:
		return e.FnName.String()
	default:
		return fmt.Sprintf("%T", expr)
	}
}

// NewQueryRelation serves a custom SELECT as a read-only relation. When the
// query is a plain projection of one table that includes its primary key,
// that key orders pages and identifies rows.
func NewQueryRelation(ctx context.Context, db *sql.DB, dbType DatabaseType, name, sqlStr string) (*Relation, error) {
	sqlStr = strings.TrimRight(strings.TrimSpace(sqlStr), ";")
	analysis, err := ParseQuery(sqlStr)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM ("+sqlStr+") AS q LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("failed to describe query: %w", err)
	}
	defer rows.Close()
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	derived := make(map[string]bool)
	for _, c := range analysis.Columns {
		derived[c.Name] = c.IsDerived
	}
	columns := make([]Column, len(types))
	for i, ct := range types {
		nullable, _ := ct.Nullable()
		columns[i] = Column{
			Name:      ct.Name(),
			Type:      ct.DatabaseTypeName(),
			Nullable:  nullable,
			Generated: true,
		}
	}

	var key []string
	if len(analysis.BaseTables) == 1 && !analysis.HasGroupBy && !analysis.HasDistinct {
		if base, err := NewRelation(ctx, db, dbType, analysis.BaseTables[0]); err == nil {
			key = base.Key
			for _, k := range key {
				if !slices.ContainsFunc(columns, func(c Column) bool { return c.Name == k && !derived[k] }) {
					key = nil
					break
				}
			}
		}
	}

	rel := newRelation(db, dbType, name, columns, key)
	rel.IsCustomSQL = true
	rel.SQLStatement = sqlStr
	rel.BaseTables = analysis.BaseTables
	debugLog("query relation %s: tables %v key %v\n", name, analysis.BaseTables, key)
	return rel, nil
}
