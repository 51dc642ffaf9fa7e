package source

import (
	"errors"

	"github.com/tidwall/gjson"

	"tedgrid/internal/grid"
)

// JSONReader maps a key/value response document onto a row set. Paths use
// gjson syntax.
type JSONReader struct {
	Root     string
	Page     string
	Total    string
	Records  string
	UserData string
	ID       string
	Cell     string
	// RepeatItems means rows carry a positional cell array. Otherwise each
	// row is an object keyed by column name.
	RepeatItems bool
}

func DefaultJSONReader() JSONReader {
	return JSONReader{
		Root:        "rows",
		Page:        "page",
		Total:       "total",
		Records:     "records",
		UserData:    "userdata",
		ID:          "id",
		Cell:        "cell",
		RepeatItems: true,
	}
}

// Read normalizes data. A missing root yields an empty row set, absent
// totals default to one page holding the loaded rows.
func (r JSONReader) Read(data []byte, columns []string) (*grid.RowSet, error) {
	if !gjson.ValidBytes(data) {
		return nil, &grid.PayloadError{Format: "json", Err: errors.New("invalid JSON document")}
	}
	doc := gjson.ParseBytes(data)
	rs := &grid.RowSet{}

	root := doc
	if r.Root != "" {
		root = doc.Get(r.Root)
	}
	if root.IsArray() {
		root.ForEach(func(_, row gjson.Result) bool {
			rs.Rows = append(rs.Rows, r.row(row, columns))
			return true
		})
	}

	if v := doc.Get(r.Page); r.Page != "" && v.Exists() {
		rs.Page = int(v.Int())
	}
	rs.Total = 1
	if v := doc.Get(r.Total); r.Total != "" && v.Exists() {
		rs.Total = int(v.Int())
	}
	rs.Records = len(rs.Rows)
	if v := doc.Get(r.Records); r.Records != "" && v.Exists() {
		rs.Records = int(v.Int())
	}
	if v := doc.Get(r.UserData); r.UserData != "" && v.IsObject() {
		rs.UserData = make(map[string]string)
		v.ForEach(func(k, val gjson.Result) bool {
			rs.UserData[k.String()] = val.String()
			return true
		})
	}
	return rs, nil
}

func (r JSONReader) row(row gjson.Result, columns []string) *grid.Row {
	cells := make(map[string]string, len(columns))
	if row.IsArray() {
		positional(cells, row.Array(), columns)
		return grid.NewRow("", cells)
	}

	var id string
	if r.ID != "" {
		id = row.Get(r.ID).String()
	}
	if r.RepeatItems {
		if c := row.Get(r.Cell); c.IsArray() {
			positional(cells, c.Array(), columns)
			return grid.NewRow(id, cells)
		}
	}
	fields := row.Map()
	for _, col := range columns {
		if v, ok := fields[col]; ok {
			cells[col] = v.String()
		}
	}
	return grid.NewRow(id, cells)
}

func positional(cells map[string]string, values []gjson.Result, columns []string) {
	for i, v := range values {
		if i >= len(columns) {
			break
		}
		cells[columns[i]] = v.String()
	}
}
