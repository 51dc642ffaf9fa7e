package source

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"tedgrid/internal/grid"
)

// XMLReader maps a markup response onto a row set. Paths are written
// "rows>page" and are searched from the document root. ID is either a child
// element name or an attribute in brackets, "[id]".
type XMLReader struct {
	Root     string
	Row      string
	Page     string
	Total    string
	Records  string
	UserData string
	ID       string
	Cell     string
	// RepeatItems means rows carry positional cell elements. Otherwise each
	// column is a child element of the same name.
	RepeatItems bool
}

func DefaultXMLReader() XMLReader {
	return XMLReader{
		Root:        "rows",
		Row:         "row",
		Page:        "rows>page",
		Total:       "rows>total",
		Records:     "rows>records",
		UserData:    "userdata",
		ID:          "[id]",
		Cell:        "cell",
		RepeatItems: true,
	}
}

func xpath(path string) string {
	parts := strings.Split(path, ">")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "/")
}

func (r XMLReader) number(doc *xmlquery.Node, path string) (int, bool) {
	if path == "" {
		return 0, false
	}
	n, err := xmlquery.Query(doc, "//"+xpath(path))
	if err != nil || n == nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(n.InnerText()))
	return v, err == nil
}

// Read normalizes data. A missing root yields an empty row set, absent
// totals default to one page holding the loaded rows.
func (r XMLReader) Read(data []byte, columns []string) (*grid.RowSet, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &grid.PayloadError{Format: "xml", Err: err}
	}
	rs := &grid.RowSet{}

	root, err := xmlquery.Query(doc, "//"+xpath(r.Root))
	if err != nil {
		return nil, &grid.PayloadError{Format: "xml", Err: err}
	}
	if root != nil {
		rows, err := xmlquery.QueryAll(root, ".//"+xpath(r.Row))
		if err != nil {
			return nil, &grid.PayloadError{Format: "xml", Err: err}
		}
		for _, n := range rows {
			rs.Rows = append(rs.Rows, r.row(n, columns))
		}
	}

	if v, ok := r.number(doc, r.Page); ok {
		rs.Page = v
	}
	rs.Total = 1
	if v, ok := r.number(doc, r.Total); ok {
		rs.Total = v
	}
	rs.Records = len(rs.Rows)
	if v, ok := r.number(doc, r.Records); ok {
		rs.Records = v
	}
	if root != nil && r.UserData != "" {
		if nodes, err := xmlquery.QueryAll(root, "./"+xpath(r.UserData)); err == nil {
			for _, n := range nodes {
				if rs.UserData == nil {
					rs.UserData = make(map[string]string)
				}
				rs.UserData[n.SelectAttr("name")] = n.InnerText()
			}
		}
	}
	return rs, nil
}

func (r XMLReader) row(n *xmlquery.Node, columns []string) *grid.Row {
	var id string
	switch {
	case strings.HasPrefix(r.ID, "[") && strings.HasSuffix(r.ID, "]"):
		id = n.SelectAttr(strings.Trim(r.ID, "[]"))
	case r.ID != "":
		if c, err := xmlquery.Query(n, "./"+xpath(r.ID)); err == nil && c != nil {
			id = c.InnerText()
		}
	}

	cells := make(map[string]string, len(columns))
	if r.RepeatItems {
		found, _ := xmlquery.QueryAll(n, "./"+xpath(r.Cell))
		for i, c := range found {
			if i >= len(columns) {
				break
			}
			cells[columns[i]] = c.InnerText()
		}
		return grid.NewRow(id, cells)
	}
	for _, col := range columns {
		if c, err := xmlquery.Query(n, "./"+col); err == nil && c != nil {
			cells[col] = c.InnerText()
		}
	}
	return grid.NewRow(id, cells)
}
