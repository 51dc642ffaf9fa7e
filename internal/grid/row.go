package grid

import (
	"context"
	"maps"
)

// Row is a record of the loaded window. Cells hold raw (unformatted) values
// keyed by column name.
type Row struct {
	ID    string
	Cells map[string]string

	Selected bool
	Dirty    bool
	Editing  bool
	Hidden   bool

	// tree bookkeeping
	Level    int
	Lft      int
	Rgt      int
	Parent   string
	Leaf     bool
	Expanded bool
	Loaded   bool
}

// NewRow builds a row from raw values.
func NewRow(id string, cells map[string]string) *Row {
	if cells == nil {
		cells = make(map[string]string)
	}
	return &Row{ID: id, Cells: cells}
}

func (r *Row) clone() *Row {
	c := *r
	c.Cells = maps.Clone(r.Cells)
	return &c
}

// RowSet is a normalized fetch result.
type RowSet struct {
	Page     int
	Total    int
	Records  int
	Rows     []*Row
	UserData map[string]string
}

type SortOrder int

const (
	Asc SortOrder = iota
	Desc
)

func (o SortOrder) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// ParseSortOrder accepts "asc" and "desc"; anything else is Asc.
func ParseSortOrder(s string) SortOrder {
	if s == "desc" || s == "DESC" {
		return Desc
	}
	return Asc
}

// Filter is a single field search.
type Filter struct {
	Field string
	Oper  string
	Value string
}

// NodeRequest scopes a fetch to the children of one tree node.
type NodeRequest struct {
	ID       string
	Level    int
	Lft      int
	Rgt      int
	ParentID string
	Model    TreeModel
}

// Request carries everything a source needs for one fetch.
type Request struct {
	Page      int
	Rows      int
	SortIndex string
	SortOrder SortOrder
	Search    bool
	Filter    *Filter
	Extra     map[string]string
	Node      *NodeRequest
	// Columns lists the column model names in order, used to map positional cells.
	Columns []string
	// More marks a continuation fetch in virtual scroll mode.
	More bool
}

// Source fetches rows for a grid.
type Source interface {
	Fetch(ctx context.Context, req Request) (*RowSet, error)
}

// LocalSource is implemented by sources that hold the whole data set in memory.
type LocalSource interface {
	Source
	IsLocal() bool
}

type OperKind int

const (
	OperAdd OperKind = iota
	OperEdit
	OperDel
)

func (k OperKind) String() string {
	switch k {
	case OperAdd:
		return "add"
	case OperEdit:
		return "edit"
	case OperDel:
		return "del"
	}
	return ""
}

// Operation is a submit of the editing engine.
type Operation struct {
	Kind   OperKind
	ID     string
	Values map[string]string
}

// Result is what a persister confirms. ID is the server assigned id for adds;
// Values, when set, replace the submitted values.
type Result struct {
	ID     string
	Values map[string]string
}

// Persister stores edits remotely.
type Persister interface {
	Persist(ctx context.Context, op Operation) (Result, error)
}

// ParamNames are the request parameter names sent to remote sources.
type ParamNames struct {
	Page     string
	Rows     string
	Sort     string
	Order    string
	Search   string
	Nonce    string
	Oper     string
	ID       string
	AddOper  string
	EditOper string
	DelOper  string

	SearchField  string
	SearchString string
	SearchOper   string

	NodeID   string
	ParentID string
	NodeLvl  string
	NodeLft  string
	NodeRgt  string
}

// DefaultParamNames returns the standard parameter names.
func DefaultParamNames() ParamNames {
	return ParamNames{
		Page:         "page",
		Rows:         "rows",
		Sort:         "sidx",
		Order:        "sord",
		Search:       "_search",
		Nonce:        "nd",
		Oper:         "oper",
		ID:           "id",
		AddOper:      "add",
		EditOper:     "edit",
		DelOper:      "del",
		SearchField:  "searchField",
		SearchString: "searchString",
		SearchOper:   "searchOper",
		NodeID:       "nodeid",
		ParentID:     "parentid",
		NodeLvl:      "n_level",
		NodeLft:      "n_left",
		NodeRgt:      "n_right",
	}
}

// OperName returns the configured name of an operation kind.
func (p ParamNames) OperName(k OperKind) string {
	switch k {
	case OperAdd:
		return p.AddOper
	case OperEdit:
		return p.EditOper
	case OperDel:
		return p.DelOper
	}
	return ""
}

// ParseOper maps a configured operation name back to its kind.
func (p ParamNames) ParseOper(s string) (OperKind, bool) {
	switch s {
	case p.AddOper:
		return OperAdd, true
	case p.EditOper:
		return OperEdit, true
	case p.DelOper:
		return OperDel, true
	}
	return 0, false
}
