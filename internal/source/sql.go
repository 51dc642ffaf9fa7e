package source

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"

	"tedgrid/internal/dblib"
	"tedgrid/internal/grid"
)

// TreeColumns names the relation columns that hold tree bookkeeping.
type TreeColumns struct {
	Model     grid.TreeModel
	Level     string
	Left      string
	Right     string
	Parent    string
	RootLevel int
}

// SQL serves a database relation. It is both the data source and the
// persister of a grid.
type SQL struct {
	Rel *dblib.Relation
	// Tree, when set, makes unscoped fetches return root nodes only and
	// node fetches return the direct children of the node.
	Tree *TreeColumns
	// Bind maps extra request parameters to columns. A bound parameter present
	// in a request restricts the fetch to rows whose column equals its value.
	Bind map[string]string
}

func NewSQL(rel *dblib.Relation) *SQL {
	return &SQL{Rel: rel}
}

func (s *SQL) columns(req grid.Request) []string {
	var cols []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] && s.Rel.HasColumn(name) {
			seen[name] = true
			cols = append(cols, name)
		}
	}
	for _, c := range req.Columns {
		add(c)
	}
	if len(cols) == 0 {
		return nil
	}
	for _, k := range s.Rel.Key {
		add(k)
	}
	if t := s.Tree; t != nil {
		add(t.Level)
		add(t.Left)
		add(t.Right)
		add(t.Parent)
	}
	return cols
}

func (s *SQL) where(req grid.Request) []dblib.Cond {
	var where []dblib.Cond
	if req.Search && req.Filter != nil {
		where = append(where, dblib.Cond{Column: req.Filter.Field, Op: req.Filter.Oper, Value: req.Filter.Value})
	}
	for _, param := range slices.Sorted(maps.Keys(s.Bind)) {
		if v, ok := req.Extra[param]; ok {
			where = append(where, dblib.Cond{Column: s.Bind[param], Op: "eq", Value: v})
		}
	}
	t := s.Tree
	if t == nil {
		return where
	}
	n := req.Node
	switch {
	case n == nil && t.Model == grid.NestedSet:
		where = append(where, dblib.Cond{Column: t.Level, Op: "eq", Value: strconv.Itoa(t.RootLevel)})
	case n == nil:
		where = append(where, dblib.Cond{Column: t.Parent, Op: "nu"})
	case t.Model == grid.NestedSet:
		where = append(where,
			dblib.Cond{Column: t.Left, Op: "gt", Value: strconv.Itoa(n.Lft)},
			dblib.Cond{Column: t.Right, Op: "lt", Value: strconv.Itoa(n.Rgt)},
			dblib.Cond{Column: t.Level, Op: "eq", Value: strconv.Itoa(n.Level + 1)},
		)
	default:
		where = append(where, dblib.Cond{Column: t.Parent, Op: "eq", Value: n.ID})
	}
	return where
}

// Fetch counts and selects the requested page concurrently.
func (s *SQL) Fetch(ctx context.Context, req grid.Request) (*grid.RowSet, error) {
	page := dblib.Page{Columns: s.columns(req), Where: s.where(req)}
	if req.SortIndex != "" && s.Rel.HasColumn(req.SortIndex) {
		page.Sort = &dblib.SortColumn{Name: req.SortIndex, Asc: req.SortOrder == grid.Asc}
	} else if s.Tree != nil && s.Tree.Model == grid.NestedSet {
		page.Sort = &dblib.SortColumn{Name: s.Tree.Left, Asc: true}
	}
	pageNo := max(req.Page, 1)
	if req.Rows > 0 && req.Node == nil {
		page.Limit = req.Rows
		page.Offset = (pageNo - 1) * req.Rows
	}

	var (
		count int
		recs  []dblib.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		count, err = s.Rel.Count(gctx, page.Where)
		return err
	})
	g.Go(func() error {
		var err error
		recs, err = s.Rel.Select(gctx, page)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rs := &grid.RowSet{Page: pageNo, Total: 1, Records: count}
	if page.Limit > 0 {
		rs.Total = max((count+page.Limit-1)/page.Limit, 1)
	}
	rs.Rows = make([]*grid.Row, len(recs))
	for i, rec := range recs {
		var id string
		if len(s.Rel.Key) > 0 {
			id = s.Rel.RecordID(rec)
		}
		rs.Rows[i] = grid.NewRow(id, rec)
	}
	return rs, nil
}

// writableValues keeps the submitted values that name stored columns. Key
// columns are dropped on edit since the row id already addresses them.
func (s *SQL) writableValues(op grid.Operation) map[string]string {
	out := make(map[string]string, len(op.Values))
	for name, v := range op.Values {
		i, ok := s.Rel.ColumnIndex[name]
		if !ok || s.Rel.Columns[i].Generated {
			continue
		}
		if op.Kind == grid.OperEdit && slices.Contains(s.Rel.Key, name) {
			continue
		}
		out[name] = v
	}
	return out
}

func (s *SQL) Persist(ctx context.Context, op grid.Operation) (grid.Result, error) {
	var (
		rec dblib.Record
		err error
	)
	switch op.Kind {
	case grid.OperAdd:
		rec, err = s.Rel.Insert(ctx, s.writableValues(op))
	case grid.OperEdit:
		rec, err = s.Rel.Update(ctx, op.ID, s.writableValues(op))
	case grid.OperDel:
		err = s.Rel.Delete(ctx, op.ID)
	default:
		err = fmt.Errorf("unsupported operation %v", op.Kind)
	}
	if errors.Is(err, dblib.ErrNotFound) {
		return grid.Result{}, fmt.Errorf("%w: %w", grid.ErrUnknownRow, err)
	}
	if err != nil {
		return grid.Result{}, err
	}
	if rec == nil {
		return grid.Result{ID: op.ID}, nil
	}
	return grid.Result{ID: s.Rel.RecordID(rec), Values: rec}, nil
}
