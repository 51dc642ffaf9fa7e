package grid

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SubGrid attaches a one-level nested table to each parent row. Sub rows are
// fetched from their own source on first expand and are not part of the
// parent grid's rows.
type SubGrid struct {
	Columns []Column
	// Param names the request parameter carrying the parent row id.
	Param string

	src Source
	g   *Grid
	sem *semaphore.Weighted

	mu       sync.Mutex
	rows     map[string][]*Row
	expanded map[string]bool
}

func NewSubGrid(src Source, cols []Column) *SubGrid {
	return &SubGrid{
		Columns:  cols,
		Param:    "id",
		src:      src,
		sem:      semaphore.NewWeighted(1),
		rows:     make(map[string][]*Row),
		expanded: make(map[string]bool),
	}
}

func (s *SubGrid) Name() string { return "subgrid" }

func (s *SubGrid) Install(g *Grid) error {
	if s.src == nil {
		return &SetupError{Reason: "subgrid has no data source"}
	}
	if err := validateColumns(nil, s.Columns); err != nil {
		return err
	}
	s.g = g
	return nil
}

// Expand shows the sub rows of parentID, fetching them the first time.
func (s *SubGrid) Expand(ctx context.Context, parentID string) error {
	s.g.mu.Lock()
	_, err := s.g.row(parentID)
	s.g.mu.Unlock()
	if err != nil {
		return err
	}
	if s.showCached(parentID) {
		return nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if s.showCached(parentID) {
		s.sem.Release(1)
		return nil
	}
	err = s.fetch(ctx, parentID)
	s.sem.Release(1)
	if err != nil && s.g.hooks.OnLoadError != nil {
		s.g.hooks.OnLoadError(err)
	}
	return err
}

// showCached expands parentID when its sub rows are already loaded.
func (s *SubGrid) showCached(parentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[parentID]; !ok {
		return false
	}
	s.expanded[parentID] = true
	return true
}

// fetch loads and caches the sub rows of parentID. The caller holds sem.
func (s *SubGrid) fetch(ctx context.Context, parentID string) error {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	extra := make(map[string]string, len(s.g.cfg.ExtraParams)+1)
	maps.Copy(extra, s.g.cfg.ExtraParams)
	extra[s.Param] = parentID
	req := Request{Page: 1, Columns: names, Extra: extra}
	debugLog("subgrid fetch parent=%s\n", parentID)
	rs, err := s.src.Fetch(ctx, req)
	if err == nil && rs == nil {
		err = &PayloadError{Format: "source", Err: fmt.Errorf("no row set returned")}
	}
	if err != nil {
		return err
	}
	for i, r := range rs.Rows {
		if r.Cells == nil {
			r.Cells = make(map[string]string)
		}
		if r.ID == "" {
			r.ID = parentID + "_" + strconv.Itoa(i+1)
		}
	}
	s.mu.Lock()
	s.rows[parentID] = rs.Rows
	s.expanded[parentID] = true
	s.mu.Unlock()
	return nil
}

// Collapse hides the sub rows of parentID. They stay cached.
func (s *SubGrid) Collapse(parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded[parentID] = false
}

func (s *SubGrid) Toggle(ctx context.Context, parentID string) error {
	if s.IsExpanded(parentID) {
		s.Collapse(parentID)
		return nil
	}
	return s.Expand(ctx, parentID)
}

func (s *SubGrid) IsExpanded(parentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded[parentID]
}

// Rows returns copies of the loaded sub rows of parentID.
func (s *SubGrid) Rows(parentID string) []*Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clones(s.rows[parentID])
}

// ViewRows formats the sub rows of an expanded parent with the subgrid's
// column model.
func (s *SubGrid) ViewRows(parentID string) []ViewRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.expanded[parentID] {
		return nil
	}
	rows := s.rows[parentID]
	out := make([]ViewRow, len(rows))
	for i, r := range rows {
		v := ViewRow{ID: r.ID, Index: i, ExpandCell: -1}
		for j := range s.Columns {
			col := &s.Columns[j]
			if !col.Hidden {
				v.Cells = append(v.Cells, s.g.formatter.Format(col, r.Cells[col.Name], r))
			}
		}
		out[i] = v
	}
	return out
}

// Reset drops every cached sub table, used after the parent grid reloads.
func (s *SubGrid) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.rows)
	clear(s.expanded)
}
