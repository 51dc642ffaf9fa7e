package grid

// ViewRow is a displayable row: one formatted cell per visible column.
type ViewRow struct {
	ID       string
	Index    int
	Cells    []ViewCell
	Alt      bool
	Selected bool
	Editing  bool
	Dirty    bool

	// tree rows only
	Level      int
	Leaf       bool
	Expanded   bool
	ExpandCell int
}

// Header is a visible column title.
type Header struct {
	Name     string
	Title    string
	Width    int
	Align    Align
	Sortable bool
	Sorted   bool
	Order    SortOrder
}

// Headers returns the titles of the visible columns.
func (g *Grid) Headers() []Header {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Header
	for _, c := range g.columns {
		if c.Hidden {
			continue
		}
		h := Header{Name: c.Name, Title: c.title(), Width: c.Width, Align: c.Align, Sortable: c.Sortable}
		if c.Name == g.state.SortColumn {
			h.Sorted, h.Order = true, g.state.SortOrder
		}
		out = append(out, h)
	}
	return out
}

// BuildRow formats row for display. index is its position among displayed
// rows and drives the alternating style.
func (g *Grid) BuildRow(row *Row, index int) ViewRow {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buildRow(row, index)
}

func (g *Grid) buildRow(row *Row, index int) ViewRow {
	v := ViewRow{
		ID:         row.ID,
		Index:      index,
		Alt:        g.cfg.AltRows && index%2 == 1,
		Selected:   row.Selected,
		Editing:    row.Editing,
		Dirty:      row.Dirty,
		ExpandCell: -1,
	}
	var edits map[string]string
	if row.Editing {
		for _, l := range g.editor.locks {
			if l.rowID == row.ID && l.mode != ModeForm {
				edits = l.values
			}
		}
	}
	for i := range g.columns {
		col := &g.columns[i]
		if col.Hidden {
			continue
		}
		if g.tree != nil && i == g.tree.expandCol {
			v.ExpandCell = len(v.Cells)
		}
		if val, ok := edits[col.Name]; ok {
			v.Cells = append(v.Cells, ViewCell{Column: col.Name, Text: val, Align: col.Align, Editing: true})
			continue
		}
		v.Cells = append(v.Cells, g.formatter.Format(col, row.Cells[col.Name], row))
	}
	if g.tree != nil {
		v.Level = row.Level - g.tree.RootLevel
		v.Leaf = row.Leaf
		v.Expanded = row.Expanded
	}
	return v
}

// ViewRows formats every displayed row, skipping rows hidden by a collapsed
// tree node.
func (g *Grid) ViewRows() []ViewRow {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ViewRow, 0, len(g.rows))
	for _, r := range g.rows {
		if r.Hidden {
			continue
		}
		out = append(out, g.buildRow(r, len(out)))
	}
	return out
}

// FormatCell formats a raw value with the named column's formatter.
func (g *Grid) FormatCell(col, raw string) (ViewCell, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, err := g.column(col)
	if err != nil {
		return ViewCell{}, err
	}
	return g.formatter.Format(c, raw, nil), nil
}

// Unformat turns displayed text back into the raw value of the named column.
func (g *Grid) Unformat(col, display string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, err := g.column(col)
	if err != nil {
		return "", err
	}
	return g.formatter.Unformat(c, ViewCell{Text: display}), nil
}
