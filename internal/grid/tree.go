package grid

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// TreeModel is the representation of parent/child links.
type TreeModel int

const (
	NestedSet TreeModel = iota
	Adjacency
)

func (m TreeModel) String() string {
	if m == Adjacency {
		return "adjacency"
	}
	return "nested"
}

// TreeReader names the cells that carry tree bookkeeping.
type TreeReader struct {
	Level    string
	Left     string
	Right    string
	Parent   string
	Leaf     string
	Expanded string
	Loaded   string
}

func DefaultTreeReader() TreeReader {
	return TreeReader{
		Level:    "level",
		Left:     "lft",
		Right:    "rgt",
		Parent:   "parent",
		Leaf:     "isLeaf",
		Expanded: "expanded",
		Loaded:   "loaded",
	}
}

// Tree turns a grid into a tree grid.
type Tree struct {
	Model        TreeModel
	ExpandColumn string
	Reader       TreeReader
	// RootLevel is the level of root nodes, 0 unless the server counts from 1.
	RootLevel int

	g         *Grid
	expandCol int
}

func NewTree(model TreeModel, expandColumn string) *Tree {
	return &Tree{Model: model, ExpandColumn: expandColumn, Reader: DefaultTreeReader()}
}

func (t *Tree) Name() string { return "tree" }

// Install adds the hidden bookkeeping columns and resolves the expand column.
func (t *Tree) Install(g *Grid) error {
	if t.Reader == (TreeReader{}) {
		t.Reader = DefaultTreeReader()
	}
	idx, ok := g.colIndex[t.ExpandColumn]
	if !ok {
		return &SetupError{Reason: fmt.Sprintf("tree expand column %q is not in the column model", t.ExpandColumn)}
	}
	names := []string{t.Reader.Level}
	if t.Model == NestedSet {
		names = append(names, t.Reader.Left, t.Reader.Right)
	} else {
		names = append(names, t.Reader.Parent)
	}
	names = append(names, t.Reader.Leaf, t.Reader.Expanded, t.Reader.Loaded)
	for _, n := range names {
		g.addHiddenColumn(n)
	}
	t.g = g
	t.expandCol = idx
	g.tree = t
	return nil
}

// ExpandColumnIndex is the model index of the column showing the expand icon.
func (t *Tree) ExpandColumnIndex() int { return t.expandCol }

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "t":
		return true
	}
	return false
}

// absorb reads the bookkeeping cells of a fetched row into its flags.
func (t *Tree) absorb(r *Row) {
	rd := t.Reader
	if v, err := strconv.Atoi(strings.TrimSpace(r.Cells[rd.Level])); err == nil {
		r.Level = v
	}
	if t.Model == NestedSet {
		r.Lft, _ = strconv.Atoi(strings.TrimSpace(r.Cells[rd.Left]))
		r.Rgt, _ = strconv.Atoi(strings.TrimSpace(r.Cells[rd.Right]))
	} else {
		p := strings.TrimSpace(r.Cells[rd.Parent])
		if strings.EqualFold(p, "null") {
			p = ""
		}
		r.Parent = p
	}
	if leaf, ok := r.Cells[rd.Leaf]; ok {
		r.Leaf = truthy(leaf)
	} else if t.Model == NestedSet {
		r.Leaf = r.Rgt == r.Lft+1
	}
	r.Expanded = truthy(r.Cells[rd.Expanded])
	r.Loaded = truthy(r.Cells[rd.Loaded])
}

// store writes the row flags back into the bookkeeping cells.
func (t *Tree) store(r *Row) {
	rd := t.Reader
	r.Cells[rd.Level] = strconv.Itoa(r.Level)
	if t.Model == NestedSet {
		r.Cells[rd.Left] = strconv.Itoa(r.Lft)
		r.Cells[rd.Right] = strconv.Itoa(r.Rgt)
	} else {
		r.Cells[rd.Parent] = r.Parent
	}
	r.Cells[rd.Leaf] = strconv.FormatBool(r.Leaf)
	r.Cells[rd.Expanded] = strconv.FormatBool(r.Expanded)
	r.Cells[rd.Loaded] = strconv.FormatBool(r.Loaded)
}

// parents maps every row to its parent row, nil for roots.
func (t *Tree) parents(rows []*Row) map[*Row]*Row {
	out := make(map[*Row]*Row, len(rows))
	if t.Model == Adjacency {
		byID := make(map[string]*Row, len(rows))
		for _, r := range rows {
			byID[r.ID] = r
		}
		for _, r := range rows {
			if r.Parent != "" {
				out[r] = byID[r.Parent]
			} else {
				out[r] = nil
			}
		}
		return out
	}
	ordered := slices.Clone(rows)
	slices.SortStableFunc(ordered, func(a, b *Row) int { return cmp.Compare(a.Lft, b.Lft) })
	var stack []*Row
	for _, r := range ordered {
		for len(stack) > 0 && stack[len(stack)-1].Rgt < r.Lft {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			out[r] = stack[len(stack)-1]
		} else {
			out[r] = nil
		}
		stack = append(stack, r)
	}
	return out
}

func (t *Tree) isDescendant(parents map[*Row]*Row, r, of *Row) bool {
	if t.Model == NestedSet {
		return of.Lft < r.Lft && r.Rgt < of.Rgt
	}
	for p := parents[r]; p != nil; p = parents[p] {
		if p == of {
			return true
		}
	}
	return false
}

func (t *Tree) children(rows []*Row, parents map[*Row]*Row, of *Row) []*Row {
	var out []*Row
	for _, r := range rows {
		if parents[r] == of {
			out = append(out, r)
		}
	}
	return out
}

// refreshVisibility hides every row that has a collapsed ancestor.
func (t *Tree) refreshVisibility(rows []*Row) {
	parents := t.parents(rows)
	var visible func(r *Row) bool
	memo := make(map[*Row]bool, len(rows))
	visible = func(r *Row) bool {
		if v, ok := memo[r]; ok {
			return v
		}
		p := parents[r]
		v := p == nil || (p.Expanded && visible(p))
		memo[r] = v
		return v
	}
	for _, r := range rows {
		r.Hidden = !visible(r)
	}
}

// withAncestors keeps the matching rows of all and every ancestor of a match,
// in their loaded order. The ancestors are expanded so the matches show.
func (t *Tree) withAncestors(all, matches []*Row) []*Row {
	parents := t.parents(all)
	keep := make(map[*Row]bool, len(matches))
	for _, m := range matches {
		keep[m] = true
		for p := parents[m]; p != nil; p = parents[p] {
			keep[p] = true
			if !p.Expanded {
				p.Expanded = true
				t.store(p)
			}
		}
	}
	out := make([]*Row, 0, len(keep))
	for _, r := range all {
		if keep[r] {
			out = append(out, r)
		}
	}
	return out
}

// sortTree sorts each sibling group with compare and lays the tree out again
// with every parent before its descendants.
func (t *Tree) sortTree(rows []*Row, compare rowCompare) []*Row {
	parents := t.parents(rows)
	kids := make(map[*Row][]*Row, len(rows))
	var roots []*Row
	for _, r := range rows {
		if p := parents[r]; p != nil {
			kids[p] = append(kids[p], r)
		} else {
			roots = append(roots, r)
		}
	}
	out := make([]*Row, 0, len(rows))
	var walk func(group []*Row)
	walk = func(group []*Row) {
		sortRows(group, compare)
		for _, r := range group {
			out = append(out, r)
			walk(kids[r])
		}
	}
	walk(roots)
	return out
}

// VerifyNestedSet checks that every range is well formed and that ranges
// either nest or are disjoint.
func VerifyNestedSet(rows []*Row) error {
	ordered := slices.Clone(rows)
	slices.SortStableFunc(ordered, func(a, b *Row) int { return cmp.Compare(a.Lft, b.Lft) })
	var stack []*Row
	for _, r := range ordered {
		if r.Rgt <= r.Lft {
			return &TreeRangeError{Parent: r.ID, Child: r.ID}
		}
		for len(stack) > 0 && stack[len(stack)-1].Rgt < r.Lft {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			if r.Lft <= top.Lft || r.Rgt >= top.Rgt {
				return &TreeRangeError{Parent: top.ID, Child: r.ID}
			}
		}
		stack = append(stack, r)
	}
	return nil
}

func (t *Tree) node(id string) (*Row, error) {
	return t.g.row(id)
}

func (t *Tree) hasChildren(rows []*Row, r *Row) bool {
	for _, o := range rows {
		if o == r {
			continue
		}
		if t.Model == NestedSet && o.Level == r.Level+1 && r.Lft < o.Lft && o.Rgt < r.Rgt {
			return true
		}
		if t.Model == Adjacency && o.Parent == r.ID {
			return true
		}
	}
	return false
}

// ExpandNode reveals the children of id. Children that are not loaded yet are
// fetched with one scoped request and inserted after the node's subtree.
func (t *Tree) ExpandNode(ctx context.Context, id string) error {
	g := t.g
	g.mu.Lock()
	r, err := t.node(id)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if r.Leaf || r.Loaded || g.state.Local || t.hasChildren(g.rows, r) {
		r.Expanded = true
		t.store(r)
		t.refreshVisibility(g.rows)
		g.mu.Unlock()
		return nil
	}
	node := &NodeRequest{ID: r.ID, Level: r.Level, Lft: r.Lft, Rgt: r.Rgt, Model: t.Model}
	if t.Model == Adjacency {
		node.ParentID = r.ID
	}
	g.mu.Unlock()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	g.mu.Lock()
	req := g.request(1, false)
	req.Node = node
	g.state.Loading = true
	g.mu.Unlock()

	debugLog("expand node %s level=%d lft=%d rgt=%d\n", node.ID, node.Level, node.Lft, node.Rgt)
	rs, err := g.src.Fetch(ctx, req)

	g.mu.Lock()
	g.state.Loading = false
	if err == nil && rs == nil {
		err = &PayloadError{Format: "source", Err: fmt.Errorf("no row set returned")}
	}
	if err == nil {
		err = t.insertChildren(id, req, rs.Rows)
	}
	g.mu.Unlock()
	g.sem.Release(1)
	g.notifyLoad(rs, err)
	return err
}

// insertChildren places lazily loaded children after the subtree of parent.
// Nested-set ranges are verified and the insert is rolled back on violation.
func (t *Tree) insertChildren(parentID string, req Request, children []*Row) error {
	g := t.g
	parent, err := t.node(parentID)
	if err != nil {
		return err
	}
	for i, c := range children {
		if c.ID == "" && g.keyColumn() == "" {
			c.ID = parent.ID + "_" + strconv.Itoa(i+1)
		}
	}
	g.normalize(req, children)
	for _, c := range children {
		c.Level = parent.Level + 1
		if t.Model == Adjacency {
			c.Parent = parent.ID
		}
		t.store(c)
	}
	before := g.rows
	parents := t.parents(before)
	at := slices.Index(before, parent) + 1
	for at < len(before) && t.isDescendant(parents, before[at], parent) {
		at++
	}
	rows := slices.Concat(before[:at:at], children, before[at:])
	if t.Model == NestedSet {
		for _, c := range children {
			if !(parent.Lft < c.Lft && c.Rgt < parent.Rgt) {
				return &TreeRangeError{Parent: parent.ID, Child: c.ID}
			}
		}
		if err := VerifyNestedSet(rows); err != nil {
			return err
		}
	}
	g.rows = rows
	parent.Loaded = true
	parent.Expanded = true
	if len(children) == 0 {
		parent.Leaf = true
	}
	t.store(parent)
	g.state.LoadedCount = len(g.rows)
	t.refreshVisibility(g.rows)
	return nil
}

// CollapseNode hides all descendants of id. Collapsed rows stay loaded.
func (t *Tree) CollapseNode(id string) error {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := t.node(id)
	if err != nil {
		return err
	}
	r.Expanded = false
	t.store(r)
	t.refreshVisibility(g.rows)
	return nil
}

// ToggleNode expands a collapsed node and collapses an expanded one.
func (t *Tree) ToggleNode(ctx context.Context, id string) error {
	g := t.g
	g.mu.Lock()
	r, err := t.node(id)
	expanded := err == nil && r.Expanded
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if expanded {
		return t.CollapseNode(id)
	}
	return t.ExpandNode(ctx, id)
}

func clones(rows []*Row) []*Row {
	out := make([]*Row, len(rows))
	for i, r := range rows {
		out[i] = r.clone()
	}
	return out
}

// GetNodeChildren returns copies of the loaded direct children of id.
func (t *Tree) GetNodeChildren(id string) ([]*Row, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := t.node(id)
	if err != nil {
		return nil, err
	}
	return clones(t.children(g.rows, t.parents(g.rows), r)), nil
}

// GetNodeParent returns a copy of the parent of id, nil for a root node.
func (t *Tree) GetNodeParent(id string) (*Row, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := t.node(id)
	if err != nil {
		return nil, err
	}
	if p := t.parents(g.rows)[r]; p != nil {
		return p.clone(), nil
	}
	return nil, nil
}

// GetNodeAncestors returns copies of the ancestors of id, nearest first.
func (t *Tree) GetNodeAncestors(id string) ([]*Row, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := t.node(id)
	if err != nil {
		return nil, err
	}
	parents := t.parents(g.rows)
	var out []*Row
	for p := parents[r]; p != nil; p = parents[p] {
		out = append(out, p.clone())
	}
	return out, nil
}

// GetNodeDepth is the distance of id from the root level.
func (t *Tree) GetNodeDepth(id string) (int, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := t.node(id)
	if err != nil {
		return 0, err
	}
	return r.Level - t.RootLevel, nil
}

// IsVisibleNode reports whether every ancestor of id is expanded.
func (t *Tree) IsVisibleNode(id string) (bool, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := t.node(id)
	if err != nil {
		return false, err
	}
	parents := t.parents(g.rows)
	for p := parents[r]; p != nil; p = parents[p] {
		if !p.Expanded {
			return false, nil
		}
	}
	return true, nil
}

func (t *Tree) IsLeaf(id string) (bool, error) {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := t.node(id)
	if err != nil {
		return false, err
	}
	return r.Leaf, nil
}

// GetRootNodes returns copies of the loaded root nodes in row order.
func (t *Tree) GetRootNodes() []*Row {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()
	parents := t.parents(g.rows)
	var out []*Row
	for _, r := range g.rows {
		if parents[r] == nil {
			out = append(out, r.clone())
		}
	}
	return out
}

// Tree returns the installed tree extension.
func (g *Grid) Tree() (*Tree, error) {
	if g.tree == nil {
		return nil, ErrNoTree
	}
	return g.tree, nil
}
