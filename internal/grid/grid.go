package grid

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Config is the declarative grid definition.
type Config struct {
	ColNames    []string
	Columns     []Column
	RowsPerPage int
	SortName    string
	SortOrder   SortOrder

	// LoadOnce switches the grid to local data after the first fetch.
	LoadOnce bool
	// Scroll enables virtual scrolling: pages are appended instead of replaced.
	Scroll      bool
	AltRows     bool
	MultiSelect bool

	Params      ParamNames
	ExtraParams map[string]string
	Locale      Locale

	EditMode                 EditMode
	AllowMultipleInlineEdits bool
	CheckOnNavigate          bool
}

// State is the single owned grid state. Pager fields are promoted.
type State struct {
	Pager
	LoadedCount int
	SortColumn  string
	SortOrder   SortOrder
	Search      bool
	Filter      *Filter
	Selection   []string
	Loading     bool
	Local       bool
	UserData    map[string]string
}

// Hooks are called without the grid locked and after the fetch slot is
// released, so they may call back into the grid.
type Hooks struct {
	OnLoadComplete func(rs *RowSet)
	OnLoadError    func(err error)
	OnSubmitError  func(op Operation, err error)
	OnSelectRow    func(id string, selected bool)
}

// Extension is an optional capability composed into a grid. Install runs with
// the grid locked and may be called again when the column model is replaced.
type Extension interface {
	Name() string
	Install(g *Grid) error
}

type GridOption func(*Grid)

// WithPersister sets where edits are stored. Without one, edits are saved
// locally.
func WithPersister(p Persister) GridOption {
	return func(g *Grid) { g.persister = p }
}

func WithHooks(h Hooks) GridOption {
	return func(g *Grid) { g.hooks = h }
}

func WithExtensions(exts ...Extension) GridOption {
	return func(g *Grid) { g.exts = append(g.exts, exts...) }
}

type Grid struct {
	cfg       Config
	src       Source
	persister Persister
	hooks     Hooks
	exts      []Extension
	formatter formatter

	// sem serializes fetches so at most one is in flight.
	sem *semaphore.Weighted

	mu       sync.Mutex
	columns  []Column
	colIndex map[string]int
	rows     []*Row
	all      []*Row
	state    State
	editor   *Editor
	tree     *Tree
	nextID   int
}

// New validates cfg and builds a grid over src.
func New(cfg Config, src Source, opts ...GridOption) (*Grid, error) {
	if src == nil {
		return nil, &SetupError{Reason: "no data source"}
	}
	if cfg.RowsPerPage <= 0 {
		cfg.RowsPerPage = 20
	}
	if cfg.Params.Page == "" {
		cfg.Params = DefaultParamNames()
	}
	if cfg.Locale.DecimalSeparator == "" {
		cfg.Locale = DefaultLocale()
	}
	g := &Grid{
		cfg:       cfg,
		src:       src,
		formatter: formatter{locale: cfg.Locale},
		sem:       semaphore.NewWeighted(1),
	}
	g.editor = newEditor(g)
	for _, opt := range opts {
		opt(g)
	}
	if err := g.setColumns(cfg.ColNames, cfg.Columns); err != nil {
		return nil, err
	}
	if cfg.SortName != "" {
		if _, ok := g.colIndex[cfg.SortName]; !ok {
			return nil, &SetupError{Reason: fmt.Sprintf("sort column %q is not in the column model", cfg.SortName)}
		}
	}
	g.state = State{
		Pager:      Pager{Page: 1, RowsPerPage: cfg.RowsPerPage, TotalPages: 1},
		SortColumn: cfg.SortName,
		SortOrder:  cfg.SortOrder,
	}
	debugLog("new grid: %d columns, %d rows per page\n", len(g.columns), cfg.RowsPerPage)
	return g, nil
}

// SetColumns replaces the column model. Installed extensions are asked to add
// their columns again.
func (g *Grid) SetColumns(names []string, model []Column) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.editor.active() {
		return ErrEditLocked
	}
	return g.setColumns(names, model)
}

func (g *Grid) setColumns(names []string, model []Column) error {
	if err := validateColumns(names, model); err != nil {
		return err
	}
	cols := slices.Clone(model)
	for i := range cols {
		if cols[i].Label == "" && i < len(names) {
			cols[i].Label = names[i]
		}
	}
	g.columns = cols
	g.reindex()
	for _, ext := range g.exts {
		if err := ext.Install(g); err != nil {
			return fmt.Errorf("install %s: %w", ext.Name(), err)
		}
	}
	return nil
}

func (g *Grid) reindex() {
	g.colIndex = make(map[string]int, len(g.columns))
	for i, c := range g.columns {
		g.colIndex[c.Name] = i
	}
}

// addHiddenColumn appends a bookkeeping column unless one with that name
// already exists.
func (g *Grid) addHiddenColumn(name string) {
	if _, ok := g.colIndex[name]; ok {
		return
	}
	g.columns = append(g.columns, Column{Name: name, Hidden: true})
	g.colIndex[name] = len(g.columns) - 1
}

func (g *Grid) column(name string) (*Column, error) {
	i, ok := g.colIndex[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	return &g.columns[i], nil
}

func (g *Grid) keyColumn() string {
	for _, c := range g.columns {
		if c.Key {
			return c.Name
		}
	}
	return ""
}

// Columns returns a copy of the column model.
func (g *Grid) Columns() []Column {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.columns)
}

// Column returns a copy of one column definition.
func (g *Grid) Column(name string) (Column, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, err := g.column(name)
	if err != nil {
		return Column{}, err
	}
	return *c, nil
}

func (g *Grid) Config() Config { return g.cfg }

// State returns a snapshot of the grid state.
func (g *Grid) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.state
	s.Selection = slices.Clone(s.Selection)
	s.UserData = maps.Clone(s.UserData)
	if s.Filter != nil {
		f := *s.Filter
		s.Filter = &f
	}
	return s
}

// Editor returns the editing engine of the grid.
func (g *Grid) Editor() *Editor { return g.editor }

// Extension looks up an installed extension by name.
func (g *Grid) Extension(name string) Extension {
	for _, ext := range g.exts {
		if ext.Name() == name {
			return ext
		}
	}
	return nil
}

func (g *Grid) isLocalSource() bool {
	ls, ok := g.src.(LocalSource)
	return ok && ls.IsLocal()
}

func (g *Grid) columnNames() []string {
	names := make([]string, len(g.columns))
	for i, c := range g.columns {
		names[i] = c.Name
	}
	return names
}

// request builds the fetch parameters for page.
func (g *Grid) request(page int, more bool) Request {
	req := Request{
		Page:      page,
		Rows:      g.state.RowsPerPage,
		SortOrder: g.state.SortOrder,
		Search:    g.state.Search,
		Extra:     maps.Clone(g.cfg.ExtraParams),
		Columns:   g.columnNames(),
		More:      more,
	}
	if c, err := g.column(g.state.SortColumn); err == nil {
		req.SortIndex = c.SortIndex()
	}
	if g.state.Search && g.state.Filter != nil {
		f := *g.state.Filter
		if c, err := g.column(f.Field); err == nil {
			f.Field = c.SortIndex()
		}
		req.Filter = &f
	}
	return req
}

// Load fetches the current page. A Load issued while another fetch is in
// flight waits for it to finish.
func (g *Grid) Load(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	rs, err := g.load(ctx, false)
	g.sem.Release(1)
	g.notifyLoad(rs, err)
	return err
}

// LoadMore appends the next page in virtual scroll mode. It returns false and
// ErrLoading when a fetch is already in flight, and false and a nil error
// when everything is loaded.
func (g *Grid) LoadMore(ctx context.Context) (bool, error) {
	if !g.sem.TryAcquire(1) {
		debugLog("load more skipped: fetch in flight\n")
		return false, ErrLoading
	}
	g.mu.Lock()
	done := g.state.Page >= g.state.lastPage() || len(g.rows) >= g.state.TotalRecords
	g.mu.Unlock()
	if done {
		g.sem.Release(1)
		return false, nil
	}
	rs, err := g.load(ctx, true)
	g.sem.Release(1)
	g.notifyLoad(rs, err)
	return true, err
}

// Scroll reacts to a scroll position in virtual mode and fetches the next
// window when the viewport runs past the loaded rows.
func (g *Grid) Scroll(ctx context.Context, scrollTop, rowHeight, viewport int) (bool, error) {
	g.mu.Lock()
	need := g.cfg.Scroll && g.state.NeedsFetch(scrollTop, rowHeight, viewport, len(g.rows))
	g.mu.Unlock()
	if !need {
		return false, nil
	}
	return g.LoadMore(ctx)
}

// notifyLoad runs the load hooks. Callers release sem first so a hook may
// start another load.
func (g *Grid) notifyLoad(rs *RowSet, err error) {
	if err != nil {
		if g.hooks.OnLoadError != nil {
			g.hooks.OnLoadError(err)
		}
		return
	}
	if rs != nil && g.hooks.OnLoadComplete != nil {
		g.hooks.OnLoadComplete(rs)
	}
}

// load runs one fetch. The caller holds sem and passes the result to
// notifyLoad after releasing it.
func (g *Grid) load(ctx context.Context, more bool) (*RowSet, error) {
	g.mu.Lock()
	if g.state.Local {
		if more {
			g.state.Page = g.state.clamp(g.state.Page + 1)
		}
		g.applyLocal()
		rs := g.localRowSet()
		g.mu.Unlock()
		return rs, nil
	}
	page := g.state.Page
	if more {
		page++
	}
	req := g.request(page, more)
	g.state.Loading = true
	g.mu.Unlock()

	debugLog("fetch page=%d rows=%d sidx=%q sord=%s more=%v\n", req.Page, req.Rows, req.SortIndex, req.SortOrder, more)
	rs, err := g.src.Fetch(ctx, req)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Loading = false
	if err == nil && rs == nil {
		err = &PayloadError{Format: "source", Err: fmt.Errorf("no row set returned")}
	}
	if err != nil {
		debugLog("fetch failed: %v\n", err)
		return nil, err
	}
	g.applyRowSet(req, rs)
	return rs, nil
}

// normalize assigns missing row ids from the key column or the absolute
// record position, so a re-fetch of the same page yields the same ids.
func (g *Grid) normalize(req Request, rows []*Row) {
	key := g.keyColumn()
	for i, r := range rows {
		if r.Cells == nil {
			r.Cells = make(map[string]string)
		}
		if r.ID == "" && key != "" {
			r.ID = r.Cells[key]
		}
		if r.ID == "" {
			r.ID = strconv.Itoa((max(req.Page, 1)-1)*req.Rows + i + 1)
		}
		if g.tree != nil {
			g.tree.absorb(r)
		}
	}
}

func (g *Grid) applyRowSet(req Request, rs *RowSet) {
	g.normalize(req, rs.Rows)
	if req.More {
		g.rows = append(g.rows, rs.Rows...)
	} else {
		g.rows = rs.Rows
		for _, ext := range g.exts {
			if r, ok := ext.(interface{ Reset() }); ok {
				r.Reset()
			}
		}
	}
	if rs.Page <= 0 {
		rs.Page = req.Page
	}
	g.state.update(rs, len(g.rows))
	g.state.LoadedCount = len(g.rows)
	g.state.UserData = rs.UserData
	if g.isLocalSource() || g.cfg.LoadOnce {
		g.state.Local = true
		g.all = g.rows
		g.applyLocal()
	} else if g.tree != nil {
		g.tree.refreshVisibility(g.rows)
	}
	g.editor.prune(req.More)
	g.pruneSelection()
}

// applyLocal filters, sorts and pages the local data set in memory.
func (g *Grid) applyLocal() {
	if g.tree != nil {
		rows := g.all
		if g.state.Search && g.state.Filter != nil {
			matches := g.filterRows(slices.Clone(rows), *g.state.Filter)
			rows = g.tree.withAncestors(rows, matches)
		}
		if c, err := g.column(g.state.SortColumn); err == nil {
			rows = g.tree.sortTree(rows, g.comparator(c, g.state.SortOrder))
		}
		g.rows = rows
		g.state.Page, g.state.TotalPages = 1, 1
		g.state.TotalRecords = len(rows)
		g.state.LoadedCount = len(rows)
		g.tree.refreshVisibility(g.rows)
		g.pruneSelection()
		return
	}
	rows := slices.Clone(g.all)
	if g.state.Search && g.state.Filter != nil {
		rows = g.filterRows(rows, *g.state.Filter)
	}
	if c, err := g.column(g.state.SortColumn); err == nil {
		sortRows(rows, g.comparator(c, g.state.SortOrder))
	}
	rpp := g.state.RowsPerPage
	g.state.TotalRecords = len(rows)
	g.state.TotalPages = max((len(rows)+rpp-1)/rpp, 1)
	g.state.Page = g.state.clamp(g.state.Page)
	start := (g.state.Page - 1) * rpp
	end := min(start+rpp, len(rows))
	if g.cfg.Scroll {
		start = 0
	}
	g.rows = rows[start:end]
	g.state.LoadedCount = len(g.rows)
	g.pruneSelection()
}

func (g *Grid) localRowSet() *RowSet {
	return &RowSet{
		Page:     g.state.Page,
		Total:    g.state.TotalPages,
		Records:  g.state.TotalRecords,
		Rows:     g.rows,
		UserData: g.state.UserData,
	}
}

// reloadWith applies mutate to the state and reloads. The paging, sort and
// search fields are restored when the fetch fails.
func (g *Grid) reloadWith(ctx context.Context, mutate func(s *State) bool) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.mu.Lock()
	prev := g.state
	if !mutate(&g.state) {
		g.mu.Unlock()
		g.sem.Release(1)
		return nil
	}
	g.mu.Unlock()
	rs, err := g.load(ctx, false)
	if err != nil {
		g.mu.Lock()
		g.state.Pager = prev.Pager
		g.state.SortColumn, g.state.SortOrder = prev.SortColumn, prev.SortOrder
		g.state.Search, g.state.Filter = prev.Search, prev.Filter
		g.mu.Unlock()
	}
	g.sem.Release(1)
	g.notifyLoad(rs, err)
	return err
}

// Paginate moves the pager and loads the resulting page. n is the target
// page for PageGoto.
func (g *Grid) Paginate(ctx context.Context, dir Direction, n int) error {
	return g.reloadWith(ctx, func(s *State) bool {
		_, changed := s.Next(dir, n)
		return changed
	})
}

// SetRowsPerPage changes the page size keeping the first visible record on
// screen.
func (g *Grid) SetRowsPerPage(ctx context.Context, n int) error {
	return g.reloadWith(ctx, func(s *State) bool {
		return s.Pager.SetRowsPerPage(n)
	})
}

// Search filters the grid on one field. Remote grids send the filter with the
// next fetch; local grids filter in memory.
func (g *Grid) Search(ctx context.Context, field, oper, value string) error {
	g.mu.Lock()
	_, err := g.column(field)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if !validOper(oper) {
		return fmt.Errorf("unknown search operator %q", oper)
	}
	return g.reloadWith(ctx, func(s *State) bool {
		s.Search = true
		s.Filter = &Filter{Field: field, Oper: oper, Value: value}
		s.Page = 1
		return true
	})
}

// ClearSearch drops the active filter.
func (g *Grid) ClearSearch(ctx context.Context) error {
	return g.reloadWith(ctx, func(s *State) bool {
		if !s.Search {
			return false
		}
		s.Search = false
		s.Filter = nil
		s.Page = 1
		return true
	})
}

func (g *Grid) rowIndex(id string) int {
	return slices.IndexFunc(g.rows, func(r *Row) bool { return r.ID == id })
}

func (g *Grid) row(id string) (*Row, error) {
	i := g.rowIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRow, id)
	}
	return g.rows[i], nil
}

// Rows returns copies of the loaded rows, hidden tree rows included.
func (g *Grid) Rows() []*Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Row, len(g.rows))
	for i, r := range g.rows {
		out[i] = r.clone()
	}
	return out
}

// Row returns a copy of one loaded row.
func (g *Grid) Row(id string) (*Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.row(id)
	if err != nil {
		return nil, err
	}
	return r.clone(), nil
}

func (g *Grid) GetDataIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, len(g.rows))
	for i, r := range g.rows {
		ids[i] = r.ID
	}
	return ids
}

func (g *Grid) GetCell(id, col string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.column(col); err != nil {
		return "", err
	}
	r, err := g.row(id)
	if err != nil {
		return "", err
	}
	return r.Cells[col], nil
}

// GetRowData returns the raw values of a row.
func (g *Grid) GetRowData(id string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.row(id)
	if err != nil {
		return nil, err
	}
	return maps.Clone(r.Cells), nil
}

// GetCol returns the raw values of one column over the loaded rows.
func (g *Grid) GetCol(name string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.column(name); err != nil {
		return nil, err
	}
	vals := make([]string, len(g.rows))
	for i, r := range g.rows {
		vals[i] = r.Cells[name]
	}
	return vals, nil
}

// SetRowData merges values into a row without going through the editor.
func (g *Grid) SetRowData(id string, values map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.row(id)
	if err != nil {
		return err
	}
	for k := range values {
		if _, err := g.column(k); err != nil {
			return err
		}
	}
	maps.Copy(r.Cells, values)
	return nil
}

// Position places an added row.
type Position int

const (
	PosLast Position = iota
	PosFirst
)

// AddRowData inserts a row locally. An empty id is generated.
func (g *Grid) AddRowData(id string, values map[string]string, pos Position) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range values {
		if _, err := g.column(k); err != nil {
			return "", err
		}
	}
	r := g.insertRow(id, maps.Clone(values), pos)
	return r.ID, nil
}

func (g *Grid) insertRow(id string, values map[string]string, pos Position) *Row {
	if id == "" {
		if key := g.keyColumn(); key != "" {
			id = values[key]
		}
	}
	if id == "" || g.rowIndex(id) >= 0 {
		id = g.generateID()
	}
	r := NewRow(id, values)
	if g.tree != nil {
		g.tree.absorb(r)
	}
	if pos == PosFirst {
		g.rows = slices.Insert(g.rows, 0, r)
	} else {
		g.rows = append(g.rows, r)
	}
	if g.state.Local {
		if pos == PosFirst {
			g.all = slices.Insert(g.all, 0, r)
		} else {
			g.all = append(g.all, r)
		}
	}
	g.state.TotalRecords++
	g.state.LoadedCount = len(g.rows)
	return r
}

func (g *Grid) generateID() string {
	for {
		g.nextID++
		id := "new" + strconv.Itoa(g.nextID)
		if g.rowIndex(id) < 0 {
			return id
		}
	}
}

// DelRowData removes a row locally.
func (g *Grid) DelRowData(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeRow(id)
}

func (g *Grid) removeRow(id string) error {
	i := g.rowIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRow, id)
	}
	g.rows = slices.Delete(g.rows, i, i+1)
	if g.state.Local {
		g.all = slices.DeleteFunc(g.all, func(r *Row) bool { return r.ID == id })
	}
	g.state.TotalRecords = max(g.state.TotalRecords-1, 0)
	g.state.LoadedCount = len(g.rows)
	g.state.Selection = slices.DeleteFunc(g.state.Selection, func(s string) bool { return s == id })
	return nil
}

// SetSelection selects id. In multi-select grids it toggles the row instead.
func (g *Grid) SetSelection(id string) error {
	g.mu.Lock()
	r, err := g.row(id)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	var changed []*Row
	if g.cfg.MultiSelect {
		r.Selected = !r.Selected
		changed = append(changed, r)
	} else {
		for _, o := range g.rows {
			if o.Selected && o != r {
				o.Selected = false
				changed = append(changed, o)
			}
		}
		if !r.Selected {
			r.Selected = true
			changed = append(changed, r)
		}
	}
	g.syncSelection()
	events := make([]Row, len(changed))
	for i, c := range changed {
		events[i] = Row{ID: c.ID, Selected: c.Selected}
	}
	g.mu.Unlock()
	if g.hooks.OnSelectRow != nil {
		for _, e := range events {
			g.hooks.OnSelectRow(e.ID, e.Selected)
		}
	}
	return nil
}

// ResetSelection clears the selection.
func (g *Grid) ResetSelection() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.rows {
		r.Selected = false
	}
	g.state.Selection = nil
}

// SelectAll selects every visible row of a multi-select grid.
func (g *Grid) SelectAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.cfg.MultiSelect {
		return
	}
	for _, r := range g.rows {
		if !r.Hidden {
			r.Selected = true
		}
	}
	g.syncSelection()
}

// Selection returns the selected ids in row order.
func (g *Grid) Selection() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.state.Selection)
}

func (g *Grid) syncSelection() {
	g.state.Selection = g.state.Selection[:0]
	for _, r := range g.rows {
		if r.Selected {
			g.state.Selection = append(g.state.Selection, r.ID)
		}
	}
}

// pruneSelection keeps only selected ids that are still loaded and marks
// freshly fetched rows that carry a selected id.
func (g *Grid) pruneSelection() {
	selected := make(map[string]bool, len(g.state.Selection))
	for _, id := range g.state.Selection {
		selected[id] = true
	}
	present := make(map[*Row]bool, len(g.rows))
	for _, r := range g.rows {
		present[r] = true
		if selected[r.ID] {
			r.Selected = true
		}
	}
	for _, r := range g.all {
		if !present[r] {
			r.Selected = false
		}
	}
	g.syncSelection()
}
