package grid

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// EditState is the state of one edit.
type EditState int

const (
	StateViewing EditState = iota
	StateEditing
	StateSaving
)

func (s EditState) String() string {
	switch s {
	case StateViewing:
		return "viewing"
	case StateEditing:
		return "editing"
	case StateSaving:
		return "saving"
	}
	return "unknown"
}

// EditMode is the granularity of an edit.
type EditMode int

const (
	ModeInlineRow EditMode = iota
	ModeCell
	ModeForm
)

func (m EditMode) String() string {
	switch m {
	case ModeInlineRow:
		return "inline"
	case ModeCell:
		return "cell"
	case ModeForm:
		return "form"
	}
	return "unknown"
}

// ParseEditMode maps a configuration name to an EditMode.
func ParseEditMode(s string) (EditMode, error) {
	switch s {
	case "", "inline", "row":
		return ModeInlineRow, nil
	case "cell":
		return ModeCell, nil
	case "form":
		return ModeForm, nil
	}
	return ModeInlineRow, fmt.Errorf("unknown edit mode %q", s)
}

// Event drives the edit state machine.
type Event int

const (
	EventBegin Event = iota
	EventSave
	EventValidationFailed
	EventFetchCompleted
	EventFetchFailed
	EventCancel
)

var eventNames = [...]string{"begin", "save", "validation failed", "fetch completed", "fetch failed", "cancel"}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

var transitions = map[EditState]map[Event]EditState{
	StateViewing: {
		EventBegin: StateEditing,
	},
	StateEditing: {
		EventSave:             StateSaving,
		EventValidationFailed: StateEditing,
		EventCancel:           StateViewing,
	},
	StateSaving: {
		EventFetchCompleted: StateViewing,
		EventFetchFailed:    StateEditing,
	},
}

// Transition returns the state reached from s on ev.
func Transition(s EditState, ev Event) (EditState, error) {
	if to, ok := transitions[s][ev]; ok {
		return to, nil
	}
	return s, fmt.Errorf("edit: %s is not allowed while %s", ev, s)
}

// Key is a keyboard event understood by the editor.
type Key int

const (
	KeyEnter Key = iota
	KeyEscape
	KeyTab
	KeyShiftTab
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
)

// editLock is one entry of the edit-lock stack.
type editLock struct {
	mode   EditMode
	state  EditState
	rowID  string
	column string
	add    bool
	// snapshot is the row as it was when the edit began, nil for adds.
	snapshot *Row
	values   map[string]string
}

func (l *editLock) fire(ev Event) error {
	to, err := Transition(l.state, ev)
	if err != nil {
		return err
	}
	l.state = to
	return nil
}

// LockInfo describes an active edit.
type LockInfo struct {
	Mode   EditMode
	State  EditState
	RowID  string
	Column string
	Add    bool
}

// Editor is the editing engine. All three modes share one lock stack: at most
// one cell or form edit exists at a time, and inline rows are exclusive
// unless AllowMultipleInlineEdits is set.
type Editor struct {
	g         *Grid
	locks     []*editLock
	cursorRow string
	cursorCol string
}

func newEditor(g *Grid) *Editor {
	return &Editor{g: g}
}

func (e *Editor) active() bool { return len(e.locks) > 0 }

// State is the aggregate state: saving if any edit is saving, editing if any
// edit is open.
func (e *Editor) State() EditState {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	return e.state()
}

func (e *Editor) state() EditState {
	s := StateViewing
	for _, l := range e.locks {
		if l.state == StateSaving {
			return StateSaving
		}
		if l.state == StateEditing {
			s = StateEditing
		}
	}
	return s
}

// Locks returns the edit-lock stack, oldest first.
func (e *Editor) Locks() []LockInfo {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	out := make([]LockInfo, len(e.locks))
	for i, l := range e.locks {
		out[i] = LockInfo{Mode: l.mode, State: l.state, RowID: l.rowID, Column: l.column, Add: l.add}
	}
	return out
}

func (e *Editor) find(mode EditMode, rowID string) *editLock {
	for _, l := range e.locks {
		if l.mode != mode {
			continue
		}
		if mode != ModeInlineRow || l.rowID == rowID {
			return l
		}
	}
	return nil
}

func (e *Editor) remove(l *editLock) {
	e.locks = slices.DeleteFunc(e.locks, func(o *editLock) bool { return o == l })
	if l.rowID == "" {
		return
	}
	for _, o := range e.locks {
		if o.rowID == l.rowID {
			return
		}
	}
	if r, err := e.g.row(l.rowID); err == nil {
		r.Editing = false
	}
}

// conflicts lists the open edits that must be saved before a new edit in mode
// may begin.
func (e *Editor) conflicts(mode EditMode, rowID, column string) []*editLock {
	var out []*editLock
	for _, l := range e.locks {
		if l.mode == mode && l.rowID == rowID && l.column == column {
			continue
		}
		if mode == ModeInlineRow && l.mode == ModeInlineRow && e.g.cfg.AllowMultipleInlineEdits {
			continue
		}
		out = append(out, l)
	}
	return out
}

// editableValues snapshots the raw values of the editable columns of r.
func (e *Editor) editableValues(r *Row, only string) map[string]string {
	vals := make(map[string]string)
	for _, c := range e.g.columns {
		if !c.Editable || (only != "" && c.Name != only) {
			continue
		}
		if r == nil {
			vals[c.Name] = c.EditOptions.DefaultValue
		} else {
			vals[c.Name] = r.Cells[c.Name]
		}
	}
	return vals
}

// target resolves the row and column an edit is about to open on.
func (e *Editor) target(rowID, column string, add bool) (*Row, error) {
	var r *Row
	if !add {
		var err error
		if r, err = e.g.row(rowID); err != nil {
			return nil, err
		}
	}
	if column != "" {
		c, err := e.g.column(column)
		if err != nil {
			return nil, err
		}
		if !c.Editable {
			return nil, fmt.Errorf("%w: %s", ErrNotEditable, column)
		}
	}
	return r, nil
}

// begin opens an edit. Any conflicting open edit is saved first; when that
// save fails the new edit is not started.
func (e *Editor) begin(ctx context.Context, mode EditMode, rowID, column string, add bool) (EditState, error) {
	g := e.g
	g.mu.Lock()
	if l := e.find(mode, rowID); l != nil && l.add == add && l.rowID == rowID && l.column == column {
		g.mu.Unlock()
		return l.state, nil
	}
	if _, err := e.target(rowID, column, add); err != nil {
		g.mu.Unlock()
		return e.state(), err
	}
	pending := e.conflicts(mode, rowID, column)
	for _, l := range pending {
		if l.state == StateSaving {
			g.mu.Unlock()
			return StateSaving, ErrEditLocked
		}
	}
	g.mu.Unlock()

	for _, l := range pending {
		if err := e.commit(ctx, l); err != nil {
			return e.State(), fmt.Errorf("save pending %s edit: %w", l.mode, err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(e.conflicts(mode, rowID, column)) > 0 {
		return e.state(), ErrEditLocked
	}
	r, err := e.target(rowID, column, add)
	if err != nil {
		return e.state(), err
	}
	l := &editLock{
		mode:   mode,
		rowID:  rowID,
		column: column,
		add:    add,
		values: e.editableValues(r, column),
	}
	if r != nil {
		l.snapshot = r.clone()
		r.Editing = true
		e.cursorRow = rowID
		if column != "" {
			e.cursorCol = column
		}
	}
	if err := l.fire(EventBegin); err != nil {
		return e.state(), err
	}
	e.locks = append(e.locks, l)
	debugLog("begin %s edit row=%q col=%q\n", mode, rowID, column)
	return l.state, nil
}

// commit validates and persists one open edit. The row is updated before
// the request; when the request fails the snapshot is restored and the edit
// stays open with the typed values.
func (e *Editor) commit(ctx context.Context, l *editLock) error {
	g := e.g
	g.mu.Lock()
	if l.state != StateEditing {
		g.mu.Unlock()
		return ErrNotEditing
	}
	if g.state.Loading {
		g.mu.Unlock()
		return ErrLoading
	}
	if err := g.validateValues(l.values); err != nil {
		_ = l.fire(EventValidationFailed)
		g.mu.Unlock()
		debugLog("validation failed: %v\n", err)
		return err
	}
	if err := l.fire(EventSave); err != nil {
		g.mu.Unlock()
		return err
	}
	op := Operation{Kind: OperEdit, ID: l.rowID, Values: maps.Clone(l.values)}
	var r *Row
	if l.add {
		op.Kind = OperAdd
		op.ID = ""
		r = g.insertRow("", maps.Clone(l.values), PosFirst)
	} else {
		var err error
		if r, err = g.row(l.rowID); err != nil {
			_ = l.fire(EventFetchFailed)
			g.mu.Unlock()
			return err
		}
		maps.Copy(r.Cells, l.values)
	}
	persister := g.persister
	g.mu.Unlock()

	var res Result
	var err error
	if persister != nil {
		res, err = persister.Persist(ctx, op)
	}

	g.mu.Lock()
	if err != nil {
		if l.add {
			_ = g.removeRow(r.ID)
		} else {
			r.Cells = maps.Clone(l.snapshot.Cells)
		}
		_ = l.fire(EventFetchFailed)
		g.mu.Unlock()
		debugLog("%s row %q failed: %v\n", op.Kind, op.ID, err)
		if g.hooks.OnSubmitError != nil {
			g.hooks.OnSubmitError(op, err)
		}
		return err
	}
	maps.Copy(r.Cells, res.Values)
	if l.add {
		if res.ID != "" && res.ID != r.ID && g.rowIndex(res.ID) < 0 {
			r.ID = res.ID
		}
		l.rowID = r.ID
		if key := g.keyColumn(); key != "" && r.Cells[key] == "" {
			r.Cells[key] = r.ID
		}
	}
	r.Dirty = persister == nil
	_ = l.fire(EventFetchCompleted)
	e.remove(l)
	g.mu.Unlock()
	return nil
}

// restore cancels one open edit and puts the pre-edit values back.
func (e *Editor) restore(l *editLock) EditState {
	if l == nil || l.state != StateEditing {
		return e.state()
	}
	_ = l.fire(EventCancel)
	if l.snapshot != nil {
		if r, err := e.g.row(l.rowID); err == nil {
			r.Cells = maps.Clone(l.snapshot.Cells)
		}
	}
	e.remove(l)
	debugLog("restore %s edit row=%q\n", l.mode, l.rowID)
	return e.state()
}

// prune drops edits invalidated by a reload. A full reload replaces every
// row, so only saves in flight and add forms survive it; appending a page
// keeps edits whose rows are still loaded.
func (e *Editor) prune(more bool) {
	e.locks = slices.DeleteFunc(e.locks, func(l *editLock) bool {
		if l.add || l.state == StateSaving {
			return false
		}
		if !more || e.g.rowIndex(l.rowID) < 0 {
			_ = l.fire(EventCancel)
			debugLog("reload dropped %s edit row=%q\n", l.mode, l.rowID)
			return true
		}
		return false
	})
	if e.cursorRow != "" && e.g.rowIndex(e.cursorRow) < 0 {
		e.cursorRow = ""
	}
}

// Value returns the current edit control value of a cell under edit. Use an
// empty rowID for the add form.
func (e *Editor) Value(rowID, col string) (string, bool) {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	for _, l := range e.locks {
		if l.rowID == rowID {
			v, ok := l.values[col]
			return v, ok
		}
	}
	return "", false
}

// SetValue stores what the user typed into an edit control.
func (e *Editor) SetValue(rowID, col, value string) error {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	for _, l := range e.locks {
		if l.rowID != rowID {
			continue
		}
		if _, ok := l.values[col]; !ok {
			return fmt.Errorf("%w: %s", ErrNotEditable, col)
		}
		if l.state != StateEditing {
			return ErrEditLocked
		}
		l.values[col] = value
		return nil
	}
	return ErrNotEditing
}

// EditRow opens an inline edit of every editable cell of a row.
func (e *Editor) EditRow(ctx context.Context, id string) (EditState, error) {
	return e.begin(ctx, ModeInlineRow, id, "", false)
}

// SaveRow submits the inline edit of a row.
func (e *Editor) SaveRow(ctx context.Context, id string) (EditState, error) {
	e.g.mu.Lock()
	l := e.find(ModeInlineRow, id)
	e.g.mu.Unlock()
	if l == nil {
		return e.State(), ErrNotEditing
	}
	err := e.commit(ctx, l)
	return e.State(), err
}

// RestoreRow cancels the inline edit of a row. It is a no-op when the row is
// not being edited.
func (e *Editor) RestoreRow(id string) EditState {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	return e.restore(e.find(ModeInlineRow, id))
}

// EditCell opens a single cell edit, saving the active one first.
func (e *Editor) EditCell(ctx context.Context, id, col string) (EditState, error) {
	return e.begin(ctx, ModeCell, id, col, false)
}

func (e *Editor) SaveCell(ctx context.Context) (EditState, error) {
	e.g.mu.Lock()
	l := e.find(ModeCell, "")
	e.g.mu.Unlock()
	if l == nil {
		return e.State(), ErrNotEditing
	}
	err := e.commit(ctx, l)
	return e.State(), err
}

func (e *Editor) RestoreCell() EditState {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	return e.restore(e.find(ModeCell, ""))
}

// ActiveCell returns the cell under edit.
func (e *Editor) ActiveCell() (rowID, col string, ok bool) {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	if l := e.find(ModeCell, ""); l != nil {
		return l.rowID, l.column, true
	}
	return "", "", false
}

// position is a cursor location over visible rows and columns.
type position struct {
	row, col int
}

func (e *Editor) visibleRows() []*Row {
	var out []*Row
	for _, r := range e.g.rows {
		if !r.Hidden {
			out = append(out, r)
		}
	}
	return out
}

func (e *Editor) visibleColumns() []int {
	var out []int
	for i, c := range e.g.columns {
		if !c.Hidden {
			out = append(out, i)
		}
	}
	return out
}

func (e *Editor) cursorPosition(rows []*Row, cols []int) position {
	p := position{}
	for i, r := range rows {
		if r.ID == e.cursorRow {
			p.row = i
		}
	}
	for i, c := range cols {
		if e.g.columns[c].Name == e.cursorCol {
			p.col = i
		}
	}
	return p
}

// stepEditable walks from the cursor to the next editable cell in dir (+1 or
// -1), continuing on the next or previous row.
func (e *Editor) stepEditable(dir int) (rowID, col string, ok bool) {
	rows, cols := e.visibleRows(), e.visibleColumns()
	if len(rows) == 0 || len(cols) == 0 {
		return "", "", false
	}
	p := e.cursorPosition(rows, cols)
	flat := p.row*len(cols) + p.col
	for i := flat + dir; i >= 0 && i < len(rows)*len(cols); i += dir {
		c := e.g.columns[cols[i%len(cols)]]
		if c.Editable {
			return rows[i/len(cols)].ID, c.Name, true
		}
	}
	return "", "", false
}

func (e *Editor) moveCell(ctx context.Context, dir int) (EditState, error) {
	e.g.mu.Lock()
	if l := e.find(ModeCell, ""); l != nil {
		e.cursorRow, e.cursorCol = l.rowID, l.column
	}
	rowID, col, ok := e.stepEditable(dir)
	l := e.find(ModeCell, "")
	e.g.mu.Unlock()
	if !ok {
		if l == nil {
			return e.State(), nil
		}
		err := e.commit(ctx, l)
		return e.State(), err
	}
	return e.EditCell(ctx, rowID, col)
}

// NextCell saves the active cell and edits the next editable one.
func (e *Editor) NextCell(ctx context.Context) (EditState, error) {
	return e.moveCell(ctx, 1)
}

// PrevCell saves the active cell and edits the previous editable one.
func (e *Editor) PrevCell(ctx context.Context) (EditState, error) {
	return e.moveCell(ctx, -1)
}

// Cursor returns the keyboard cursor.
func (e *Editor) Cursor() (rowID, col string) {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	rows, cols := e.visibleRows(), e.visibleColumns()
	if len(rows) == 0 || len(cols) == 0 {
		return "", ""
	}
	p := e.cursorPosition(rows, cols)
	return rows[p.row].ID, e.g.columns[cols[p.col]].Name
}

// SetCursor moves the keyboard cursor to a cell.
func (e *Editor) SetCursor(rowID, col string) error {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	if _, err := e.g.row(rowID); err != nil {
		return err
	}
	if _, err := e.g.column(col); err != nil {
		return err
	}
	e.cursorRow, e.cursorCol = rowID, col
	return nil
}

// MoveCursor moves the keyboard cursor without entering edit, clamped to the
// visible cells.
func (e *Editor) MoveCursor(dRow, dCol int) {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	rows, cols := e.visibleRows(), e.visibleColumns()
	if len(rows) == 0 || len(cols) == 0 {
		return
	}
	p := e.cursorPosition(rows, cols)
	p.row = min(max(p.row+dRow, 0), len(rows)-1)
	p.col = min(max(p.col+dCol, 0), len(cols)-1)
	e.cursorRow = rows[p.row].ID
	e.cursorCol = e.g.columns[cols[p.col]].Name
}

// FormEdit opens the edit form on a row.
func (e *Editor) FormEdit(ctx context.Context, id string) (EditState, error) {
	return e.begin(ctx, ModeForm, id, "", false)
}

// FormAdd opens a blank form seeded with column default values.
func (e *Editor) FormAdd(ctx context.Context) (EditState, error) {
	return e.begin(ctx, ModeForm, "", "", true)
}

func (e *Editor) FormSubmit(ctx context.Context) (EditState, error) {
	e.g.mu.Lock()
	l := e.find(ModeForm, "")
	e.g.mu.Unlock()
	if l == nil {
		return e.State(), ErrNotEditing
	}
	err := e.commit(ctx, l)
	return e.State(), err
}

func (e *Editor) FormCancel() EditState {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	return e.restore(e.find(ModeForm, ""))
}

// FormValues returns the values of the open form.
func (e *Editor) FormValues() (rowID string, values map[string]string, ok bool) {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	l := e.find(ModeForm, "")
	if l == nil {
		return "", nil, false
	}
	return l.rowID, maps.Clone(l.values), true
}

func (l *editLock) dirty() bool {
	if l.snapshot == nil {
		return true
	}
	for k, v := range l.values {
		if l.snapshot.Cells[k] != v {
			return true
		}
	}
	return false
}

// FormNext moves the form to the next loaded row.
func (e *Editor) FormNext(ctx context.Context) (EditState, error) {
	return e.formMove(ctx, 1)
}

// FormPrev moves the form to the previous loaded row.
func (e *Editor) FormPrev(ctx context.Context) (EditState, error) {
	return e.formMove(ctx, -1)
}

// formMove saves the form when CheckOnNavigate is set and it has changes,
// otherwise discards it, then opens the neighbouring row.
func (e *Editor) formMove(ctx context.Context, dir int) (EditState, error) {
	g := e.g
	g.mu.Lock()
	l := e.find(ModeForm, "")
	if l == nil || l.add {
		g.mu.Unlock()
		return e.State(), ErrNotEditing
	}
	rows := e.visibleRows()
	i := slices.IndexFunc(rows, func(r *Row) bool { return r.ID == l.rowID })
	j := i + dir
	if i < 0 || j < 0 || j >= len(rows) {
		g.mu.Unlock()
		return e.State(), nil
	}
	target := rows[j].ID
	check := g.cfg.CheckOnNavigate && l.dirty()
	if !check {
		e.restore(l)
	}
	g.mu.Unlock()
	if check {
		if err := e.commit(ctx, l); err != nil {
			return e.State(), err
		}
	}
	return e.FormEdit(ctx, target)
}

// DelRow deletes a row through the persister, removing it locally once the
// delete is confirmed. It returns ErrLoading while a fetch is in flight.
func (e *Editor) DelRow(ctx context.Context, id string) error {
	g := e.g
	g.mu.Lock()
	if _, err := g.row(id); err != nil {
		g.mu.Unlock()
		return err
	}
	if g.state.Loading {
		g.mu.Unlock()
		return ErrLoading
	}
	for _, l := range e.locks {
		if l.rowID == id {
			g.mu.Unlock()
			return ErrEditLocked
		}
	}
	persister := g.persister
	g.mu.Unlock()

	op := Operation{Kind: OperDel, ID: id}
	if persister != nil {
		if _, err := persister.Persist(ctx, op); err != nil {
			if g.hooks.OnSubmitError != nil {
				g.hooks.OnSubmitError(op, err)
			}
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rowIndex(id) < 0 {
		return nil
	}
	return g.removeRow(id)
}

// HandleKey maps a key press to the editor action for the grid's edit mode.
func (e *Editor) HandleKey(ctx context.Context, k Key) (EditState, error) {
	switch e.g.cfg.EditMode {
	case ModeCell:
		return e.cellKey(ctx, k)
	case ModeForm:
		return e.formKey(ctx, k)
	}
	return e.inlineKey(ctx, k)
}

func (e *Editor) arrow(k Key) {
	switch k {
	case KeyUp:
		e.MoveCursor(-1, 0)
	case KeyDown:
		e.MoveCursor(1, 0)
	case KeyLeft:
		e.MoveCursor(0, -1)
	case KeyRight:
		e.MoveCursor(0, 1)
	}
}

func (e *Editor) cellKey(ctx context.Context, k Key) (EditState, error) {
	_, _, editing := e.ActiveCell()
	switch k {
	case KeyEnter:
		if editing {
			return e.SaveCell(ctx)
		}
		row, col := e.Cursor()
		if row == "" {
			return e.State(), nil
		}
		return e.EditCell(ctx, row, col)
	case KeyEscape:
		return e.RestoreCell(), nil
	case KeyTab:
		return e.NextCell(ctx)
	case KeyShiftTab:
		return e.PrevCell(ctx)
	}
	if !editing {
		e.arrow(k)
	}
	return e.State(), nil
}

func (e *Editor) inlineRow() string {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	if l := e.find(ModeInlineRow, e.cursorRow); l != nil {
		return l.rowID
	}
	for _, l := range e.locks {
		if l.mode == ModeInlineRow {
			return l.rowID
		}
	}
	return ""
}

func (e *Editor) inlineKey(ctx context.Context, k Key) (EditState, error) {
	editing := e.inlineRow()
	switch k {
	case KeyEnter:
		if editing != "" {
			return e.SaveRow(ctx, editing)
		}
		row, _ := e.Cursor()
		if row == "" {
			return e.State(), nil
		}
		return e.EditRow(ctx, row)
	case KeyEscape:
		if editing == "" {
			return e.State(), nil
		}
		return e.RestoreRow(editing), nil
	case KeyTab, KeyShiftTab:
		e.moveEditableColumn(k == KeyTab)
		return e.State(), nil
	}
	if editing == "" {
		e.arrow(k)
	}
	return e.State(), nil
}

// moveEditableColumn moves the cursor to the next editable column of the
// current row without saving.
func (e *Editor) moveEditableColumn(forward bool) {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	cols := e.visibleColumns()
	if len(cols) == 0 {
		return
	}
	p := e.cursorPosition(e.visibleRows(), cols)
	dir := 1
	if !forward {
		dir = -1
	}
	for i := p.col + dir; i >= 0 && i < len(cols); i += dir {
		if c := e.g.columns[cols[i]]; c.Editable {
			e.cursorCol = c.Name
			return
		}
	}
}

func (e *Editor) formKey(ctx context.Context, k Key) (EditState, error) {
	_, _, open := e.FormValues()
	switch k {
	case KeyEnter:
		if open {
			return e.FormSubmit(ctx)
		}
		row, _ := e.Cursor()
		if row == "" {
			return e.State(), nil
		}
		return e.FormEdit(ctx, row)
	case KeyEscape:
		return e.FormCancel(), nil
	}
	if open {
		switch k {
		case KeyDown:
			return e.FormNext(ctx)
		case KeyUp:
			return e.FormPrev(ctx)
		case KeyTab, KeyShiftTab:
			e.moveEditableColumn(k == KeyTab)
		}
		return e.State(), nil
	}
	e.arrow(k)
	return e.State(), nil
}
