package main

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"tedgrid/internal/grid"
)

type inputMode int

const (
	modeBrowse inputMode = iota
	modeEdit
	modeSearch
	modeGoto
	modeFind
)

func (m inputMode) String() string {
	switch m {
	case modeEdit:
		return "edit"
	case modeSearch:
		return "search"
	case modeGoto:
		return "goto"
	case modeFind:
		return "find"
	}
	return "browse"
}

// Model is the bubbletea model of the grid viewer. Grid operations that may
// reach a data source run as commands and report back with an opMsg; while
// one is in flight only quit is accepted.
type Model struct {
	ctx context.Context
	s   *session
	vim bool

	mode  inputMode
	input textinput.Model
	// editRow and editCol name the edit value the input is bound to.
	editRow   string
	editCol   string
	formField int
	searchCol string
	// pendingDelete is the row awaiting a second delete key press.
	pendingDelete string

	loaded    bool
	busy      bool
	scrollRow int

	width  int
	height int

	statusMsg string
	errorMsg  string
}

func NewModel(ctx context.Context, s *session, vim bool) Model {
	in := textinput.New()
	in.Prompt = ""
	return Model{
		ctx:    ctx,
		s:      s,
		vim:    vim,
		input:  in,
		width:  80,
		height: 24,
		// Init starts the first load.
		busy: true,
	}
}

// opMsg reports the end of a grid operation started by run.
type opMsg struct {
	action string
	err    error
	// reload is set for operations that replace the grid rows.
	reload bool
}

// run executes fn as a command.
func (m *Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy = true
	m.statusMsg = action + "..."
	ctx := m.ctx
	return func() tea.Msg {
		return opMsg{action: action, err: fn(ctx)}
	}
}

// runLoad executes fn as a command that replaces the grid rows.
func (m *Model) runLoad(action string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy = true
	m.statusMsg = action + "..."
	ctx := m.ctx
	return func() tea.Msg {
		return opMsg{action: action, err: fn(ctx), reload: true}
	}
}

// runEdit executes an editor action as a command.
func (m *Model) runEdit(action string, fn func(ctx context.Context) (grid.EditState, error)) tea.Cmd {
	return m.run(action, func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	})
}

func (m Model) Init() tea.Cmd {
	return m.runLoad("loading "+m.s.name, m.s.grid.Load)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, m.width/3)
		m.clampScroll()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		recordKey(msg.String())
		switch m.mode {
		case modeEdit:
			return m.handleEditingKeys(msg)
		case modeSearch, modeGoto, modeFind:
			return m.handlePromptKeys(msg)
		}
		return m.handleNavigationKeys(msg)

	case opMsg:
		m.busy = false
		if msg.reload {
			m.loaded = true
			if m.s.sub != nil {
				m.s.sub.Reset()
			}
		}
		m.finish(msg.action, msg.err)
		return m, nil
	}
	return m, nil
}

// finish updates the status line after an operation and re-syncs the input
// with the editor.
func (m *Model) finish(action string, err error) {
	if err != nil {
		m.errorMsg = describeError(err)
		m.statusMsg = ""
	} else {
		m.errorMsg = ""
		m.statusMsg = action
	}
	m.syncEdit()
	m.clampScroll()
}

func describeError(err error) string {
	var verr *grid.ValidationError
	var terr *grid.TransportError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &terr) && terr.Status > 0:
		return terr.Error()
	}
	return err.Error()
}

// visibleRows returns the view rows interleaved with the sub rows of
// expanded parents.
func (m *Model) visibleRows() []displayRow {
	var out []displayRow
	for _, v := range m.s.grid.ViewRows() {
		out = append(out, displayRow{ViewRow: v})
		if m.s.sub != nil {
			for _, sv := range m.s.sub.ViewRows(v.ID) {
				out = append(out, displayRow{ViewRow: sv, parent: v.ID})
			}
		}
	}
	return out
}

func (m *Model) cursorIndex(rows []displayRow) int {
	id, _ := m.s.grid.Editor().Cursor()
	for i, r := range rows {
		if r.parent == "" && r.ID == id {
			return i
		}
	}
	return 0
}

// bodyHeight is the number of grid rows that fit the window.
func (m *Model) bodyHeight() int {
	h := m.height - 3
	if _, values, open := m.s.grid.Editor().FormValues(); open {
		h -= len(values) + 3
	}
	return max(h, 1)
}

// clampScroll keeps the cursor row inside the displayed window.
func (m *Model) clampScroll() {
	rows := m.visibleRows()
	cur := m.cursorIndex(rows)
	body := m.bodyHeight()
	if cur < m.scrollRow {
		m.scrollRow = cur
	}
	if cur >= m.scrollRow+body {
		m.scrollRow = cur - body + 1
	}
	m.scrollRow = max(0, min(m.scrollRow, len(rows)-1))
}
