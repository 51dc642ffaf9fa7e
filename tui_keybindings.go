package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"tedgrid/internal/grid"
)

var arrowKeys = map[string]grid.Key{
	"up":    grid.KeyUp,
	"down":  grid.KeyDown,
	"left":  grid.KeyLeft,
	"right": grid.KeyRight,
}

var vimKeys = map[string]string{"k": "up", "j": "down", "h": "left", "l": "right"}

func (m Model) handleNavigationKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if alias, ok := vimKeys[key]; ok && m.vim {
		key = alias
	}
	if key != "d" {
		m.pendingDelete = ""
	}
	ed := m.s.grid.Editor()
	cfg := m.s.grid.Config()
	rowID, col := ed.Cursor()
	m.errorMsg = ""

	switch key {
	case "q":
		return m, tea.Quit

	case "up", "left", "right":
		_, _ = ed.HandleKey(m.ctx, arrowKeys[key])
		m.clampScroll()

	case "down":
		rows := m.s.grid.ViewRows()
		if cfg.Scroll && len(rows) > 0 && rows[len(rows)-1].ID == rowID {
			return m, m.run("loading more rows", func(ctx context.Context) error {
				_, err := m.s.grid.LoadMore(ctx)
				if errors.Is(err, grid.ErrLoading) {
					return nil
				}
				if err == nil {
					ed.MoveCursor(1, 0)
				}
				return err
			})
		}
		_, _ = ed.HandleKey(m.ctx, grid.KeyDown)
		m.clampScroll()

	case "tab", "shift+tab":
		if cfg.EditMode == grid.ModeCell {
			k := grid.KeyTab
			if key == "shift+tab" {
				k = grid.KeyShiftTab
			}
			return m, m.runEdit("editing", func(ctx context.Context) (grid.EditState, error) {
				return ed.HandleKey(ctx, k)
			})
		}
		dCol := 1
		if key == "shift+tab" {
			dCol = -1
		}
		ed.MoveCursor(0, dCol)

	case "enter":
		m.formField = 0
		return m, m.runEdit("editing", func(ctx context.Context) (grid.EditState, error) {
			return ed.HandleKey(ctx, grid.KeyEnter)
		})

	case "e":
		m.formField = 0
		if rowID != "" {
			return m, m.runEdit("editing", func(ctx context.Context) (grid.EditState, error) {
				return ed.FormEdit(ctx, rowID)
			})
		}

	case "a":
		m.formField = 0
		return m, m.runEdit("adding", ed.FormAdd)

	case "d":
		if rowID == "" {
			break
		}
		if m.pendingDelete != rowID {
			m.pendingDelete = rowID
			m.statusMsg = fmt.Sprintf("delete row %s? press d again", rowID)
			break
		}
		m.pendingDelete = ""
		recordEdit(m.s.name, "del", rowID)
		return m, m.run("deleted "+rowID, func(ctx context.Context) error {
			return ed.DelRow(ctx, rowID)
		})

	case "n", "pgdown":
		return m, m.paginate("next page", grid.PageNext, 0)
	case "p", "pgup":
		return m, m.paginate("previous page", grid.PagePrev, 0)
	case "g", "home":
		return m, m.paginate("first page", grid.PageFirst, 0)
	case "G", "end":
		return m, m.paginate("last page", grid.PageLast, 0)
	case ":":
		m.prompt(modeGoto, "page")
	case "f":
		m.prompt(modeFind, "column")

	case "+", "-":
		n := m.s.grid.State().RowsPerPage
		if key == "+" {
			n += 5
		} else {
			n = max(5, n-5)
		}
		return m, m.runLoad(fmt.Sprintf("%d rows per page", n), func(ctx context.Context) error {
			return m.s.grid.SetRowsPerPage(ctx, n)
		})

	case "s":
		if col == "" {
			break
		}
		recordNavigation("sort", col)
		return m, m.runLoad("sorted by "+col, func(ctx context.Context) error {
			return m.s.grid.SortBy(ctx, col)
		})

	case "/":
		if col != "" {
			m.searchCol = col
			m.prompt(modeSearch, "contains")
		}
	case "\\":
		return m, m.runLoad("search cleared", m.s.grid.ClearSearch)

	case " ":
		switch {
		case rowID == "":
		case m.s.tree != nil:
			return m, m.run("toggled "+rowID, func(ctx context.Context) error {
				return m.s.tree.ToggleNode(ctx, rowID)
			})
		case m.s.sub != nil:
			return m, m.run("toggled "+rowID, func(ctx context.Context) error {
				return m.s.sub.Toggle(ctx, rowID)
			})
		}

	case "x":
		if rowID != "" {
			if err := m.s.grid.SetSelection(rowID); err != nil {
				m.errorMsg = err.Error()
			}
		}
	case "X":
		if cfg.MultiSelect && len(m.s.grid.Selection()) == 0 {
			m.s.grid.SelectAll()
		} else {
			m.s.grid.ResetSelection()
		}

	case "r", "ctrl+r", "f5":
		return m, m.runLoad("reloaded", m.s.grid.Load)
	}
	return m, nil
}

func (m *Model) paginate(action string, dir grid.Direction, n int) tea.Cmd {
	recordNavigation("page", action)
	return m.runLoad(action, func(ctx context.Context) error {
		return m.s.grid.Paginate(ctx, dir, n)
	})
}

// prompt opens the input line for a search value, page number or column.
func (m *Model) prompt(mode inputMode, placeholder string) {
	m.mode = mode
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	m.input.Focus()
	recordNavigation(mode.String(), placeholder)
}

func (m Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil

	case "enter":
		mode, value := m.mode, m.input.Value()
		m.mode = modeBrowse
		m.input.Blur()
		if mode == modeFind {
			if !m.jumpToColumn(value) {
				m.errorMsg = fmt.Sprintf("no column matches %q", value)
			}
			m.clampScroll()
			return m, nil
		}
		if mode == modeGoto {
			page, err := strconv.Atoi(value)
			if err != nil {
				m.errorMsg = fmt.Sprintf("not a page number: %q", value)
				return m, nil
			}
			return m, m.paginate(fmt.Sprintf("page %d", page), grid.PageGoto, page)
		}
		if value == "" {
			return m, m.runLoad("search cleared", m.s.grid.ClearSearch)
		}
		col := m.searchCol
		return m, m.runLoad(fmt.Sprintf("%s contains %q", col, value), func(ctx context.Context) error {
			return m.s.grid.Search(ctx, col, "cn", value)
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleEditingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ed := m.s.grid.Editor()
	_, _, formOpen := ed.FormValues()
	key := msg.String()

	switch key {
	case "esc":
		if formOpen {
			ed.FormCancel()
		} else {
			_, _ = ed.HandleKey(m.ctx, grid.KeyEscape)
		}
		recordEdit(m.s.name, "cancel", m.editRow)
		m.statusMsg = "edit cancelled"
		m.errorMsg = ""
		m.syncEdit()
		m.clampScroll()
		return m, nil

	case "enter", "tab", "shift+tab", "up", "down":
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if err := m.flushInput(); err != nil {
		m.errorMsg = err.Error()
		return m, nil
	}

	if formOpen {
		switch key {
		case "tab":
			m.formField++
			m.syncEdit()
			return m, nil
		case "shift+tab":
			m.formField--
			m.syncEdit()
			return m, nil
		case "up":
			return m, m.runEdit("previous row", ed.FormPrev)
		case "down":
			return m, m.runEdit("next row", ed.FormNext)
		}
		recordEdit(m.s.name, "submit", m.editRow)
		return m, m.runEdit("saved", ed.FormSubmit)
	}

	var k grid.Key
	switch key {
	case "enter":
		k = grid.KeyEnter
		recordEdit(m.s.name, "save", m.editRow)
	case "tab":
		k = grid.KeyTab
	case "shift+tab":
		k = grid.KeyShiftTab
	default:
		return m, nil
	}
	if k != grid.KeyEnter && m.s.grid.Config().EditMode != grid.ModeCell {
		_, _ = ed.HandleKey(m.ctx, k)
		m.syncEdit()
		return m, nil
	}
	return m, m.runEdit("saved", func(ctx context.Context) (grid.EditState, error) {
		return ed.HandleKey(ctx, k)
	})
}
