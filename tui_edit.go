package main

import "tedgrid/internal/grid"

// editTarget finds the value the input should edit: the focused field of an
// open form, the active cell, or the cursor column of an inline edited row.
func (m *Model) editTarget() (rowID, col string, ok bool) {
	ed := m.s.grid.Editor()
	if id, values, open := ed.FormValues(); open {
		fields := m.formFields(values)
		if len(fields) == 0 {
			return "", "", false
		}
		m.formField = min(max(m.formField, 0), len(fields)-1)
		return id, fields[m.formField], true
	}
	if r, c, ok := ed.ActiveCell(); ok {
		return r, c, true
	}
	if ed.State() != grid.StateEditing {
		return "", "", false
	}
	rowID, col = ed.Cursor()
	if _, ok := ed.Value(rowID, col); ok {
		return rowID, col, true
	}
	for _, c := range m.s.grid.Columns() {
		if _, ok := ed.Value(rowID, c.Name); ok && !c.Hidden {
			return rowID, c.Name, true
		}
	}
	return "", "", false
}

// formFields orders the fields of the open form by the column model.
func (m *Model) formFields(values map[string]string) []string {
	var fields []string
	for _, c := range m.s.grid.Columns() {
		if _, ok := values[c.Name]; ok {
			fields = append(fields, c.Name)
		}
	}
	return fields
}

// syncEdit binds the input to the current edit target, or returns to
// browsing when nothing is under edit.
func (m *Model) syncEdit() {
	rowID, col, ok := m.editTarget()
	if !ok {
		if m.mode == modeEdit {
			m.mode = modeBrowse
			m.input.Blur()
			recordNavigation("browse", m.s.name)
		}
		m.editRow, m.editCol = "", ""
		return
	}
	if m.mode == modeEdit && rowID == m.editRow && col == m.editCol {
		return
	}
	if m.mode != modeEdit {
		recordNavigation("edit", rowID)
	}
	v, _ := m.s.grid.Editor().Value(rowID, col)
	m.mode = modeEdit
	m.editRow, m.editCol = rowID, col
	m.input.Placeholder = ""
	m.input.SetValue(v)
	m.input.CursorEnd()
	m.input.Focus()
	if c, err := m.s.grid.Column(col); err == nil && m.errorMsg == "" {
		m.statusMsg = editHint(c)
	}
}

// flushInput stores the typed text into the editor.
func (m *Model) flushInput() error {
	if m.editCol == "" {
		return nil
	}
	return m.s.grid.Editor().SetValue(m.editRow, m.editCol, m.input.Value())
}
