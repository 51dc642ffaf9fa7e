package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"tedgrid/internal/grid"
)

// displayRow is a grid row or, when parent is set, a sub row shown under it.
type displayRow struct {
	grid.ViewRow
	parent string
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	cursorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("4")).Foreground(lipgloss.Color("15"))
	editingStyle  = lipgloss.NewStyle().Background(lipgloss.Color("8"))
	altRowStyle   = lipgloss.NewStyle().Background(lipgloss.Color("236"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	subRowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	formStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const (
	minColumnWidth = 3
	maxColumnWidth = 30
	markerWidth    = 2
)

// fit pads or truncates s to exactly w cells.
func fit(s string, w int, align grid.Align) string {
	s = runewidth.Truncate(s, w, "…")
	pad := w - runewidth.StringWidth(s)
	switch align {
	case grid.AlignRight:
		return strings.Repeat(" ", pad) + s
	case grid.AlignCenter:
		left := pad / 2
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
	}
	return s + strings.Repeat(" ", pad)
}

func sortGlyph(h grid.Header) string {
	if !h.Sorted {
		return ""
	}
	if h.Order == grid.Desc {
		return " ▼"
	}
	return " ▲"
}

func treeGlyph(v grid.ViewRow) string {
	indent := strings.Repeat("  ", max(v.Level, 0))
	switch {
	case v.Leaf:
		return indent + "· "
	case v.Expanded:
		return indent + "▾ "
	}
	return indent + "▸ "
}

// cellText is the text of cell i of v with tree decoration.
func cellText(v grid.ViewRow, i int) string {
	text := v.Cells[i].Text
	if i == v.ExpandCell {
		text = treeGlyph(v) + text
	}
	return text
}

// columnWidths sizes each visible column from its configured width or its
// content.
func columnWidths(headers []grid.Header, rows []displayRow) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		if h.Width > 0 {
			widths[i] = min(max(h.Width, minColumnWidth), maxColumnWidth)
			continue
		}
		w := runewidth.StringWidth(h.Title + sortGlyph(h))
		for _, r := range rows {
			if r.parent == "" && i < len(r.Cells) {
				w = max(w, runewidth.StringWidth(cellText(r.ViewRow, i)))
			}
		}
		widths[i] = min(max(w, minColumnWidth), maxColumnWidth)
	}
	return widths
}

// firstColumn picks the leftmost column so the cursor column fits width.
func firstColumn(widths []int, cursor, width int) int {
	first := 0
	for first < cursor {
		total := markerWidth
		for _, w := range widths[first : cursor+1] {
			total += w + 1
		}
		if total <= width {
			break
		}
		first++
	}
	return first
}

func (m Model) View() string {
	if !m.loaded {
		if m.errorMsg != "" {
			return m.renderError()
		}
		return "Loading " + m.s.name + "..."
	}
	var b strings.Builder
	b.WriteString(m.renderTable())
	if form := m.renderForm(); form != "" {
		b.WriteString(form)
		b.WriteString("\n")
	}
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderError() string {
	return fmt.Sprintf("Error: %s\n\nPress 'q' to quit.", m.errorMsg)
}

func (m Model) renderTable() string {
	headers := m.s.grid.Headers()
	rows := m.visibleRows()
	if len(headers) == 0 {
		return "No visible columns\n"
	}
	widths := columnWidths(headers, rows)
	cursorRow, cursorCol := m.s.grid.Editor().Cursor()
	cursorIdx := 0
	for i, h := range headers {
		if h.Name == cursorCol {
			cursorIdx = i
		}
	}
	first := firstColumn(widths, cursorIdx, m.width)

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", markerWidth))
	for i := first; i < len(headers); i++ {
		h := headers[i]
		title := fit(h.Title+sortGlyph(h), widths[i], grid.AlignLeft)
		if i == cursorIdx {
			title = headerStyle.Underline(true).Render(title)
		} else {
			title = headerStyle.Render(title)
		}
		b.WriteString(title + " ")
	}
	b.WriteString("\n")

	if len(rows) == 0 {
		b.WriteString("  no records\n")
		return b.String()
	}

	_, _, formOpen := m.s.grid.Editor().FormValues()
	end := min(len(rows), m.scrollRow+m.bodyHeight())
	for _, r := range rows[m.scrollRow:end] {
		if r.parent != "" {
			b.WriteString(m.renderSubRow(r))
			continue
		}
		b.WriteString(rowMarker(r.ViewRow))
		for i := first; i < len(headers) && i < len(r.Cells); i++ {
			cell := r.Cells[i]
			var text string
			switch {
			case m.mode == modeEdit && !formOpen && r.ID == m.editRow && cell.Column == m.editCol:
				text = editingStyle.Width(widths[i]).MaxWidth(widths[i]).Render(m.input.View())
			case r.ID == cursorRow && i == cursorIdx:
				text = cursorStyle.Render(fit(cellText(r.ViewRow, i), widths[i], cell.Align))
			case cell.Editing:
				text = editingStyle.Render(fit(cellText(r.ViewRow, i), widths[i], cell.Align))
			case r.Alt:
				text = altRowStyle.Render(fit(cellText(r.ViewRow, i), widths[i], cell.Align))
			default:
				text = fit(cellText(r.ViewRow, i), widths[i], cell.Align)
			}
			b.WriteString(text + " ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func rowMarker(v grid.ViewRow) string {
	switch {
	case v.Editing:
		return "✎ "
	case v.Dirty:
		return "* "
	case v.Selected:
		return selectedStyle.Render("● ")
	}
	return "  "
}

func (m Model) renderSubRow(r displayRow) string {
	texts := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		texts[i] = c.Text
	}
	line := runewidth.Truncate("  └ "+strings.Join(texts, " │ "), max(m.width, 10), "…")
	return subRowStyle.Render(line) + "\n"
}

// renderForm draws the open edit or add form, one line per field.
func (m Model) renderForm() string {
	id, values, open := m.s.grid.Editor().FormValues()
	if !open {
		return ""
	}
	title := "Add row"
	if id != "" {
		title = "Edit row " + id
	}
	lines := []string{headerStyle.Render(title)}
	labelWidth := 0
	for _, name := range m.formFields(values) {
		if c, err := m.s.grid.Column(name); err == nil {
			labelWidth = max(labelWidth, runewidth.StringWidth(columnTitle(c)))
		}
	}
	for _, name := range m.formFields(values) {
		c, err := m.s.grid.Column(name)
		if err != nil {
			continue
		}
		value := values[name]
		if m.mode == modeEdit && name == m.editCol {
			value = m.input.View()
		}
		lines = append(lines, fit(columnTitle(c), labelWidth, grid.AlignRight)+": "+value)
	}
	return formStyle.Render(strings.Join(lines, "\n"))
}

func columnTitle(c grid.Column) string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}
