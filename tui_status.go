package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tedgrid/internal/grid"
)

var (
	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("8")).
			Foreground(lipgloss.Color("15"))
	statusErrorStyle = statusStyle.Background(lipgloss.Color("1"))
)

// pagerText describes the pager the way a grid footer does, for example
// "page 2/5 · 21-40 of 97".
func pagerText(st grid.State) string {
	if st.TotalRecords == 0 && st.LoadedCount == 0 {
		return "no records"
	}
	if st.RowsPerPage <= 0 || (st.Local && st.TotalPages <= 1) {
		return fmt.Sprintf("%d records", max(st.TotalRecords, st.LoadedCount))
	}
	first := st.FirstRecord()
	last := first + st.LoadedCount - 1
	return fmt.Sprintf("page %d/%d · %d-%d of %d", st.Page, max(st.TotalPages, 1), first, last, st.TotalRecords)
}

func searchText(st grid.State) string {
	if !st.Search || st.Filter == nil {
		return ""
	}
	return fmt.Sprintf("%s %s %q", st.Filter.Field, st.Filter.Oper, st.Filter.Value)
}

// editHint lists what a column accepts, shown while editing it.
func editHint(c grid.Column) string {
	var parts []string
	r := c.EditRules
	if r.Required {
		parts = append(parts, "required")
	}
	switch {
	case r.Integer:
		parts = append(parts, "integer")
	case r.Number:
		parts = append(parts, "number")
	case r.Email:
		parts = append(parts, "email")
	case r.URL:
		parts = append(parts, "url")
	case r.Date:
		format := r.DateFormat
		if format == "" {
			format = "Y-m-d"
		}
		parts = append(parts, "date "+format)
	case r.Time:
		parts = append(parts, "time hh:mm")
	}
	if r.MinValue != nil {
		parts = append(parts, "min "+strconv.FormatFloat(*r.MinValue, 'f', -1, 64))
	}
	if r.MaxValue != nil {
		parts = append(parts, "max "+strconv.FormatFloat(*r.MaxValue, 'f', -1, 64))
	}

	switch c.EditType {
	case grid.EditSelect:
		values := make([]string, len(c.EditOptions.Value))
		for i, o := range c.EditOptions.Value {
			values[i] = o.Value
		}
		parts = append(parts, "one of "+strings.Join(values, "|"))
	case grid.EditCheckbox:
		on, off := c.EditOptions.CheckboxOn, c.EditOptions.CheckboxOff
		if on == "" {
			on, off = "Yes", "No"
		}
		parts = append(parts, on+"/"+off)
	}
	parts = append(parts, "Enter to save · Esc to cancel")
	return columnTitle(c) + ": " + strings.Join(parts, " · ")
}

func (m Model) renderStatusBar() string {
	st := m.s.grid.State()
	left := []string{databaseIcons[m.s.dbType] + " " + m.s.name}
	if m.s.rel == nil {
		left[0] = m.s.name
	}
	left = append(left, pagerText(st))
	if st.SortColumn != "" {
		arrow := "↑"
		if st.SortOrder == grid.Desc {
			arrow = "↓"
		}
		left = append(left, arrow+st.SortColumn)
	}
	if s := searchText(st); s != "" {
		left = append(left, s)
	}
	if n := len(st.Selection); n > 0 {
		left = append(left, fmt.Sprintf("%d selected", n))
	}

	var status string
	switch m.mode {
	case modeSearch:
		status = fmt.Sprintf("search %s: %s", m.searchCol, m.input.View())
	case modeGoto:
		status = "go to page: " + m.input.View()
	case modeFind:
		status = "column: " + m.input.View() + "  " + m.findCandidates()
	default:
		status = strings.Join(left, " · ")
		if m.statusMsg != "" {
			status += " | " + m.statusMsg
		}
	}

	style := statusStyle
	if m.errorMsg != "" {
		status = "Error: " + m.errorMsg
		style = statusErrorStyle
	}
	return style.Width(m.width).MaxWidth(m.width).Render(status)
}
