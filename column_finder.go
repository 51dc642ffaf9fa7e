package main

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// fuzzyMatch reports whether the characters of search appear in order within
// text, ignoring case, and the rune positions where they matched.
func fuzzyMatch(search, text string) (bool, []int) {
	want := []rune(strings.ToLower(search))
	var positions []int
	i := 0
	for pos, r := range []rune(strings.ToLower(text)) {
		if i < len(want) && r == want[i] {
			positions = append(positions, pos)
			i++
		}
	}
	return i == len(want), positions
}

func isPrefixMatch(search, text string) bool {
	return strings.HasPrefix(strings.ToLower(text), strings.ToLower(search))
}

// columnMatch is a column whose title or name matched a find.
type columnMatch struct {
	Name      string
	Title     string
	Positions []int
}

// findColumns returns the columns matching search, prefix matches first,
// each group in column order.
func findColumns(search string, names, titles []string) []columnMatch {
	var prefix, fuzzy []columnMatch
	for i, title := range titles {
		if search == "" {
			prefix = append(prefix, columnMatch{Name: names[i], Title: title})
			continue
		}
		ok, pos := fuzzyMatch(search, title)
		if !ok {
			if ok, _ = fuzzyMatch(search, names[i]); !ok {
				continue
			}
			pos = nil
		}
		m := columnMatch{Name: names[i], Title: title, Positions: pos}
		if isPrefixMatch(search, title) || isPrefixMatch(search, names[i]) {
			prefix = append(prefix, m)
		} else {
			fuzzy = append(fuzzy, m)
		}
	}
	return append(prefix, fuzzy...)
}

var matchStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))

// highlight renders title with the matched runes emphasized.
func highlight(title string, positions []int) string {
	if len(positions) == 0 {
		return title
	}
	hit := make(map[int]bool, len(positions))
	for _, p := range positions {
		hit[p] = true
	}
	var b strings.Builder
	b.Grow(len(title) + utf8.RuneCountInString(title))
	for i, r := range []rune(title) {
		if hit[i] {
			b.WriteString(matchStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// visibleColumnTitles lists the names and titles of the displayed columns.
func (m *Model) visibleColumnTitles() (names, titles []string) {
	for _, h := range m.s.grid.Headers() {
		names = append(names, h.Name)
		titles = append(titles, h.Title)
	}
	return names, titles
}

// findCandidates renders the current matches of the find prompt.
func (m *Model) findCandidates() string {
	names, titles := m.visibleColumnTitles()
	matches := findColumns(m.input.Value(), names, titles)
	parts := make([]string, 0, min(len(matches), 5))
	for _, c := range matches[:min(len(matches), 5)] {
		parts = append(parts, highlight(c.Title, c.Positions))
	}
	return strings.Join(parts, "  ")
}

// jumpToColumn moves the cursor to the best match of search.
func (m *Model) jumpToColumn(search string) bool {
	names, titles := m.visibleColumnTitles()
	matches := findColumns(search, names, titles)
	if len(matches) == 0 {
		return false
	}
	ed := m.s.grid.Editor()
	row, _ := ed.Cursor()
	if row == "" {
		return false
	}
	return ed.SetCursor(row, matches[0].Name) == nil
}
