package grid

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

type rowCompare func(a, b *Row) int

// comparator compares two rows on col according to its sort kind.
func (g *Grid) comparator(col *Column, order SortOrder) rowCompare {
	kind := col.sortKind()
	srcDate, _ := g.formatter.dateFormats(col)
	fold := cases.Fold()
	name := col.Name
	values := func(a, b string) int {
		switch kind {
		case SortInt, SortFloat, SortCurrency:
			return compareNumbers(a, b)
		case SortDate:
			return compareDates(srcDate, a, b)
		}
		return strings.Compare(fold.String(a), fold.String(b))
	}
	return func(a, b *Row) int {
		c := values(a.Cells[name], b.Cells[name])
		if order == Desc {
			return -c
		}
		return c
	}
}

// compareNumbers orders unparsable values before numbers.
func compareNumbers(a, b string) int {
	x, okA := numericValue(a)
	y, okB := numericValue(b)
	switch {
	case !okA && !okB:
		return strings.Compare(a, b)
	case !okA:
		return -1
	case !okB:
		return 1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compareDates(format, a, b string) int {
	x, errA := ParseDate(format, a)
	y, errB := ParseDate(format, b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return x.Compare(y)
}

// sortRows sorts in place. Equal rows keep their original relative order.
func sortRows(rows []*Row, cmp rowCompare) {
	slices.SortStableFunc(rows, cmp)
}

// SortBy sorts on the named column. Sorting again on the current column
// toggles the direction. The grid returns to page 1.
func (g *Grid) SortBy(ctx context.Context, name string) error {
	if err := g.checkSortable(name); err != nil {
		return err
	}
	return g.reloadWith(ctx, func(s *State) bool {
		if s.SortColumn == name {
			if s.SortOrder == Asc {
				s.SortOrder = Desc
			} else {
				s.SortOrder = Asc
			}
		} else {
			s.SortColumn = name
			s.SortOrder = Asc
		}
		s.Page = 1
		return true
	})
}

// SetSort sorts on the named column in an explicit direction.
func (g *Grid) SetSort(ctx context.Context, name string, order SortOrder) error {
	if err := g.checkSortable(name); err != nil {
		return err
	}
	return g.reloadWith(ctx, func(s *State) bool {
		s.SortColumn, s.SortOrder = name, order
		s.Page = 1
		return true
	})
}

func (g *Grid) checkSortable(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	col, err := g.column(name)
	if err != nil {
		return err
	}
	if !col.Sortable {
		return fmt.Errorf("%w: %s", ErrNotSortable, name)
	}
	return nil
}

var searchOpers = []string{"eq", "ne", "lt", "le", "gt", "ge", "bw", "bn", "ew", "en", "cn", "nc", "nu", "nn"}

func validOper(op string) bool {
	return slices.Contains(searchOpers, op)
}

// filterRows keeps the rows matching f. The search value is unformatted with
// the column's formatter first so displayed text can be searched for.
func (g *Grid) filterRows(rows []*Row, f Filter) []*Row {
	col, err := g.column(f.Field)
	if err != nil {
		return rows
	}
	value := g.formatter.Unformat(col, ViewCell{Text: f.Value})
	numeric := col.sortKind() != SortText && col.sortKind() != SortDate
	fold := cases.Fold()
	want := fold.String(value)
	return slices.DeleteFunc(rows, func(r *Row) bool {
		return !matchFilter(f.Oper, r.Cells[col.Name], value, want, numeric, fold)
	})
}

func matchFilter(op, raw, value, folded string, numeric bool, fold cases.Caser) bool {
	switch op {
	case "nu":
		return raw == ""
	case "nn":
		return raw != ""
	}
	have := fold.String(raw)
	var c int
	if numeric {
		c = compareNumbers(raw, value)
	} else {
		c = strings.Compare(have, folded)
	}
	switch op {
	case "eq":
		return c == 0
	case "ne":
		return c != 0
	case "lt":
		return c < 0
	case "le":
		return c <= 0
	case "gt":
		return c > 0
	case "ge":
		return c >= 0
	case "bw":
		return strings.HasPrefix(have, folded)
	case "bn":
		return !strings.HasPrefix(have, folded)
	case "ew":
		return strings.HasSuffix(have, folded)
	case "en":
		return !strings.HasSuffix(have, folded)
	case "cn":
		return strings.Contains(have, folded)
	case "nc":
		return !strings.Contains(have, folded)
	}
	return false
}
