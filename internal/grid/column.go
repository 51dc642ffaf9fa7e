package grid

import (
	"fmt"
	"strings"
)

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// EditType selects the edit control built for a column.
type EditType int

const (
	EditText EditType = iota
	EditTextarea
	EditSelect
	EditCheckbox
	EditPassword
	EditButton
	EditImage
	EditFile
	EditCustom
)

var editTypeNames = [...]string{"text", "textarea", "select", "checkbox", "password", "button", "image", "file", "custom"}

func (t EditType) String() string {
	if int(t) < len(editTypeNames) {
		return editTypeNames[t]
	}
	return fmt.Sprintf("EditType(%d)", int(t))
}

// ParseEditType maps a configuration name to an EditType.
func ParseEditType(s string) (EditType, error) {
	for i, n := range editTypeNames {
		if strings.EqualFold(n, s) {
			return EditType(i), nil
		}
	}
	return EditText, fmt.Errorf("unknown edit type %q", s)
}

// SortType controls how local sorting compares cell values.
type SortType int

const (
	SortText SortType = iota
	SortInt
	SortFloat
	SortCurrency
	SortDate
)

// Option is one entry of a select value list.
type Option struct {
	Value string
	Label string
}

// ParseOptions parses the "value:label;value:label" notation used in grid
// definitions.
func ParseOptions(s string) []Option {
	if s == "" {
		return nil
	}
	var opts []Option
	for _, part := range strings.Split(s, ";") {
		v, l, ok := strings.Cut(part, ":")
		if !ok {
			l = v
		}
		opts = append(opts, Option{Value: strings.TrimSpace(v), Label: strings.TrimSpace(l)})
	}
	return opts
}

type EditOptions struct {
	Value []Option
	// Checkbox on/off values, "Yes"/"No" when empty.
	CheckboxOn   string
	CheckboxOff  string
	DefaultValue string
	Multiple     bool
}

func (o EditOptions) checkboxValues() (on, off string) {
	on, off = o.CheckboxOn, o.CheckboxOff
	if on == "" {
		on = "Yes"
	}
	if off == "" {
		off = "No"
	}
	return on, off
}

// EditRules are checked in declaration order before a submit.
type EditRules struct {
	Required bool
	Number   bool
	Integer  bool
	MinValue *float64
	MaxValue *float64
	Email    bool
	URL      bool
	Date     bool
	Time     bool
	// DateFormat uses date tokens (Y-m-d); defaults to the column's source format.
	DateFormat string
	Custom     func(value string, col *Column) error
}

// Column is one entry of the column model.
type Column struct {
	Name  string
	Label string
	// Index is the server side sort/query key, Name when empty.
	Index      string
	Width      int
	Align      Align
	Sortable   bool
	Editable   bool
	Hidden     bool
	Fixed      bool
	Searchable bool
	Key        bool

	EditType    EditType
	EditOptions EditOptions
	EditRules   EditRules

	Formatter     FormatterKind
	FormatOptions FormatOptions
	Custom        *CustomFormatter

	SortType SortType
}

// SortIndex returns the key sent as sidx when sorting on this column.
func (c *Column) SortIndex() string {
	if c.Index != "" {
		return c.Index
	}
	return c.Name
}

func (c *Column) title() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// sortKind infers a comparison kind from the formatter when SortType is unset.
func (c *Column) sortKind() SortType {
	if c.SortType != SortText {
		return c.SortType
	}
	switch c.Formatter {
	case FormatInteger:
		return SortInt
	case FormatNumber:
		return SortFloat
	case FormatCurrency:
		return SortCurrency
	case FormatDate:
		return SortDate
	}
	return SortText
}

// validateColumns checks the invariants of a column model.
func validateColumns(names []string, model []Column) error {
	if len(names) > 0 && len(names) != len(model) {
		return &SetupError{Reason: fmt.Sprintf("length of colNames (%d) <> colModel (%d)", len(names), len(model))}
	}
	seen := make(map[string]bool, len(model))
	keys := 0
	for i, c := range model {
		if c.Name == "" {
			return &SetupError{Reason: fmt.Sprintf("column %d has no name", i)}
		}
		if seen[c.Name] {
			return &SetupError{Reason: fmt.Sprintf("duplicate column name %q", c.Name)}
		}
		seen[c.Name] = true
		if c.Key {
			keys++
		}
	}
	if keys > 1 {
		return &SetupError{Reason: "more than one key column"}
	}
	return nil
}
