package grid

import (
	"math"
	"strconv"
	"strings"
)

// FormatterKind is the closed set of built-in cell formatters.
type FormatterKind int

const (
	FormatText FormatterKind = iota
	FormatInteger
	FormatNumber
	FormatCurrency
	FormatDate
	FormatCheckbox
	FormatLink
	FormatShowLink
	FormatEmail
	FormatSelect
	FormatActions
	FormatCustom
)

var formatterNames = [...]string{"text", "integer", "number", "currency", "date", "checkbox", "link", "showlink", "email", "select", "actions", "custom"}

func (k FormatterKind) String() string {
	if int(k) < len(formatterNames) {
		return formatterNames[k]
	}
	return "unknown"
}

// ParseFormatter maps a configuration name to a FormatterKind. The empty
// string is the plain text formatter.
func ParseFormatter(s string) (FormatterKind, bool) {
	if s == "" {
		return FormatText, true
	}
	for i, n := range formatterNames {
		if n == s {
			return FormatterKind(i), true
		}
	}
	return FormatText, false
}

// FormatOptions configure built-in formatters. Empty separators and a nil
// DecimalPlaces inherit from the grid's Locale.
type FormatOptions struct {
	DecimalSeparator   string
	ThousandsSeparator string
	DecimalPlaces      *int
	Prefix             string
	Suffix             string
	DefaultValue       string

	SrcFormat string
	NewFormat string

	BaseLinkURL string
	ShowAction  string
	AddParam    string
	IDName      string
	Target      string

	Value     []Option
	Multiple  bool
	Separator string
}

// Places is a helper for FormatOptions.DecimalPlaces.
func Places(n int) *int { return &n }

// Locale holds grid wide formatter defaults.
type Locale struct {
	DecimalSeparator   string
	ThousandsSeparator string
	DecimalPlaces      int
	CurrencyPrefix     string
	CurrencySuffix     string
	SrcDateFormat      string
	NewDateFormat      string
}

// DefaultLocale is an English locale.
func DefaultLocale() Locale {
	return Locale{
		DecimalSeparator:   ".",
		ThousandsSeparator: ",",
		DecimalPlaces:      2,
		SrcDateFormat:      "Y-m-d",
		NewDateFormat:      "n/j/Y",
	}
}

// CustomFormatter is a caller supplied formatter pair.
type CustomFormatter struct {
	Format   func(raw string, col *Column, row *Row) string
	Unformat func(display string, col *Column) string
}

// ViewCell is the printable form of a cell.
type ViewCell struct {
	Column string
	Text   string
	Href   string
	Align  Align
	// Editing marks a cell showing its edit control value.
	Editing bool
}

const (
	checkedText   = "[x]"
	uncheckedText = "[ ]"
)

type formatFunc func(f *formatter, col *Column, raw string, row *Row) ViewCell
type unformatFunc func(f *formatter, col *Column, cell ViewCell) string

type formatterEntry struct {
	format   formatFunc
	unformat unformatFunc
}

// formatters is the dispatch table; every FormatterKind has an entry.
var formatters = [...]formatterEntry{
	FormatText:     {formatText, unformatText},
	FormatInteger:  {formatInteger, unformatNumber},
	FormatNumber:   {formatNumber, unformatNumber},
	FormatCurrency: {formatCurrency, unformatNumber},
	FormatDate:     {formatDate, unformatDate},
	FormatCheckbox: {formatCheckbox, unformatCheckbox},
	FormatLink:     {formatLink, unformatText},
	FormatShowLink: {formatShowLink, unformatText},
	FormatEmail:    {formatEmail, unformatText},
	FormatSelect:   {formatSelect, unformatSelect},
	FormatActions:  {formatActions, unformatActions},
	FormatCustom:   {formatCustom, unformatCustom},
}

type formatter struct {
	locale Locale
}

func (f *formatter) Format(col *Column, raw string, row *Row) ViewCell {
	k := col.Formatter
	if int(k) >= len(formatters) {
		k = FormatText
	}
	cell := formatters[k].format(f, col, raw, row)
	cell.Column = col.Name
	cell.Align = col.Align
	return cell
}

func (f *formatter) Unformat(col *Column, cell ViewCell) string {
	k := col.Formatter
	if int(k) >= len(formatters) {
		k = FormatText
	}
	return formatters[k].unformat(f, col, cell)
}

func formatText(_ *formatter, _ *Column, raw string, _ *Row) ViewCell {
	return ViewCell{Text: raw}
}

func unformatText(_ *formatter, _ *Column, cell ViewCell) string {
	return cell.Text
}

type numberOpts struct {
	decimal   string
	thousands string
	places    int
	prefix    string
	suffix    string
}

func (f *formatter) numberOpts(col *Column, kind FormatterKind) numberOpts {
	o := col.FormatOptions
	n := numberOpts{
		decimal:   o.DecimalSeparator,
		thousands: o.ThousandsSeparator,
		prefix:    o.Prefix,
		suffix:    o.Suffix,
		places:    f.locale.DecimalPlaces,
	}
	if n.decimal == "" {
		n.decimal = f.locale.DecimalSeparator
	}
	if n.thousands == "" {
		n.thousands = f.locale.ThousandsSeparator
	}
	switch kind {
	case FormatInteger:
		n.places = 0
	case FormatCurrency:
		if n.prefix == "" && n.suffix == "" {
			n.prefix, n.suffix = f.locale.CurrencyPrefix, f.locale.CurrencySuffix
		}
	}
	if o.DecimalPlaces != nil {
		n.places = *o.DecimalPlaces
	}
	return n
}

// formatNumberString renders v with the separators and decimal places of o.
func formatNumberString(v float64, o numberOpts) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', o.places, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	if o.thousands != "" && len(intPart) > 3 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteString(o.thousands)
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}
	out := intPart
	if frac != "" {
		out += o.decimal + frac
	}
	if v < 0 && strings.Trim(s, "0.") != "" {
		out = "-" + out
	}
	return o.prefix + out + o.suffix
}

func (f *formatter) formatNumeric(col *Column, raw string, kind FormatterKind) ViewCell {
	o := f.numberOpts(col, kind)
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		if def := col.FormatOptions.DefaultValue; def != "" && strings.TrimSpace(raw) == "" {
			return ViewCell{Text: def}
		}
		return ViewCell{Text: raw}
	}
	return ViewCell{Text: formatNumberString(v, o)}
}

func formatInteger(f *formatter, col *Column, raw string, _ *Row) ViewCell {
	return f.formatNumeric(col, raw, FormatInteger)
}

func formatNumber(f *formatter, col *Column, raw string, _ *Row) ViewCell {
	return f.formatNumeric(col, raw, FormatNumber)
}

func formatCurrency(f *formatter, col *Column, raw string, _ *Row) ViewCell {
	return f.formatNumeric(col, raw, FormatCurrency)
}

func unformatNumber(f *formatter, col *Column, cell ViewCell) string {
	o := f.numberOpts(col, col.Formatter)
	s := strings.TrimSpace(cell.Text)
	if def := col.FormatOptions.DefaultValue; def != "" && s == def {
		return ""
	}
	s = strings.TrimPrefix(s, o.prefix)
	s = strings.TrimSuffix(s, o.suffix)
	if o.thousands != "" {
		s = strings.ReplaceAll(s, o.thousands, "")
	}
	if o.decimal != "." {
		s = strings.ReplaceAll(s, o.decimal, ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return cell.Text
	}
	if col.Formatter == FormatInteger {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (f *formatter) dateFormats(col *Column) (src, dst string) {
	src, dst = col.FormatOptions.SrcFormat, col.FormatOptions.NewFormat
	if src == "" {
		src = f.locale.SrcDateFormat
	}
	if dst == "" {
		dst = f.locale.NewDateFormat
	}
	return src, dst
}

func formatDate(f *formatter, col *Column, raw string, _ *Row) ViewCell {
	if strings.TrimSpace(raw) == "" {
		return ViewCell{Text: col.FormatOptions.DefaultValue}
	}
	src, dst := f.dateFormats(col)
	t, err := ParseDate(src, raw)
	if err != nil {
		return ViewCell{Text: raw}
	}
	return ViewCell{Text: FormatDateValue(dst, t)}
}

func unformatDate(f *formatter, col *Column, cell ViewCell) string {
	if cell.Text == "" || cell.Text == col.FormatOptions.DefaultValue {
		return ""
	}
	src, dst := f.dateFormats(col)
	t, err := ParseDate(dst, cell.Text)
	if err != nil {
		return cell.Text
	}
	return FormatDateValue(src, t)
}

// isChecked reports whether a raw checkbox value is on.
func isChecked(col *Column, raw string) bool {
	on, _ := col.EditOptions.checkboxValues()
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on", "y", "t", strings.ToLower(on):
		return true
	}
	return false
}

func formatCheckbox(_ *formatter, col *Column, raw string, _ *Row) ViewCell {
	if isChecked(col, raw) {
		return ViewCell{Text: checkedText}
	}
	return ViewCell{Text: uncheckedText}
}

func unformatCheckbox(_ *formatter, col *Column, cell ViewCell) string {
	on, off := col.EditOptions.checkboxValues()
	if cell.Text == checkedText {
		return on
	}
	return off
}

func formatLink(_ *formatter, col *Column, raw string, _ *Row) ViewCell {
	if raw == "" {
		return ViewCell{}
	}
	return ViewCell{Text: raw, Href: raw}
}

func formatShowLink(_ *formatter, col *Column, raw string, row *Row) ViewCell {
	o := col.FormatOptions
	idName := o.IDName
	if idName == "" {
		idName = "id"
	}
	href := o.BaseLinkURL + o.ShowAction
	if row != nil {
		sep := "?"
		if strings.Contains(href, "?") {
			sep = "&"
		}
		href += sep + idName + "=" + row.ID + o.AddParam
	}
	return ViewCell{Text: raw, Href: href}
}

func formatEmail(_ *formatter, _ *Column, raw string, _ *Row) ViewCell {
	if raw == "" {
		return ViewCell{}
	}
	return ViewCell{Text: raw, Href: "mailto:" + raw}
}

func selectOptions(col *Column) []Option {
	if len(col.FormatOptions.Value) > 0 {
		return col.FormatOptions.Value
	}
	return col.EditOptions.Value
}

func selectSeparator(col *Column) string {
	if col.FormatOptions.Separator != "" {
		return col.FormatOptions.Separator
	}
	return ","
}

func isMultiple(col *Column) bool {
	return col.FormatOptions.Multiple || col.EditOptions.Multiple
}

func formatSelect(_ *formatter, col *Column, raw string, _ *Row) ViewCell {
	opts := selectOptions(col)
	label := func(v string) string {
		for _, o := range opts {
			if o.Value == v {
				return o.Label
			}
		}
		return v
	}
	if !isMultiple(col) {
		return ViewCell{Text: label(raw)}
	}
	if raw == "" {
		return ViewCell{}
	}
	parts := strings.Split(raw, selectSeparator(col))
	labels := make([]string, len(parts))
	for i, p := range parts {
		labels[i] = label(strings.TrimSpace(p))
	}
	return ViewCell{Text: strings.Join(labels, selectSeparator(col)+" ")}
}

func unformatSelect(_ *formatter, col *Column, cell ViewCell) string {
	opts := selectOptions(col)
	value := func(l string) string {
		for _, o := range opts {
			if o.Label == l {
				return o.Value
			}
		}
		return l
	}
	if !isMultiple(col) {
		return value(cell.Text)
	}
	if cell.Text == "" {
		return ""
	}
	sep := selectSeparator(col)
	parts := strings.Split(cell.Text, sep)
	values := make([]string, len(parts))
	for i, p := range parts {
		values[i] = value(strings.TrimSpace(p))
	}
	return strings.Join(values, sep)
}

func formatActions(_ *formatter, _ *Column, _ string, _ *Row) ViewCell {
	return ViewCell{}
}

func unformatActions(_ *formatter, _ *Column, _ ViewCell) string {
	return ""
}

func formatCustom(_ *formatter, col *Column, raw string, row *Row) ViewCell {
	if col.Custom == nil || col.Custom.Format == nil {
		return ViewCell{Text: raw}
	}
	return ViewCell{Text: col.Custom.Format(raw, col, row)}
}

func unformatCustom(_ *formatter, col *Column, cell ViewCell) string {
	if col.Custom == nil || col.Custom.Unformat == nil {
		return cell.Text
	}
	return col.Custom.Unformat(cell.Text, col)
}

// numericValue parses a raw value for comparisons, tolerating separators.
func numericValue(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return v, true
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	v, err = strconv.ParseFloat(b.String(), 64)
	return v, err == nil
}
