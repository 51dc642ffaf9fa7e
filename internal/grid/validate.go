package grid

import (
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var timePattern = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d(:[0-5]\d)?(\s?[AaPp][Mm])?$`)

// ruleFunc checks one rule against a submitted value.
type ruleFunc func(col *Column, value string, src string) (msg string, failed bool)

// rules are evaluated in this order; the first failure wins.
var rules = []ruleFunc{
	ruleRequired,
	ruleNumber,
	ruleInteger,
	ruleMinMax,
	ruleEmail,
	ruleURL,
	ruleDate,
	ruleTime,
}

func ruleRequired(col *Column, value, _ string) (string, bool) {
	if col.EditRules.Required && strings.TrimSpace(value) == "" {
		return "is required", true
	}
	return "", false
}

func ruleNumber(col *Column, value, _ string) (string, bool) {
	if !col.EditRules.Number || value == "" {
		return "", false
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
		return "must be a number", true
	}
	return "", false
}

func ruleInteger(col *Column, value, _ string) (string, bool) {
	if !col.EditRules.Integer || value == "" {
		return "", false
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err != nil {
		return "must be an integer", true
	}
	return "", false
}

func ruleMinMax(col *Column, value, _ string) (string, bool) {
	r := col.EditRules
	if (r.MinValue == nil && r.MaxValue == nil) || value == "" {
		return "", false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "must be a number", true
	}
	if r.MinValue != nil && v < *r.MinValue {
		return "must be greater than or equal to " + strconv.FormatFloat(*r.MinValue, 'f', -1, 64), true
	}
	if r.MaxValue != nil && v > *r.MaxValue {
		return "must be less than or equal to " + strconv.FormatFloat(*r.MaxValue, 'f', -1, 64), true
	}
	return "", false
}

func ruleEmail(col *Column, value, _ string) (string, bool) {
	if !col.EditRules.Email || value == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "is not a valid e-mail", true
	}
	return "", false
}

func ruleURL(col *Column, value, _ string) (string, bool) {
	if !col.EditRules.URL || value == "" {
		return "", false
	}
	u, err := url.ParseRequestURI(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "is not a valid URL", true
	}
	return "", false
}

func ruleDate(col *Column, value, src string) (string, bool) {
	if !col.EditRules.Date || value == "" {
		return "", false
	}
	format := col.EditRules.DateFormat
	if format == "" {
		format = src
	}
	if _, err := ParseDate(format, value); err != nil {
		return "is not a valid date (" + format + ")", true
	}
	return "", false
}

func ruleTime(col *Column, value, _ string) (string, bool) {
	if !col.EditRules.Time || value == "" {
		return "", false
	}
	if !timePattern.MatchString(strings.TrimSpace(value)) {
		return "is not a valid time", true
	}
	return "", false
}

// Validate checks value against the column's edit rules and returns the first
// failure as a *ValidationError.
func (g *Grid) Validate(col *Column, value string) error {
	src, _ := g.formatter.dateFormats(col)
	return validateValue(col, value, src)
}

func validateValue(col *Column, value, srcDate string) error {
	for _, rule := range rules {
		if msg, failed := rule(col, value, srcDate); failed {
			return &ValidationError{Column: col.Name, Label: col.Label, Message: msg}
		}
	}
	if col.EditRules.Custom != nil {
		if err := col.EditRules.Custom(value, col); err != nil {
			return &ValidationError{Column: col.Name, Label: col.Label, Message: err.Error()}
		}
	}
	return nil
}

// validateValues runs validation over values in column model order so the
// reported failure is deterministic.
func (g *Grid) validateValues(values map[string]string) error {
	for i := range g.columns {
		col := &g.columns[i]
		v, ok := values[col.Name]
		if !ok || !col.Editable {
			continue
		}
		if err := g.Validate(col, v); err != nil {
			return err
		}
	}
	return nil
}
