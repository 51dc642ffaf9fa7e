package grid

import (
	"strconv"
	"strings"
	"time"
)

// dateTokens maps date format tokens to Go layout fragments. Go has no
// unpadded 24-hour layout, so 'G' maps to "15" for parsing only.
var dateTokens = map[byte]string{
	'd': "02",
	'j': "2",
	'D': "Mon",
	'l': "Monday",
	'm': "01",
	'n': "1",
	'M': "Jan",
	'F': "January",
	'Y': "2006",
	'y': "06",
	'H': "15",
	'G': "15",
	'h': "03",
	'g': "3",
	'i': "04",
	's': "05",
	'A': "PM",
	'a': "pm",
}

// named formats accepted in place of a token string
var namedDateFormats = map[string]string{
	"ISO8601Long":      "Y-m-d H:i:s",
	"ISO8601Short":     "Y-m-d",
	"ShortDate":        "n/j/Y",
	"LongDate":         "l, F d, Y",
	"FullDateTime":     "l, F d, Y g:i:s A",
	"MonthDay":         "F d",
	"ShortTime":        "g:i A",
	"LongTime":         "g:i:s A",
	"SortableDateTime": "Y-m-d\\TH:i:s",
	"YearMonth":        "F, Y",
}

// DateLayout translates a token format such as "d/m/Y H:i" into a Go time
// layout. A backslash escapes the next character.
func DateLayout(format string) string {
	var b strings.Builder
	eachDateToken(format, func(token string, lit byte) {
		if token == "" {
			b.WriteByte(lit)
			return
		}
		b.WriteString(dateTokens[token[0]])
	})
	return b.String()
}

// eachDateToken walks a token format, calling fn with each token or with a
// literal byte and an empty token.
func eachDateToken(format string, fn func(token string, lit byte)) {
	if named, ok := namedDateFormats[format]; ok {
		format = named
	}
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == '\\' && i+1 < len(format) {
			i++
			fn("", format[i])
			continue
		}
		if _, ok := dateTokens[c]; ok {
			fn(string(c), 0)
			continue
		}
		fn("", c)
	}
}

// ParseDate parses value with a token format.
func ParseDate(format, value string) (time.Time, error) {
	return time.Parse(DateLayout(format), strings.TrimSpace(value))
}

// FormatDateValue formats t with a token format.
func FormatDateValue(format string, t time.Time) string {
	var b strings.Builder
	eachDateToken(format, func(token string, lit byte) {
		switch token {
		case "":
			b.WriteByte(lit)
		case "G":
			b.WriteString(strconv.Itoa(t.Hour()))
		default:
			b.WriteString(t.Format(dateTokens[token[0]]))
		}
	})
	return b.String()
}
