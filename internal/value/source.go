package value

import (
	"math"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2/js"
)

const indentUnit = "  "

// ToSource renders v as preamble source text. Nested lines are indented
// relative to indent levels of two spaces. Every value has a textual form;
// values outside the model (and non-finite numbers) render as null.
func ToSource(v any, indent int) string {
	var b strings.Builder
	writeSource(&b, v, indent)
	return b.String()
}

func writeSource(b *strings.Builder, v any, level int) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case float64:
		b.WriteString(FormatNumber(x))
	case int:
		b.WriteString(strconv.Itoa(x))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case string:
		b.WriteString(QuoteString(x))
	case []any:
		if len(x) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[\n")
		for i, item := range x {
			b.WriteString(strings.Repeat(indentUnit, level+1))
			writeSource(b, item, level+1)
			if i < len(x)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indentUnit, level))
		b.WriteByte(']')
	case *Map:
		if x.Len() == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{\n")
		keys := x.Keys()
		for i, k := range keys {
			b.WriteString(strings.Repeat(indentUnit, level+1))
			b.WriteString(Key(k))
			b.WriteString(": ")
			item, _ := x.Get(k)
			writeSource(b, item, level+1)
			if i < len(keys)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indentUnit, level))
		b.WriteByte('}')
	default:
		b.WriteString("null")
	}
}

// FormatNumber renders f the way a JavaScript literal would spell it.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	if f == 0 {
		return "0"
	}
	if math.Abs(f) < 1e21 && math.Abs(f) >= 1e-6 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Key renders an object key, bare when it is a valid identifier name.
func Key(k string) string {
	if js.AsIdentifierName([]byte(k)) {
		return k
	}
	return singleQuoted(k)
}

// QuoteString picks the backtick form for strings with a line break and
// single quotes otherwise.
func QuoteString(s string) string {
	if strings.Contains(s, "\n") {
		return backtickQuoted(s)
	}
	return singleQuoted(s)
}

func singleQuoted(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// backtickQuoted writes a template literal. A line starting with --- has
// its first dash escaped so it can never read as a preamble delimiter.
func backtickQuoted(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('`')
	for i := 0; i < len(s); i++ {
		if i > 0 && s[i-1] == '\n' && strings.HasPrefix(s[i:], "---") {
			b.WriteString(`\-`)
			continue
		}
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '`':
			b.WriteString("\\`")
		case '\r':
			b.WriteString(`\r`)
		case '$':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteString(`\$`)
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('`')
	return b.String()
}
