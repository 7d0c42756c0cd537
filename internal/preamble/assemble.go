package preamble

import (
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"

	"github.com/starford/kiln/internal/fence"
	"github.com/starford/kiln/internal/value"
)

// strictReserved are identifiers a module may not declare.
var strictReserved = map[string]bool{
	"let": true, "static": true, "implements": true, "interface": true,
	"package": true, "private": true, "protected": true, "public": true,
	"yield": true, "await": true, "arguments": true, "eval": true,
}

// Assemble renders values as a fresh preamble, one exported const per entry,
// and appends body unchanged.
//
// Keys should satisfy ValidName. Any other key is declared under its
// Identifier form, so two keys that sanitize to the same name yield
// duplicate declarations; callers that accept arbitrary keys check
// ValidName first, as SaveValues does.
func Assemble(values *value.Map, body string) string {
	var b strings.Builder
	b.WriteString(fence.Delimiter + "\n")
	for _, k := range values.Keys() {
		v, _ := values.Get(k)
		b.WriteString(declaration("const", k, v))
		b.WriteByte('\n')
	}
	b.WriteString(fence.Delimiter + "\n")
	b.WriteString(body)
	return b.String()
}

func declaration(keyword, name string, v any) string {
	return "export " + keyword + " " + Identifier(name) + " = " + value.ToSource(v, 0) + ";"
}

// ValidName reports whether name can be declared as a module binding.
func ValidName(name string) bool {
	if !js.AsIdentifierName([]byte(name)) || strictReserved[name] {
		return false
	}
	tt, data := js.NewLexer(parse.NewInputString(name)).Next()
	return js.IsIdentifier(tt) && len(data) == len(name)
}

// Identifier returns name, or a sanitized variant when name cannot be
// declared as is.
func Identifier(name string) string {
	if ValidName(name) {
		return name
	}
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r == '$' || 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z':
			b.WriteRune(r)
		case '0' <= r && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if !ValidName(s) {
		s = "_" + s
	}
	return s
}
