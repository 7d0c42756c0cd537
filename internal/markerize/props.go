package markerize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/kiln/internal/preamble"
	"github.com/starford/kiln/internal/value"
)

// Prop types written into the props region.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

var (
	declOpenRe = regexp.MustCompile(`\b(?:const|let|var)\s*\{`)
	decimalRe  = regexp.MustCompile(`^[+-]?(?:\d[\d_]*(?:\.[\d_]*)?|\.\d[\d_]*)(?:[eE][+-]?\d+)?$`)
	hexRe      = regexp.MustCompile(`^0[xX][0-9a-fA-F_]+$`)
)

// destructure is a `const { ... } = <source>` statement.
type destructure struct {
	start, end int
	pattern    string
}

func findDestructure(src string, tail *regexp.Regexp) (destructure, bool) {
	for _, loc := range declOpenRe.FindAllStringIndex(src, -1) {
		open := loc[1] - 1
		closing := matchBrace(src, open)
		if closing < 0 {
			continue
		}
		m := tail.FindStringIndex(src[closing+1:])
		if m == nil {
			continue
		}
		return destructure{
			start:   loc[0],
			end:     closing + 1 + m[1],
			pattern: src[open+1 : closing],
		}, true
	}
	return destructure{}, false
}

// matchBrace returns the index of the bracket closing the one at open,
// skipping string literals, or -1.
func matchBrace(src string, open int) int {
	depth := 0
	for i := open; i < len(src); i++ {
		switch c := src[i]; c {
		case '\'', '"', '`':
			i = skipString(src, i)
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func skipString(src string, i int) int {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j
		}
	}
	return len(src)
}

// splitTopLevel splits s on sep outside brackets and strings.
func splitTopLevel(s string, sep byte) []string {
	var (
		parts []string
		depth int
		last  int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '"', '`':
			i = skipString(s, i)
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, s[last:])
}

// assignIndex returns the index of the top-level `=` that starts a default,
// or -1.
func assignIndex(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '"', '`':
			i = skipString(s, i)
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case '=':
			if depth != 0 {
				continue
			}
			if i+1 < len(s) && (s[i+1] == '=' || s[i+1] == '>') {
				i++
				continue
			}
			if i > 0 && strings.IndexByte("=!<>", s[i-1]) >= 0 {
				continue
			}
			return i
		}
	}
	return -1
}

// inferProps maps each destructured binding to {type, default}.
func inferProps(pattern string) *value.Map {
	props := value.NewMap()
	for _, part := range splitTopLevel(pattern, ',') {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(part, "...") {
			continue
		}
		name, def, hasDefault := part, "", false
		if i := assignIndex(part); i >= 0 {
			name, def, hasDefault = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:]), true
		}
		if keys := splitTopLevel(name, ':'); len(keys) > 1 {
			name = strings.TrimSpace(keys[0])
		}
		if s, ok := preamble.UnquoteLiteral(name); ok {
			name = s
		}
		if name == "" {
			continue
		}
		typ, v := inferType(def, hasDefault)
		spec := value.NewMap()
		spec.Set("type", typ)
		spec.Set("default", v)
		props.Set(name, spec)
	}
	return props
}

func inferType(def string, hasDefault bool) (string, any) {
	if !hasDefault {
		return TypeString, nil
	}
	if s, ok := preamble.UnquoteLiteral(def); ok {
		return TypeString, s
	}
	switch def {
	case "true":
		return TypeBoolean, true
	case "false":
		return TypeBoolean, false
	}
	clean := strings.ReplaceAll(def, "_", "")
	switch {
	case decimalRe.MatchString(def):
		if f, err := strconv.ParseFloat(clean, 64); err == nil {
			return TypeNumber, f
		}
	case hexRe.MatchString(def):
		if n, err := strconv.ParseInt(clean, 0, 64); err == nil {
			return TypeNumber, float64(n)
		}
	}
	return TypeString, nil
}
