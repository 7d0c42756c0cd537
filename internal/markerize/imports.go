package markerize

import (
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// importRun finds the first run of import declarations in pre. Blank lines
// between declarations belong to the run; any other statement or comment
// line ends it. start is a line start. end is past the line break of the
// last declaration, or right after it when more code shares its line.
func importRun(pre string) (start, end int, ok bool) {
	lines := splitLines(pre)
	i := 0
	for ; i < len(lines); i++ {
		if isImportLine(pre, lines[i]) {
			break
		}
	}
	if i == len(lines) {
		return 0, 0, false
	}
	start = lines[i].start
	pos := start
	for {
		n, ok := importDecl(pre[pos:])
		if !ok {
			break
		}
		var whole bool
		end, whole = restOfLine(pre, pos+n)
		if !whole {
			break
		}
		next := end
		for next < len(pre) && strings.TrimSpace(pre[next:lineEnd(pre, next)]) == "" {
			next = lineEnd(pre, next)
		}
		if next == len(pre) || !isImportLine(pre, line{text: pre[next:lineEnd(pre, next)], start: next}) {
			break
		}
		pos = next
	}
	return start, end, true
}

func isImportLine(pre string, l line) bool {
	if !importStartRe.MatchString(l.text) {
		return false
	}
	_, ok := importDecl(pre[l.start:])
	return ok
}

// tokens yields the significant tokens of src with their byte ranges.
type tokens struct {
	l      *js.Lexer
	offset int
}

func (t *tokens) next() (js.TokenType, string, int) {
	for {
		tt, data := t.l.Next()
		t.offset += len(data)
		switch tt {
		case js.WhitespaceToken, js.LineTerminatorToken, js.CommentToken, js.CommentLineTerminatorToken:
			continue
		}
		return tt, string(data), t.offset
	}
}

// importDecl lexes the import declaration src starts with, leading
// whitespace allowed, and returns the offset just past it: past the module
// specifier, any `with { ... }` or `assert { ... }` attributes, and a
// following semicolon. Dynamic import() and import.meta are not
// declarations.
func importDecl(src string) (int, bool) {
	t := &tokens{l: js.NewLexer(parse.NewInputString(src))}
	if tt, _, _ := t.next(); tt != js.ImportToken {
		return 0, false
	}
	tt, data, end := t.next()
	switch tt {
	case js.OpenParenToken, js.DotToken, js.ErrorToken:
		return 0, false
	}
	// The module specifier is the first string outside braces.
	for depth := 0; tt != js.StringToken || depth > 0; {
		switch tt {
		case js.OpenBraceToken:
			depth++
		case js.CloseBraceToken:
			depth--
		case js.ErrorToken, js.SemicolonToken:
			return 0, false
		}
		tt, data, end = t.next()
	}

	tt, data, after := t.next()
	if tt == js.WithToken || tt == js.IdentifierToken && data == "assert" {
		if tt, _, _ = t.next(); tt != js.OpenBraceToken {
			return end, true
		}
		for depth := 1; depth > 0; {
			tt, _, after = t.next()
			switch tt {
			case js.OpenBraceToken:
				depth++
			case js.CloseBraceToken:
				depth--
			case js.ErrorToken:
				return 0, false
			}
		}
		end = after
		tt, _, after = t.next()
	}
	if tt == js.SemicolonToken {
		end = after
	}
	return end, true
}

// restOfLine extends pos over trailing whitespace and comments to the end of
// its line. whole is false when other code follows on the same line.
func restOfLine(src string, pos int) (end int, whole bool) {
	l := js.NewLexer(parse.NewInputString(src[pos:]))
	offset := pos
	for {
		tt, data := l.Next()
		offset += len(data)
		switch tt {
		case js.WhitespaceToken, js.CommentToken:
			continue
		case js.LineTerminatorToken, js.CommentLineTerminatorToken, js.ErrorToken:
			return offset, true
		}
		return pos, false
	}
}
