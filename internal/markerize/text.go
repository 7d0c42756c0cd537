package markerize

import (
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/html"
)

type line struct {
	text       string
	start, end int // end is past the line break
}

func splitLines(s string) []line {
	var out []line
	for pos := 0; pos < len(s); {
		end := lineEnd(s, pos)
		out = append(out, line{text: strings.TrimSuffix(s[pos:end], "\n"), start: pos, end: end})
		pos = end
	}
	return out
}

// lineStart returns the offset of the start of the line holding pos.
func lineStart(s string, pos int) int {
	return strings.LastIndexByte(s[:pos], '\n') + 1
}

// lineEnd returns the offset just past the line break that ends the line
// holding pos, or len(s).
func lineEnd(s string, pos int) int {
	if i := strings.IndexByte(s[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(s)
}

// lineIndent returns the leading whitespace of the line holding pos.
func lineIndent(s string, pos int) string {
	ls := lineStart(s, pos)
	rest := s[ls:pos]
	return rest[:len(rest)-len(strings.TrimLeft(rest, " \t"))]
}

// ownsLine reports whether s[pos:end] is alone on its line(s).
func ownsLine(s string, pos, end int) bool {
	return strings.TrimSpace(s[lineStart(s, pos):pos]) == "" &&
		strings.TrimSpace(s[end:lineEnd(s, end)]) == ""
}

// detectIndent returns the indentation of the first non-blank line of block
// that starts a line, or fallback.
func detectIndent(block, fallback string) string {
	for i, l := range strings.Split(block, "\n") {
		if i == 0 || strings.TrimSpace(l) == "" {
			continue
		}
		return l[:len(l)-len(strings.TrimLeft(l, " \t"))]
	}
	return fallback
}

// reindent drops the block's leading and trailing blank lines, removes the
// indentation its lines share and prefixes every line with indent. When the
// block does not start at a line start, its first line is content that
// followed an opening tag and is only left-trimmed.
func reindent(block, indent string, atLineStart bool) string {
	lines := strings.Split(block, "\n")
	inline := !atLineStart && strings.TrimSpace(lines[0]) != ""
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}

	common := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "" || i == 0 && inline {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	for i, l := range lines {
		switch {
		case strings.TrimSpace(l) == "":
			lines[i] = ""
		case i == 0 && inline:
			lines[i] = indent + strings.TrimLeft(l, " \t")
		default:
			if common > 0 {
				l = l[common:]
			}
			lines[i] = indent + l
		}
	}
	return strings.Join(lines, "\n")
}

// missingStructure lists the document-level tags markup lacks.
func missingStructure(markup string) []string {
	var doctype, root, head, body bool
	l := html.NewLexer(parse.NewInputString(markup))
	for {
		tt, _ := l.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.DoctypeToken:
			doctype = true
		case html.StartTagToken:
			switch string(l.Text()) {
			case "html":
				root = true
			case "head":
				head = true
			case "body":
				body = true
			}
		}
	}
	var missing []string
	for _, c := range []struct {
		ok   bool
		name string
	}{
		{doctype, "<!DOCTYPE>"},
		{root, "<html>"},
		{head, "<head>"},
		{body, "<body>"},
	} {
		if !c.ok {
			missing = append(missing, c.name)
		}
	}
	return missing
}
