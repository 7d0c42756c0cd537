// Package fence locates the `---` delimiter lines that bound a preamble or
// frontmatter block.
package fence

import "strings"

// Delimiter is the content of a fence line.
const Delimiter = "---"

// Fence holds byte offsets of the two delimiter lines. End offsets include
// the line break, when present.
type Fence struct {
	OpenStart, OpenEnd   int
	CloseStart, CloseEnd int
}

// Leading returns the text before the opening delimiter.
func (f Fence) Leading(text string) string { return text[:f.OpenStart] }

// Inner returns the text between the delimiter lines.
func (f Fence) Inner(text string) string { return text[f.OpenEnd:f.CloseStart] }

// Rest returns the text after the closing delimiter line.
func (f Fence) Rest(text string) string { return text[f.CloseEnd:] }

// OpenLine returns the opening delimiter line including its line break.
func (f Fence) OpenLine(text string) string { return text[f.OpenStart:f.OpenEnd] }

// CloseLine returns the closing delimiter line including its line break.
func (f Fence) CloseLine(text string) string { return text[f.CloseStart:f.CloseEnd] }

// Locate finds the first two delimiter lines anywhere in text.
func Locate(text string) (Fence, bool) {
	return locate(text, false)
}

// LocateLeading is like Locate but requires the opening delimiter to be the
// first non-blank line.
func LocateLeading(text string) (Fence, bool) {
	return locate(text, true)
}

// IsDelimiterLine reports whether line (without its line break) is a fence.
func IsDelimiterLine(line string) bool {
	return strings.TrimRight(line, " \t\r") == Delimiter
}

func locate(text string, leading bool) (Fence, bool) {
	var f Fence
	opened := false
	pos := 0
	for {
		lineEnd, next := len(text), len(text)
		if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
			lineEnd = pos + i
			next = lineEnd + 1
		}
		line := text[pos:lineEnd]
		switch {
		case IsDelimiterLine(line):
			if !opened {
				f.OpenStart, f.OpenEnd = pos, next
				opened = true
			} else {
				f.CloseStart, f.CloseEnd = pos, next
				return f, true
			}
		case leading && !opened && strings.TrimSpace(line) != "":
			return Fence{}, false
		}
		if next >= len(text) {
			return Fence{}, false
		}
		pos = next
	}
}
