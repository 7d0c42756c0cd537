package preamble

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"

	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

// ErrBrokenPreamble is returned by Splice when the current preamble does not
// parse, so there is nothing safe to splice into.
var ErrBrokenPreamble = errors.New("preamble: current preamble has a syntax error")

// ErrRoundTrip is returned by Splice when no rewrite of the file parses back
// to the edited values. The file must be left as it is.
var ErrRoundTrip = errors.New("preamble: values do not survive a rewrite")

// SpliceResult describes a Splice.
type SpliceResult struct {
	Text    string   `json:"text"`
	Lossy   bool     `json:"lossy"`
	Reason  string   `json:"reason,omitempty"`
	Changed []string `json:"changed,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Added   []string `json:"added,omitempty"`
}

// Splice writes values into raw while keeping every byte the values do not
// own: text before the preamble, imports, comments, region markers, other
// statements and the body. Unchanged declarations keep their original
// spelling. When the spliced text would not parse back to values, Splice
// falls back to Assemble and marks the result lossy.
func (p *Parser) Splice(raw string, values *value.Map) (SpliceResult, error) {
	if values == nil {
		values = value.NewMap()
	}
	doc := p.parse(raw)
	switch doc.model.RawType {
	case models.RawPreambleError:
		return SpliceResult{}, ErrBrokenPreamble
	case models.RawPlain:
		if values.Len() == 0 {
			return SpliceResult{Text: raw}, nil
		}
		text := Assemble(values, raw)
		if err := p.verify(text, values); err != nil {
			return SpliceResult{}, err
		}
		return SpliceResult{Text: text, Added: values.Keys()}, nil
	}

	res, ok := splice(doc, values)
	if ok {
		if p.verify(res.Text, values) == nil {
			return res, nil
		}
		res.Reason = "spliced preamble did not reproduce the edited values"
	}
	p.log.Warn("preamble splice fell back to full rewrite", slog.String("reason", res.Reason))
	text := doc.model.Leading + Assemble(values, doc.model.BodyOriginal)
	if err := p.verify(text, values); err != nil {
		return SpliceResult{}, err
	}
	return SpliceResult{Text: text, Lossy: true, Reason: res.Reason}, nil
}

// verify re-parses text and checks that it yields values.
func (p *Parser) verify(text string, values *value.Map) error {
	q := *p
	q.log = discard
	check, trace := q.Parse(text)
	if trace.Error != "" {
		return fmt.Errorf("%w: %s", ErrRoundTrip, trace.Error)
	}
	if !value.Equal(check.PreambleValues, values) {
		return ErrRoundTrip
	}
	return nil
}

func splice(doc *document, values *value.Map) (SpliceResult, bool) {
	var res SpliceResult
	pre := doc.model.Preamble
	orig := doc.model.PreambleValues
	spans := statementSpans(pre)
	decls := exportedVarDecls(doc.ast)
	if len(spans) != len(decls) {
		res.Reason = "could not locate every exported declaration"
		return res, false
	}

	var b strings.Builder
	seen := make(map[string]bool)
	last := 0
	for i, decl := range decls {
		names, plain := bindingNames(decl)
		for _, n := range names {
			seen[n] = true
		}
		if !plain || unchanged(names, orig, values) {
			continue
		}
		var lines []string
		for _, n := range names {
			v, ok := values.Get(n)
			if !ok {
				res.Removed = append(res.Removed, n)
				continue
			}
			if ov, had := orig.Get(n); !had || !value.Equal(ov, v) {
				res.Changed = append(res.Changed, n)
			}
			lines = append(lines, declaration(decl.TokenType.String(), n, v))
		}
		start, end := spans[i].start, spans[i].end
		if len(lines) == 0 {
			start, end = lineExtent(pre, start, end)
		}
		b.WriteString(pre[last:start])
		b.WriteString(strings.Join(lines, "\n"))
		last = end
	}
	b.WriteString(pre[last:])

	out := b.String()
	for _, k := range values.Keys() {
		if seen[k] {
			continue
		}
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		v, _ := values.Get(k)
		out += declaration("const", k, v) + "\n"
		res.Added = append(res.Added, k)
	}

	raw := doc.model.Raw
	f := doc.fence
	res.Text = f.Leading(raw) + f.OpenLine(raw) + out + f.CloseLine(raw) + f.Rest(raw)
	return res, true
}

func bindingNames(decl *js.VarDecl) ([]string, bool) {
	names := make([]string, 0, len(decl.List))
	plain := true
	for _, el := range decl.List {
		v, ok := el.Binding.(*js.Var)
		if !ok {
			plain = false
			continue
		}
		names = append(names, string(v.Name()))
	}
	return names, plain
}

func unchanged(names []string, orig, values *value.Map) bool {
	for _, n := range names {
		ov, had := orig.Get(n)
		nv, has := values.Get(n)
		if had != has || has && !value.Equal(ov, nv) {
			return false
		}
	}
	return true
}

// lineExtent widens [start, end) to the whole line when the span is the
// only thing on it.
func lineExtent(src string, start, end int) (int, int) {
	ls := strings.LastIndexByte(src[:start], '\n') + 1
	if strings.TrimSpace(src[ls:start]) != "" {
		return start, end
	}
	le := len(src)
	if i := strings.IndexByte(src[end:], '\n'); i >= 0 {
		le = end + i + 1
	}
	if strings.TrimSpace(src[end:le]) != "" {
		return start, end
	}
	return ls, le
}

type span struct{ start, end int }

// statementSpans finds the byte ranges of top-level `export const|let|var`
// statements in src. A statement ends at a top-level semicolon, or at a line
// break where automatic semicolon insertion would end it.
func statementSpans(src string) []span {
	l := js.NewLexer(parse.NewInputString(src))
	var (
		spans    []span
		offset   int
		depth    int
		in       bool
		start    int
		sigEnd   int
		newline  bool
		exportAt = -1
		prev     = js.SemicolonToken
	)
	for {
		tt, data := l.Next()
		if tt == js.ErrorToken {
			break
		}
		pos := offset
		offset += len(data)
		switch tt {
		case js.WhitespaceToken, js.CommentToken:
			continue
		case js.LineTerminatorToken, js.CommentLineTerminatorToken:
			newline = true
			continue
		}
		if (tt == js.DivToken || tt == js.DivEqToken) && !endsOperand(prev) {
			if rt, rdata := l.RegExp(); rt == js.RegExpToken {
				tt = rt
				offset = pos + len(rdata)
			}
		}
		if in && depth == 0 && newline && endsOperand(prev) && !continues(tt) {
			spans = append(spans, span{start, sigEnd})
			in = false
		}
		newline = false

		if !in && depth == 0 {
			switch {
			case tt == js.ExportToken:
				exportAt = pos
			case exportAt >= 0 && (tt == js.ConstToken || tt == js.LetToken || tt == js.VarToken):
				in, start, exportAt = true, exportAt, -1
			default:
				exportAt = -1
			}
		}
		switch tt {
		case js.OpenBraceToken, js.OpenParenToken, js.OpenBracketToken, js.TemplateStartToken:
			depth++
		case js.CloseBraceToken, js.CloseParenToken, js.CloseBracketToken, js.TemplateEndToken:
			if depth > 0 {
				depth--
			}
		}
		sigEnd = offset
		prev = tt
		if in && depth == 0 && tt == js.SemicolonToken {
			spans = append(spans, span{start, offset})
			in = false
		}
	}
	if in {
		spans = append(spans, span{start, sigEnd})
	}
	return spans
}

func endsOperand(tt js.TokenType) bool {
	switch tt {
	case js.StringToken, js.TemplateToken, js.TemplateEndToken, js.RegExpToken,
		js.CloseBraceToken, js.CloseParenToken, js.CloseBracketToken,
		js.IncrToken, js.DecrToken, js.PrivateIdentifierToken:
		return true
	}
	return js.IsIdentifierName(tt) || js.IsNumeric(tt)
}

func continues(tt js.TokenType) bool {
	switch tt {
	case js.IncrToken, js.DecrToken, js.NotToken, js.BitNotToken:
		return false
	case js.DotToken, js.CommaToken, js.QuestionToken, js.ColonToken, js.ArrowToken,
		js.OpenParenToken, js.OpenBracketToken, js.TemplateToken, js.TemplateStartToken,
		js.InToken, js.InstanceofToken:
		return true
	}
	return js.IsOperator(tt)
}
