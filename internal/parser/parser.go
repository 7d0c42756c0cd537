// Package parser summarizes site files for the index: title, outgoing
// references, region markers and the props schema.
package parser

import (
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/starford/kiln/internal/format"
	"github.com/starford/kiln/internal/markerize"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/preamble"
	"github.com/starford/kiln/internal/value"
)

// Result holds the summary of one file.
type Result struct {
	Kind    models.FileKind
	Title   string
	Values  *value.Map
	Body    string
	Refs    []string // site-relative paths this file imports or links to
	Regions []models.Region
	Missing []string // required regions the file lacks
	Props   *value.Map
	Error   string
}

// Legacy reports whether a component still lacks region markers.
func (r *Result) Legacy() bool {
	return r.Kind == models.KindComponent && len(r.Missing) > 0
}

// Parser builds Results.
type Parser struct {
	formats  *format.Dispatcher
	preamble *preamble.Parser
	md       goldmark.Markdown
}

// New returns a Parser that classifies files with formats.
func New(formats *format.Dispatcher, p *preamble.Parser) *Parser {
	return &Parser{formats: formats, preamble: p, md: goldmark.New()}
}

// Parse summarizes data, the content of the file at relPath.
func (p *Parser) Parse(relPath string, data []byte) *Result {
	src := string(data)
	model, trace := p.formats.Parse(relPath, src)
	res := &Result{
		Kind:   p.formats.Kind(relPath),
		Values: model.PreambleValues,
		Body:   model.BodyOriginal,
		Error:  trace.Error,
	}
	if t, ok := model.PreambleValues.Get("title"); ok {
		if s, ok := t.(string); ok {
			res.Title = s
		}
	}

	if res.Kind == models.KindComponent {
		for _, spec := range p.preamble.Imports(src) {
			if ref, ok := resolve(relPath, spec); ok {
				res.Refs = appendUnique(res.Refs, ref)
			}
		}
		res.Regions = markerize.Regions(src)
		res.Missing = markerize.Missing(src)
		res.Props = markerize.ReadProps(src)
		return res
	}

	heading, links := p.scanMarkdown([]byte(model.BodyOriginal))
	if res.Title == "" {
		res.Title = heading
	}
	for _, l := range links {
		if ref, ok := resolve(relPath, l); ok {
			res.Refs = appendUnique(res.Refs, ref)
		}
	}
	return res
}

// scanMarkdown returns the first H1 text and every link destination.
func (p *Parser) scanMarkdown(src []byte) (string, []string) {
	var (
		title string
		links []string
	)
	doc := p.md.Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && title == "" {
				title = strings.TrimSpace(plainText(node, src))
			}
		case *ast.Link:
			links = append(links, string(node.Destination))
		}
		return ast.WalkContinue, nil
	})
	return title, links
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
			continue
		}
		b.WriteString(plainText(c, src))
	}
	return b.String()
}

// resolve turns a relative import specifier or link into a site path.
// Package imports, absolute URLs and fragments are not site references.
func resolve(from, ref string) (string, bool) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "mailto:") {
		return "", false
	}
	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(path.Clean(ref), "/"), true
	}
	if !strings.HasPrefix(ref, "./") && !strings.HasPrefix(ref, "../") {
		return "", false
	}
	resolved := path.Clean(path.Join(path.Dir(from), ref))
	if strings.HasPrefix(resolved, "../") || resolved == ".." {
		return "", false
	}
	return resolved, true
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
