// Package preamble reads and writes the data preamble of component files:
// the block of exported declarations between two `---` lines that precedes
// the markup.
package preamble

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"

	"github.com/starford/kiln/internal/fence"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

// Parser extracts value trees from component files. The zero value is not
// usable; create one with NewParser and share it freely, it holds no
// per-call state.
type Parser struct {
	log *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for non-fatal findings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.log = l
		}
	}
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// NewParser returns a ready Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{log: discard}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// document is a parsed file kept together with what Splice needs.
type document struct {
	model models.FileModel
	trace models.Trace
	fence fence.Fence
	ast   *js.AST
}

// Parse splits text into preamble values and body. It never fails: a missing
// preamble yields an empty value map and a trace note, a syntax error yields
// a trace error and a body that shows the raw file behind an error banner.
func (p *Parser) Parse(text string) (models.FileModel, models.Trace) {
	doc := p.parse(text)
	return doc.model, doc.trace
}

func (p *Parser) parse(text string) *document {
	doc := &document{
		model: models.FileModel{
			PreambleValues: value.NewMap(),
			Raw:            text,
		},
	}
	m := &doc.model

	f, ok := fence.Locate(text)
	if !ok {
		m.Body, m.BodyOriginal, m.RawType = text, text, models.RawPlain
		doc.trace.Note("no preamble found")
		return doc
	}
	doc.fence = f
	m.Leading = f.Leading(text)
	m.Preamble = f.Inner(text)
	m.Body = f.Rest(text)
	m.BodyOriginal = m.Body
	m.RawType = models.RawPreamble

	ast, err := js.Parse(parse.NewInputString(m.Preamble), js.Options{})
	if err != nil {
		msg := syntaxMessage(err, strings.Count(text[:f.OpenEnd], "\n"))
		p.log.Warn("preamble syntax error", slog.String("error", msg))
		doc.trace.Error = msg
		m.Body = errorBanner(msg) + text
		m.RawType = models.RawPreambleError
		return doc
	}
	doc.ast = ast

	for _, decl := range exportedVarDecls(ast) {
		for _, el := range decl.List {
			v, ok := el.Binding.(*js.Var)
			if !ok {
				doc.trace.Note("destructured export skipped")
				continue
			}
			if el.Default == nil {
				continue
			}
			name := string(v.Name())
			c := converter{log: p.log, trace: &doc.trace}
			m.PreambleValues.Set(name, c.convert(el.Default, name))
		}
	}
	return doc
}

func exportedVarDecls(ast *js.AST) []*js.VarDecl {
	var out []*js.VarDecl
	for _, stmt := range ast.List {
		exp, ok := stmt.(*js.ExportStmt)
		if !ok || exp.Default {
			continue
		}
		if decl, ok := exp.Decl.(*js.VarDecl); ok {
			out = append(out, decl)
		}
	}
	return out
}

// Imports returns the module specifiers imported by the preamble, in order.
func (p *Parser) Imports(text string) []string {
	doc := p.parse(text)
	if doc.ast == nil {
		return nil
	}
	var out []string
	for _, stmt := range doc.ast.List {
		imp, ok := stmt.(*js.ImportStmt)
		if !ok || len(imp.Module) < 2 {
			continue
		}
		out = append(out, unquote(imp.Module))
	}
	return out
}

// syntaxMessage reports err with line numbers relative to the whole file.
func syntaxMessage(err error, lineOffset int) string {
	var perr *parse.Error
	if errors.As(err, &perr) {
		return fmt.Sprintf("%s on line %d and column %d", perr.Message, perr.Line+lineOffset, perr.Column)
	}
	return err.Error()
}

func errorBanner(msg string) string {
	msg = strings.ReplaceAll(msg, "--", "- -")
	return "<!-- preamble could not be parsed: " + msg + " -->\n"
}
