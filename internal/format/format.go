// Package format routes files to the codec that understands them: the
// preamble codec for component files, the YAML frontmatter codec for the
// rest.
package format

import (
	"path/filepath"
	"strings"

	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/preamble"
	"github.com/starford/kiln/internal/value"
)

// DefaultComponentExtensions are handled by the preamble codec.
var DefaultComponentExtensions = []string{".astro"}

// WriteResult is the text produced by writing values back into a file.
type WriteResult struct {
	Text   string `json:"text"`
	Lossy  bool   `json:"lossy"`
	Reason string `json:"reason,omitempty"`
}

// Codec reads values out of a file and writes edited values back.
type Codec interface {
	Parse(text string) (models.FileModel, models.Trace)
	Write(raw string, values *value.Map) (WriteResult, error)
}

// Dispatcher picks a Codec by file extension.
type Dispatcher struct {
	components  map[string]bool
	component   Codec
	frontmatter Codec
}

// NewDispatcher returns a Dispatcher that sends files with one of exts to
// p and everything else to the frontmatter codec.
func NewDispatcher(p *preamble.Parser, exts ...string) *Dispatcher {
	if len(exts) == 0 {
		exts = DefaultComponentExtensions
	}
	d := &Dispatcher{
		components:  make(map[string]bool, len(exts)),
		component:   componentCodec{p},
		frontmatter: Frontmatter{},
	}
	for _, ext := range exts {
		d.components[strings.ToLower(ext)] = true
	}
	return d
}

// IsComponent reports whether path is a component file.
func (d *Dispatcher) IsComponent(path string) bool {
	return d.components[strings.ToLower(filepath.Ext(path))]
}

// Kind classifies path.
func (d *Dispatcher) Kind(path string) models.FileKind {
	if d.IsComponent(path) {
		return models.KindComponent
	}
	return models.KindContent
}

// For returns the codec for path.
func (d *Dispatcher) For(path string) Codec {
	if d.IsComponent(path) {
		return d.component
	}
	return d.frontmatter
}

// Parse parses text with the codec for path.
func (d *Dispatcher) Parse(path, text string) (models.FileModel, models.Trace) {
	return d.For(path).Parse(text)
}

// Write writes values into raw with the codec for path.
func (d *Dispatcher) Write(path, raw string, values *value.Map) (WriteResult, error) {
	return d.For(path).Write(raw, values)
}

type componentCodec struct {
	p *preamble.Parser
}

func (c componentCodec) Parse(text string) (models.FileModel, models.Trace) {
	return c.p.Parse(text)
}

func (c componentCodec) Write(raw string, values *value.Map) (WriteResult, error) {
	res, err := c.p.Splice(raw, values)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Text: res.Text, Lossy: res.Lossy, Reason: res.Reason}, nil
}
