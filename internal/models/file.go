// Package models defines the domain types for kiln.
package models

import (
	"time"

	"github.com/starford/kiln/internal/value"
)

// RawType tells how a file's raw text was interpreted.
type RawType string

const (
	RawPreamble      RawType = "preamble"
	RawPreambleError RawType = "preamble-error"
	RawFrontmatter   RawType = "frontmatter"
	RawPlain         RawType = "plain"
)

// FileModel is the editable view of a file: the data values extracted from
// its preamble and the markup body that follows it.
type FileModel struct {
	PreambleValues *value.Map `json:"preambleValues"`
	Body           string     `json:"body"`
	Raw            string     `json:"raw"`
	BodyOriginal   string     `json:"bodyOriginal"`
	RawType        RawType    `json:"rawType"`
	// Preamble is the verbatim text between the delimiter lines.
	Preamble string `json:"preamble,omitempty"`
	Leading  string `json:"leading,omitempty"`
}

// Trace collects non-fatal findings from a parse.
type Trace struct {
	Error           string   `json:"error,omitempty"`
	Notes           []string `json:"notes,omitempty"`
	Unrepresentable []string `json:"unrepresentable,omitempty"`
	Dropped         []string `json:"dropped,omitempty"`
}

// Note appends a trace note.
func (t *Trace) Note(msg string) {
	t.Notes = append(t.Notes, msg)
}

// Added flags which region markers a markerize run inserted.
type Added struct {
	Imports     bool `json:"imports"`
	Props       bool `json:"props"`
	Head        bool `json:"head"`
	ContentSlot bool `json:"contentSlot"`
	PreContent  bool `json:"preContent"`
	PostContent bool `json:"postContent"`
}

// Any reports whether any flag is set.
func (a Added) Any() bool {
	return a.Imports || a.Props || a.Head || a.ContentSlot || a.PreContent || a.PostContent
}

// MarkerizeReport describes what a markerize run changed.
type MarkerizeReport struct {
	Changed  bool     `json:"changed"`
	Added    Added    `json:"added"`
	Warnings []string `json:"warnings"`
}

// Region is a named marker pair found in a file.
type Region struct {
	Name    string `json:"name"`
	Context string `json:"context"` // "preamble" or "markup"
	Single  bool   `json:"single,omitempty"`
	Inner   string `json:"inner,omitempty"`
}

// PropSpec is one entry of a props region.
type PropSpec struct {
	Type    string `json:"type"`
	Default any    `json:"default"`
}

// FileKind classifies site files.
type FileKind string

const (
	KindComponent FileKind = "component"
	KindContent   FileKind = "content"
)

// FileMetadata is a lightweight representation returned by list operations.
type FileMetadata struct {
	Path      string    `json:"path"`
	Kind      FileKind  `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Legacy    bool      `json:"legacy"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Import is a directed dependency edge between two site files.
type Import struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "component" or "link"
}
