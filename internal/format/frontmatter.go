package format

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/kiln/internal/fence"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

// ErrBrokenFrontmatter is returned when writing into a file whose
// frontmatter is not valid YAML.
var ErrBrokenFrontmatter = errors.New("format: frontmatter is not valid YAML")

// Frontmatter is the YAML frontmatter codec. Key order survives a round
// trip; comments inside the frontmatter do not survive an edit.
type Frontmatter struct{}

// Parse splits a leading `---` YAML block from the body.
func (Frontmatter) Parse(text string) (models.FileModel, models.Trace) {
	var trace models.Trace
	m := models.FileModel{PreambleValues: value.NewMap(), Raw: text}
	f, ok := fence.LocateLeading(text)
	if !ok {
		m.Body, m.BodyOriginal, m.RawType = text, text, models.RawPlain
		trace.Note("no frontmatter found")
		return m, trace
	}
	m.Leading = f.Leading(text)
	m.Preamble = f.Inner(text)
	m.Body = f.Rest(text)
	m.BodyOriginal = m.Body
	m.RawType = models.RawFrontmatter

	values, err := decodeYAML(m.Preamble)
	if err != nil {
		trace.Error = err.Error()
		m.Body = text
		m.RawType = models.RawPreambleError
		return m, trace
	}
	m.PreambleValues = values
	return m, trace
}

// Write re-renders the frontmatter from values. Unchanged values leave raw
// untouched.
func (c Frontmatter) Write(raw string, values *value.Map) (WriteResult, error) {
	if values == nil {
		values = value.NewMap()
	}
	current, _ := c.Parse(raw)
	switch current.RawType {
	case models.RawPreambleError:
		return WriteResult{}, ErrBrokenFrontmatter
	case models.RawPlain:
		if values.Len() == 0 {
			return WriteResult{Text: raw}, nil
		}
	}
	if value.Equal(current.PreambleValues, values) {
		return WriteResult{Text: raw}, nil
	}
	doc, err := encodeYAML(values)
	if err != nil {
		return WriteResult{}, err
	}
	text := current.Leading + fence.Delimiter + "\n" + doc + fence.Delimiter + "\n" + current.BodyOriginal
	return WriteResult{Text: text}, nil
}

func decodeYAML(src string) (*value.Map, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return value.NewMap(), nil
	}
	v, err := fromNode(doc.Content[0])
	if err != nil {
		return nil, err
	}
	m, ok := v.(*value.Map)
	if !ok {
		return nil, fmt.Errorf("frontmatter must be a mapping, got %s", doc.Content[0].ShortTag())
	}
	return m, nil
}

func fromNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		m := value.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := fromNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(n.Content[i].Value, v)
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case uint64:
			return float64(x), nil
		case float64, bool, string, nil:
			return x, nil
		case time.Time:
			return n.Value, nil
		}
		return n.Value, nil
	}
	return nil, fmt.Errorf("unsupported YAML node kind %d", n.Kind)
}

func toNode(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case *value.Map:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range x.Keys() {
			item, _ := x.Get(k)
			child, err := toNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, child)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range x {
			child, err := toNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

func encodeYAML(values *value.Map) (string, error) {
	if values.Len() == 0 {
		return "", nil
	}
	n, err := toNode(values)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
