package preamble

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2/js"

	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

// converter maps expression nodes to values. Literal shapes map directly;
// everything else goes through the literal interpreter and degrades to nil.
type converter struct {
	log   *slog.Logger
	trace *models.Trace
}

func (c converter) convert(node js.IExpr, path string) any {
	switch n := node.(type) {
	case *js.LiteralExpr:
		v, err := literalValue(n)
		if err != nil {
			return c.unrepresentable(node, path)
		}
		return v
	case *js.ArrayExpr:
		out := make([]any, 0, len(n.List))
		for i, el := range n.List {
			if el.Spread {
				v, err := evalExpr(el.Value)
				arr, ok := v.([]any)
				if err != nil || !ok {
					c.unrepresentable(el.Value, path+"[..."+strconv.Itoa(i)+"]")
					continue
				}
				out = append(out, arr...)
				continue
			}
			if el.Value == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, c.convert(el.Value, path+"["+strconv.Itoa(len(out))+"]"))
		}
		return out
	case *js.ObjectExpr:
		out := value.NewMap()
		for _, prop := range n.List {
			if prop.Spread {
				v, err := evalExpr(prop.Value)
				m, ok := v.(*value.Map)
				if err != nil || !ok {
					c.unrepresentable(prop.Value, path+"{...}")
					continue
				}
				for _, k := range m.Keys() {
					item, _ := m.Get(k)
					out.Set(k, item)
				}
				continue
			}
			key, err := propertyKey(prop.Name)
			if err != nil {
				c.unrepresentable(prop.Name.Computed, path+"[?]")
				continue
			}
			child := childPath(path, key)
			if prop.Init != nil {
				out.Set(key, c.unrepresentable(prop.Value, child))
				continue
			}
			out.Set(key, c.convert(prop.Value, child))
		}
		return out
	case *js.TemplateExpr:
		if n.Tag != nil {
			return c.unrepresentable(node, path)
		}
		var b strings.Builder
		for i, part := range n.List {
			b.WriteString(templateSegment(part.Value))
			c.trace.Dropped = append(c.trace.Dropped, path+"${"+strconv.Itoa(i)+"}")
		}
		b.WriteString(templateSegment(n.Tail))
		return b.String()
	}
	v, err := evalExpr(node)
	if err != nil {
		return c.unrepresentable(node, path)
	}
	return v
}

func (c converter) unrepresentable(node js.IExpr, path string) any {
	c.trace.Unrepresentable = append(c.trace.Unrepresentable, path)
	c.log.Warn("preamble value is not a literal",
		slog.String("path", path),
		slog.String("expr", exprSource(node)),
	)
	return nil
}

func childPath(path, key string) string {
	if js.AsIdentifierName([]byte(key)) {
		return path + "." + key
	}
	return path + "[" + strconv.Quote(key) + "]"
}

func exprSource(node js.IExpr) string {
	if node == nil {
		return ""
	}
	var buf bytes.Buffer
	node.JS(&buf)
	s := buf.String()
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
