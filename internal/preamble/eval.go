package preamble

import (
	"errors"
	"strings"

	"github.com/tdewolff/parse/v2/js"

	"github.com/starford/kiln/internal/value"
)

// ErrUnrepresentable marks an expression the literal interpreter refuses to
// evaluate: calls, references, operators other than unary sign and +.
var ErrUnrepresentable = errors.New("preamble: unrepresentable expression")

// evalExpr interprets the literal subset of expressions: literals, arrays,
// objects (spreads and computed keys included), unary - and +, + on strings
// and numbers, grouping, templates and undefined. It never executes code.
func evalExpr(node js.IExpr) (any, error) {
	switch n := node.(type) {
	case *js.LiteralExpr:
		return literalValue(n)
	case *js.GroupExpr:
		return evalExpr(n.X)
	case *js.Var:
		if string(n.Name()) == "undefined" {
			return nil, nil
		}
	case *js.UnaryExpr:
		if n.Op != js.NegToken && n.Op != js.PosToken {
			break
		}
		v, err := evalExpr(n.X)
		if err != nil {
			return nil, err
		}
		f, ok := v.(float64)
		if !ok {
			break
		}
		if n.Op == js.NegToken {
			return -f, nil
		}
		return f, nil
	case *js.BinaryExpr:
		if n.Op != js.AddToken {
			break
		}
		x, err := evalExpr(n.X)
		if err != nil {
			return nil, err
		}
		y, err := evalExpr(n.Y)
		if err != nil {
			return nil, err
		}
		return add(x, y)
	case *js.ArrayExpr:
		out := make([]any, 0, len(n.List))
		for _, el := range n.List {
			if el.Value == nil {
				out = append(out, nil)
				continue
			}
			v, err := evalExpr(el.Value)
			if err != nil {
				return nil, err
			}
			if el.Spread {
				arr, ok := v.([]any)
				if !ok {
					return nil, ErrUnrepresentable
				}
				out = append(out, arr...)
				continue
			}
			out = append(out, v)
		}
		return out, nil
	case *js.ObjectExpr:
		out := value.NewMap()
		for _, prop := range n.List {
			v, err := evalExpr(prop.Value)
			if err != nil {
				return nil, err
			}
			if prop.Spread {
				m, ok := v.(*value.Map)
				if !ok {
					return nil, ErrUnrepresentable
				}
				for _, k := range m.Keys() {
					item, _ := m.Get(k)
					out.Set(k, item)
				}
				continue
			}
			if prop.Init != nil {
				return nil, ErrUnrepresentable
			}
			key, err := propertyKey(prop.Name)
			if err != nil {
				return nil, err
			}
			out.Set(key, v)
		}
		return out, nil
	case *js.TemplateExpr:
		if n.Tag != nil {
			break
		}
		var b strings.Builder
		for _, part := range n.List {
			b.WriteString(templateSegment(part.Value))
			v, err := evalExpr(part.Expr)
			if err != nil {
				return nil, err
			}
			s, err := toText(v)
			if err != nil {
				return nil, err
			}
			b.WriteString(s)
		}
		b.WriteString(templateSegment(n.Tail))
		return b.String(), nil
	}
	return nil, ErrUnrepresentable
}

func literalValue(n *js.LiteralExpr) (any, error) {
	switch n.TokenType {
	case js.StringToken:
		return unquote(n.Data), nil
	case js.TrueToken:
		return true, nil
	case js.FalseToken:
		return false, nil
	case js.NullToken:
		return nil, nil
	}
	if js.IsNumeric(n.TokenType) {
		if f, ok := parseNumber(n.TokenType, n.Data); ok {
			return f, nil
		}
	}
	return nil, ErrUnrepresentable
}

// propertyKey resolves an object key to its string form.
func propertyKey(name *js.PropertyName) (string, error) {
	if name == nil {
		return "", ErrUnrepresentable
	}
	if name.IsComputed() {
		v, err := evalExpr(name.Computed)
		if err != nil {
			return "", err
		}
		return toText(v)
	}
	lit := name.Literal
	switch {
	case lit.TokenType == js.StringToken:
		return unquote(lit.Data), nil
	case js.IsNumeric(lit.TokenType):
		if f, ok := parseNumber(lit.TokenType, lit.Data); ok {
			return value.FormatNumber(f), nil
		}
		return string(lit.Data), nil
	}
	return string(lit.Data), nil
}

func add(x, y any) (any, error) {
	xf, xNum := x.(float64)
	yf, yNum := y.(float64)
	if xNum && yNum {
		return xf + yf, nil
	}
	_, xStr := x.(string)
	_, yStr := y.(string)
	if !xStr && !yStr {
		return nil, ErrUnrepresentable
	}
	xs, err := toText(x)
	if err != nil {
		return nil, err
	}
	ys, err := toText(y)
	if err != nil {
		return nil, err
	}
	return xs + ys, nil
}

// toText converts a scalar the way string concatenation would.
func toText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return value.FormatNumber(x), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case nil:
		return "null", nil
	}
	return "", ErrUnrepresentable
}
