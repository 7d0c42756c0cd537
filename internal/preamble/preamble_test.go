package preamble

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

func mapOf(kv ...any) *value.Map {
	m := value.NewMap()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i].(string), kv[i+1])
	}
	return m
}

func TestParse_Literals(t *testing.T) {
	text := "---\n" +
		"export const title = \"Hi\";\n" +
		"export const n = -2.5, big = 1e3;\n" +
		"export let list = [1, 'a', true, null];\n" +
		"export const obj = { a: 1, \"b-c\": { d: [] } };\n" +
		"const local = 'skipped';\n" +
		"---\n<h1>{title}</h1>\n"

	m, trace := NewParser().Parse(text)

	require.Empty(t, trace.Error)
	assert.Equal(t, models.RawPreamble, m.RawType)
	assert.Equal(t, []string{"title", "n", "big", "list", "obj"}, m.PreambleValues.Keys())

	want := mapOf(
		"title", "Hi",
		"n", -2.5,
		"big", 1000.0,
		"list", []any{1.0, "a", true, nil},
		"obj", mapOf("a", 1.0, "b-c", mapOf("d", []any{})),
	)
	assert.True(t, value.Equal(want, m.PreambleValues), "got %s", value.ToSource(m.PreambleValues, 0))
	assert.Equal(t, "<h1>{title}</h1>\n", m.Body)
	assert.Equal(t, m.Body, m.BodyOriginal)
}

func TestParse_Interpreted(t *testing.T) {
	text := "---\nexport const s = 'a' + 'b' + 1;\nexport const arr = [...[1, 2], 3];\nexport const o = { ...{ x: 1 }, y: (2) };\nexport const u = undefined;\n---\n"

	m, trace := NewParser().Parse(text)

	assert.Empty(t, trace.Unrepresentable)
	want := mapOf(
		"s", "ab1",
		"arr", []any{1.0, 2.0, 3.0},
		"o", mapOf("x", 1.0, "y", 2.0),
		"u", nil,
	)
	assert.True(t, value.Equal(want, m.PreambleValues), "got %s", value.ToSource(m.PreambleValues, 0))
}

func TestParse_NoPreamble(t *testing.T) {
	m, trace := NewParser().Parse("<p>plain</p>\n")

	assert.Equal(t, models.RawPlain, m.RawType)
	assert.Equal(t, 0, m.PreambleValues.Len())
	assert.Equal(t, "<p>plain</p>\n", m.Body)
	assert.NotEmpty(t, trace.Notes)
}

func TestParse_SyntaxError(t *testing.T) {
	text := "---\nexport const = ;\n---\n<p>body</p>\n"

	m, trace := NewParser().Parse(text)

	assert.NotEmpty(t, trace.Error)
	assert.Equal(t, models.RawPreambleError, m.RawType)
	assert.Equal(t, 0, m.PreambleValues.Len())
	assert.True(t, strings.HasPrefix(m.Body, "<!-- preamble could not be parsed: "))
	assert.True(t, strings.HasSuffix(m.Body, text))
	assert.Equal(t, "<p>body</p>\n", m.BodyOriginal)
}

func TestParse_Unrepresentable(t *testing.T) {
	text := "---\nexport const now = Date.now();\nexport const cfg = { ok: true, fn: load() };\n---\n"

	m, trace := NewParser().Parse(text)

	assert.Empty(t, trace.Error)
	assert.Equal(t, []string{"now", "cfg.fn"}, trace.Unrepresentable)
	v, ok := m.PreambleValues.Get("now")
	assert.True(t, ok)
	assert.Nil(t, v)
	cfg, _ := m.PreambleValues.Get("cfg")
	assert.True(t, value.Equal(mapOf("ok", true, "fn", nil), cfg))
}

func TestParse_TemplateDropsInterpolation(t *testing.T) {
	text := "---\nexport const s = `hello ${name}!`;\nexport const plain = `line\nbreak`;\n---\n"

	m, trace := NewParser().Parse(text)

	s, _ := m.PreambleValues.Get("s")
	assert.Equal(t, "hello !", s)
	plain, _ := m.PreambleValues.Get("plain")
	assert.Equal(t, "line\nbreak", plain)
	assert.Equal(t, []string{"s${0}"}, trace.Dropped)
}

func TestParse_Imports(t *testing.T) {
	text := "---\nimport Header from './Header.astro';\nimport { a } from \"../lib/a.js\";\nexport const x = 1;\n---\n"
	assert.Equal(t, []string{"./Header.astro", "../lib/a.js"}, NewParser().Imports(text))
	assert.Nil(t, NewParser().Imports("---\nimport { from;\n---\n"))
}

func TestAssemble_RoundTrip(t *testing.T) {
	values := mapOf(
		"title", "It's \"quoted\"",
		"multi", "a\nb ${x}",
		"fenced", "intro\n---\noutro\n---",
		"deep", []any{"x\n---  \ny"},
		"count", 42.0,
		"ratio", 0.5,
		"flag", false,
		"none", nil,
		"items", []any{"x", mapOf("y", []any{})},
		"nested", mapOf("weird key", 1.0, "ok", mapOf()),
	)
	body := "<main>\n  {title}\n</main>\n"

	text := Assemble(values, body)
	m, trace := NewParser().Parse(text)

	require.Empty(t, trace.Error)
	assert.True(t, value.Equal(values, m.PreambleValues), "text:\n%s", text)
	assert.Equal(t, values.Keys(), m.PreambleValues.Keys())
	assert.Equal(t, body, m.Body)
}

func TestAssemble_Empty(t *testing.T) {
	assert.Equal(t, "---\n---\n<p/>\n", Assemble(value.NewMap(), "<p/>\n"))
}

const spliceFixture = `---
import X from './X.astro';
// keep me
export const title = "Old";
export const count = 3;
const local = 1;
---
<p>{title}</p>
`

func TestSplice_ChangesOnlyEditedDeclaration(t *testing.T) {
	res, err := NewParser().Splice(spliceFixture, mapOf("title", "New", "count", 3.0))

	require.NoError(t, err)
	assert.False(t, res.Lossy)
	assert.Equal(t, []string{"title"}, res.Changed)
	assert.Equal(t, strings.Replace(spliceFixture, `export const title = "Old";`, `export const title = 'New';`, 1), res.Text)
}

func TestSplice_RemoveAndAdd(t *testing.T) {
	res, err := NewParser().Splice(spliceFixture, mapOf("title", "Old", "extra", true))

	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, res.Removed)
	assert.Equal(t, []string{"extra"}, res.Added)
	assert.NotContains(t, res.Text, "count")
	assert.Contains(t, res.Text, "const local = 1;\nexport const extra = true;\n---\n<p>{title}</p>\n")
}

func TestSplice_NoChangeKeepsText(t *testing.T) {
	p := NewParser()
	m, _ := p.Parse(spliceFixture)

	res, err := p.Splice(spliceFixture, m.PreambleValues)

	require.NoError(t, err)
	assert.Equal(t, spliceFixture, res.Text)
}

func TestSplice_KeepsUnrepresentable(t *testing.T) {
	text := "---\nexport const when = Date.now();\nexport const n = 1;\n---\n"
	p := NewParser()
	m, _ := p.Parse(text)
	m.PreambleValues.Set("n", 2.0)

	res, err := p.Splice(text, m.PreambleValues)

	require.NoError(t, err)
	assert.Equal(t, "---\nexport const when = Date.now();\nexport const n = 2;\n---\n", res.Text)
}

func TestSplice_BrokenPreamble(t *testing.T) {
	_, err := NewParser().Splice("---\nexport const = ;\n---\n", mapOf("a", 1.0))
	assert.ErrorIs(t, err, ErrBrokenPreamble)
}

func TestSplice_RefusesValuesThatDoNotRoundTrip(t *testing.T) {
	p := NewParser()
	_, err := p.Splice("---\nexport const a = 1;\n---\n<p/>\n", mapOf("a", math.Inf(1)))
	assert.ErrorIs(t, err, ErrRoundTrip)

	_, err = p.Splice("<p/>\n", mapOf("nan", math.NaN()))
	assert.ErrorIs(t, err, ErrRoundTrip)
}

func TestSplice_DelimiterLineInString(t *testing.T) {
	text := "---\n// keep me\nexport const notes = 'x';\n---\n<p/>\n"
	res, err := NewParser().Splice(text, mapOf("notes", "intro\n---\noutro"))

	require.NoError(t, err)
	assert.False(t, res.Lossy)
	assert.Contains(t, res.Text, "// keep me\n")
	m, trace := NewParser().Parse(res.Text)
	require.Empty(t, trace.Error)
	got, _ := m.PreambleValues.Get("notes")
	assert.Equal(t, "intro\n---\noutro", got)
}

func TestSplice_PlainFile(t *testing.T) {
	res, err := NewParser().Splice("<p/>\n", mapOf("a", 1.0))

	require.NoError(t, err)
	assert.Equal(t, "---\nexport const a = 1;\n---\n<p/>\n", res.Text)
}

func TestSplice_MultilineStatement(t *testing.T) {
	text := "---\nexport const items = [\n  1,\n  2\n]\nexport const other = 'x'\n---\n"

	res, err := NewParser().Splice(text, mapOf("items", []any{1.0}, "other", "x"))

	require.NoError(t, err)
	assert.False(t, res.Lossy)
	assert.Equal(t, "---\nexport const items = [\n  1\n];\nexport const other = 'x'\n---\n", res.Text)
}

func TestValidName(t *testing.T) {
	for name, want := range map[string]bool{
		"title":  true,
		"_x$":    true,
		"class":  false,
		"let":    false,
		"1abc":   false,
		"a-b":    false,
		"":       false,
		"await":  false,
		"a b":    false,
		"export": false,
	} {
		assert.Equal(t, want, ValidName(name), name)
	}
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "title", Identifier("title"))
	assert.Equal(t, "a_b", Identifier("a-b"))
	assert.Equal(t, "_1abc", Identifier("1abc"))
	assert.Equal(t, "_class", Identifier("class"))

	// distinct keys may share a sanitized form
	assert.Equal(t, Identifier("a-b"), Identifier("a b"))
	assert.False(t, ValidName("a-b"))
	assert.False(t, ValidName("a b"))
}
