package markerize

import (
	"regexp"
	"sort"

	"github.com/starford/kiln/internal/fence"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

// Region names.
const (
	RegionImports     = "imports"
	RegionProps       = "props"
	RegionHead        = "head"
	RegionContent     = "content"
	RegionPreContent  = "pre-content"
	RegionPostContent = "post-content"
)

// Required lists the regions an editable file carries, in insertion order.
var Required = []string{
	RegionImports, RegionProps, RegionHead, RegionContent, RegionPreContent, RegionPostContent,
}

const (
	preambleEnd = "// /region"
	markupEnd   = "<!-- /region -->"
)

func preambleStart(name string) string {
	return `// region name="` + name + `"`
}

func markupStart(name string, single bool) string {
	if single {
		return `<!-- region name="` + name + `" single -->`
	}
	return `<!-- region name="` + name + `" -->`
}

var (
	anyStartRe      = regexp.MustCompile(`region\s+name="([^"]+)"`)
	preambleStartRe = regexp.MustCompile(`(?m)^[ \t]*//[ \t]*region[ \t]+name="([^"]+)"([ \t]+single)?[ \t]*\r?$`)
	preambleEndRe   = regexp.MustCompile(`(?m)^[ \t]*//[ \t]*/region[ \t]*\r?$`)
	markupStartRe   = regexp.MustCompile(`<!--\s*region\s+name="([^"]+)"(\s+single)?\s*-->`)
	markupEndRe     = regexp.MustCompile(`<!--\s*/region\s*-->`)
	propsCommentRe  = regexp.MustCompile(`(?s)/\*\s*(.*?)\s*\*/`)
)

// hasRegion reports whether text carries a start marker for name, in either
// comment form.
func hasRegion(text, name string) bool {
	for _, m := range anyStartRe.FindAllStringSubmatch(text, -1) {
		if m[1] == name {
			return true
		}
	}
	return false
}

// Regions lists the marker pairs found in text: preamble regions first,
// then markup regions, each in document order. Unterminated starts are
// skipped.
func Regions(text string) []models.Region {
	f, ok := fence.Locate(text)
	markup := text
	var out []models.Region
	if ok {
		out = append(out, pairRegions(f.Inner(text), "preamble", preambleStartRe, preambleEndRe)...)
		markup = f.Rest(text)
	}
	return append(out, pairRegions(markup, "markup", markupStartRe, markupEndRe)...)
}

// Missing returns the required regions text lacks.
func Missing(text string) []string {
	have := make(map[string]bool)
	for _, r := range Regions(text) {
		have[r.Name] = true
	}
	var out []string
	for _, name := range Required {
		if !have[name] {
			out = append(out, name)
		}
	}
	return out
}

type marker struct {
	start, end int
	name       string
	single     bool
	open       bool
}

func pairRegions(text, context string, startRe, endRe *regexp.Regexp) []models.Region {
	var marks []marker
	for _, m := range startRe.FindAllStringSubmatchIndex(text, -1) {
		marks = append(marks, marker{
			start:  m[0],
			end:    m[1],
			name:   text[m[2]:m[3]],
			single: m[4] >= 0,
			open:   true,
		})
	}
	for _, m := range endRe.FindAllStringIndex(text, -1) {
		marks = append(marks, marker{start: m[0], end: m[1]})
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].start < marks[j].start })

	type found struct {
		at     int
		region models.Region
	}
	var (
		stack []marker
		pairs []found
	)
	for _, mk := range marks {
		if mk.open {
			stack = append(stack, mk)
			continue
		}
		if len(stack) == 0 {
			continue
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		pairs = append(pairs, found{at: top.start, region: models.Region{
			Name:    top.name,
			Context: context,
			Single:  top.single,
			Inner:   trimMarkerLines(text[top.end:mk.start]),
		}})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].at < pairs[j].at })
	out := make([]models.Region, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.region)
	}
	return out
}

// trimMarkerLines drops the line break after a start marker and the
// indentation before an end marker.
func trimMarkerLines(inner string) string {
	if len(inner) > 0 && inner[0] == '\r' {
		inner = inner[1:]
	}
	if len(inner) > 0 && inner[0] == '\n' {
		inner = inner[1:]
	}
	i := len(inner)
	for i > 0 && (inner[i-1] == ' ' || inner[i-1] == '\t') {
		i--
	}
	return inner[:i]
}

// ReadProps decodes the JSON schema held in a props region. It returns nil
// when the file has no props region or the region does not hold valid JSON.
// The `*\/` escape written by the injector is a plain JSON escape.
func ReadProps(text string) *value.Map {
	for _, r := range Regions(text) {
		if r.Name != RegionProps || r.Context != "preamble" {
			continue
		}
		m := propsCommentRe.FindStringSubmatch(r.Inner)
		if m == nil {
			return nil
		}
		props := value.NewMap()
		if err := props.UnmarshalJSON([]byte(m[1])); err != nil {
			return nil
		}
		return props
	}
	return nil
}
