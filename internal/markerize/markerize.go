// Package markerize retrofits region markers into legacy component files.
//
// The injector only inserts comments and re-indents the spans it wraps; it
// never removes user text. Each pass is a no-op when its marker is already
// present, so running it on its own output changes nothing.
package markerize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/kiln/internal/fence"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

// DefaultPropsSource is the expression component props are destructured from.
const DefaultPropsSource = "Astro.props"

var (
	headOpenRe     = regexp.MustCompile(`<head(?:\s[^>]*)?>`)
	headCloseRe    = regexp.MustCompile(`</head\s*>`)
	bodyOpenRe     = regexp.MustCompile(`<body(?:\s[^>]*)?>`)
	bodyCloseRe    = regexp.MustCompile(`</body\s*>`)
	slotRe         = regexp.MustCompile(`(?s)<slot\b[^>]*?/>|<slot\b[^>]*>.*?</slot\s*>`)
	slotNameRe     = regexp.MustCompile(`^<slot\b[^>]*\sname\s*=`)
	contentStartRe = regexp.MustCompile(`<!--\s*region\s+name="content"[^>]*-->`)
	importStartRe  = regexp.MustCompile(`^\s*import(?:\s|\{|\*|'|")`)
)

// Injector inserts region markers. It is safe for concurrent use.
type Injector struct {
	propsSource string
	propsTail   *regexp.Regexp
}

// Option configures an Injector.
type Option func(*Injector)

// WithPropsSource sets the expression props are destructured from.
func WithPropsSource(src string) Option {
	return func(in *Injector) {
		if src != "" {
			in.propsSource = src
		}
	}
}

// New returns an Injector.
func New(opts ...Option) *Injector {
	in := &Injector{propsSource: DefaultPropsSource}
	for _, opt := range opts {
		opt(in)
	}
	in.propsTail = regexp.MustCompile(`^\s*=\s*` + regexp.QuoteMeta(in.propsSource) +
		`\b(?:\s+as\s+[A-Za-z_$][\w$.]*)?\s*;?`)
	return in
}

// Markerize runs the default Injector over text.
func Markerize(text string) (string, models.MarkerizeReport) {
	return New().Markerize(text)
}

// Markerize inserts every missing region marker into text and reports what
// it did. Passes that cannot find their anchor add a warning and leave the
// text alone; later passes still run.
func (in *Injector) Markerize(text string) (string, models.MarkerizeReport) {
	rep := models.MarkerizeReport{Warnings: []string{}}
	warn := func(format string, args ...any) {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf(format, args...))
	}

	if missing := missingStructure(markupOf(text)); len(missing) > 0 {
		warn("document is missing %s; inserting markers best-effort", strings.Join(missing, ", "))
	}

	text, rep.Added.Imports = in.wrapImports(text, warn)
	text, rep.Added.Props = in.insertProps(text, warn)
	text, rep.Added.Head = in.wrapHead(text, warn)
	text, rep.Added.ContentSlot = in.wrapSlot(text, warn)
	text, rep.Added.PreContent, rep.Added.PostContent = in.wrapAroundSlot(text, warn)

	rep.Changed = rep.Added.Any()
	return text, rep
}

type warnFunc func(format string, args ...any)

// markupOffset returns where the markup starts: after the preamble, or at 0.
func markupOffset(text string) int {
	if f, ok := fence.Locate(text); ok {
		return f.CloseEnd
	}
	return 0
}

func markupOf(text string) string {
	return text[markupOffset(text):]
}

func (in *Injector) wrapImports(text string, warn warnFunc) (string, bool) {
	f, ok := fence.Locate(text)
	if !ok {
		warn("no preamble found; imports region skipped")
		return text, false
	}
	pre := f.Inner(text)
	if hasRegion(pre, RegionImports) {
		return text, false
	}
	start, end, ok := importRun(pre)
	if !ok {
		warn("no import statements found in the preamble")
		return text, false
	}
	indent := lineIndent(pre, start)
	run := pre[start:end]
	if !strings.HasSuffix(run, "\n") {
		run += "\n"
	}
	wrapped := pre[:start] + indent + preambleStart(RegionImports) + "\n" +
		run + indent + preambleEnd + "\n" + pre[end:]
	return text[:f.OpenEnd] + wrapped + text[f.CloseStart:], true
}

func (in *Injector) insertProps(text string, warn warnFunc) (string, bool) {
	f, ok := fence.Locate(text)
	if !ok {
		warn("no preamble found; created one holding an empty props region")
		return fence.Delimiter + "\n" + propsRegion("", value.NewMap()) + fence.Delimiter + "\n" + text, true
	}
	pre := f.Inner(text)
	if hasRegion(pre, RegionProps) {
		return text, false
	}

	props := value.NewMap()
	at, indent := len(pre), ""
	if d, found := findDestructure(pre, in.propsTail); found {
		props = inferProps(d.pattern)
		at = lineEnd(pre, d.end)
		indent = lineIndent(pre, d.start)
	} else {
		warn("no destructuring of %s found; inserted an empty props region", in.propsSource)
	}

	head := pre[:at]
	if head != "" && !strings.HasSuffix(head, "\n") {
		head += "\n"
	}
	newPre := head + propsRegion(indent, props) + pre[at:]
	return text[:f.OpenEnd] + newPre + text[f.CloseStart:], true
}

func propsRegion(indent string, props *value.Map) string {
	data, err := props.MarshalJSON()
	if err != nil {
		data = []byte("{}")
	}
	doc := strings.ReplaceAll(string(data), "*/", `*\/`)
	return indent + preambleStart(RegionProps) + "\n" +
		indent + "/* " + doc + " */\n" +
		indent + preambleEnd + "\n"
}

func (in *Injector) wrapHead(text string, warn warnFunc) (string, bool) {
	ms := markupOffset(text)
	markup := text[ms:]
	open := headOpenRe.FindStringIndex(markup)
	if open == nil {
		warn("no <head> element found; head region skipped")
		return text, false
	}
	closing := headCloseRe.FindStringIndex(markup[open[1]:])
	if closing == nil {
		warn("<head> element is not closed; head region skipped")
		return text, false
	}
	innerStart := ms + open[1]
	innerEnd := innerStart + closing[0]
	inner := text[innerStart:innerEnd]
	if hasRegion(inner, RegionHead) {
		return text, false
	}

	headIndent := lineIndent(text, ms+open[0])
	child := detectIndent(inner, headIndent+"  ")
	var b strings.Builder
	b.WriteString("\n" + child + markupStart(RegionHead, false) + "\n")
	if body := reindent(inner, child, false); body != "" {
		b.WriteString(body + "\n")
	}
	b.WriteString(child + markupEnd + "\n" + headIndent)
	return text[:innerStart] + b.String() + text[innerEnd:], true
}

func (in *Injector) wrapSlot(text string, warn warnFunc) (string, bool) {
	ms := markupOffset(text)
	markup := text[ms:]
	if hasRegion(markup, RegionContent) {
		return text, false
	}
	locs := slotRe.FindAllStringIndex(markup, -1)
	if len(locs) == 0 {
		warn("no <slot> element found; content region not created")
		return text, false
	}
	// The default slot receives page content, so it wins over an earlier
	// named slot; a file with only named slots uses its first one.
	loc := locs[0]
	for _, l := range locs {
		if !slotNameRe.MatchString(markup[l[0]:l[1]]) {
			loc = l
			break
		}
	}
	pos, end := ms+loc[0], ms+loc[1]
	start := markupStart(RegionContent, true)
	if ownsLine(text, pos, end) {
		indent := lineIndent(text, pos)
		return text[:pos] + start + "\n" + indent + text[pos:end] + "\n" + indent + markupEnd + text[end:], true
	}
	return text[:pos] + start + text[pos:end] + markupEnd + text[end:], true
}

func (in *Injector) wrapAroundSlot(text string, warn warnFunc) (string, bool, bool) {
	ms := markupOffset(text)
	markup := text[ms:]
	open := bodyOpenRe.FindStringIndex(markup)
	if open == nil {
		warn("no <body> element found; pre/post-content regions skipped")
		return text, false, false
	}
	closing := bodyCloseRe.FindStringIndex(markup[open[1]:])
	if closing == nil {
		warn("<body> element is not closed; pre/post-content regions skipped")
		return text, false, false
	}
	innerStart := ms + open[1]
	innerEnd := innerStart + closing[0]
	inner := text[innerStart:innerEnd]

	cs := contentStartRe.FindStringIndex(inner)
	if cs == nil {
		warn("no content region inside <body>; pre/post-content regions skipped")
		return text, false, false
	}
	ce := markupEndRe.FindStringIndex(inner[cs[1]:])
	if ce == nil {
		warn("content region is not closed; pre/post-content regions skipped")
		return text, false, false
	}
	blockStart := innerStart + cs[0]
	blockEnd := innerStart + cs[1] + ce[1]
	indent := lineIndent(text, blockStart)
	if ls := lineStart(text, blockStart); ls >= innerStart && strings.TrimSpace(text[ls:blockStart]) == "" {
		blockStart = ls
	}
	if le := lineEnd(text, blockEnd); le <= innerEnd && strings.TrimSpace(text[blockEnd:le]) == "" {
		blockEnd = le
	}

	before, after := text[innerStart:blockStart], text[blockEnd:innerEnd]
	newBefore, newAfter := before, after
	addedPre, addedPost := false, false

	if strings.TrimSpace(before) != "" && !hasRegion(before, RegionPreContent) {
		newBefore = "\n" + indent + markupStart(RegionPreContent, false) + "\n" +
			reindent(before, indent, false) + "\n" +
			indent + markupEnd + "\n"
		if blockStart > 0 && text[blockStart-1] != '\n' {
			newBefore += indent
		}
		addedPre = true
	}
	if strings.TrimSpace(after) != "" && !hasRegion(after, RegionPostContent) {
		closeIndent := ""
		if ls := lineStart(text, innerEnd); ls >= blockEnd && strings.TrimSpace(text[ls:innerEnd]) == "" {
			closeIndent = text[ls:innerEnd]
		}
		atLineStart := blockEnd == 0 || text[blockEnd-1] == '\n'
		lead := ""
		if !atLineStart {
			lead = "\n"
		}
		newAfter = lead + indent + markupStart(RegionPostContent, false) + "\n" +
			reindent(after, indent, atLineStart) + "\n" +
			indent + markupEnd + "\n" + closeIndent
		addedPost = true
	}
	if !addedPre && !addedPost {
		return text, false, false
	}
	return text[:innerStart] + newBefore + text[blockStart:blockEnd] + newAfter + text[innerEnd:], addedPre, addedPost
}
