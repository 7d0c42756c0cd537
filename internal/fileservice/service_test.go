package fileservice

import (
	"context"
	"math"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/checksum"
	"github.com/starford/kiln/internal/format"
	"github.com/starford/kiln/internal/index"
	"github.com/starford/kiln/internal/markerize"
	"github.com/starford/kiln/internal/parser"
	"github.com/starford/kiln/internal/preamble"
	"github.com/starford/kiln/internal/storage"
	"github.com/starford/kiln/internal/value"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishFileEvent(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+path)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

func newService(t *testing.T) (*Service, storage.Provider, *recorder) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	f, err := os.CreateTemp("", "kiln-svc-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	db, err := index.Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pp := preamble.NewParser()
	formats := format.NewDispatcher(pp)
	rec := &recorder{}
	svc := NewService(Deps{
		Store:     store,
		Index:     db,
		Formats:   formats,
		Parser:    parser.New(formats, pp),
		Injector:  markerize.New(),
		Publisher: rec,
	})
	return svc, store, rec
}

const card = `---
import Icon from './Icon.astro';
// shown in the card header
export const title = 'Card';
export const count = 3;
---
<div>{title}</div>
`

func TestCreateGetAndUsedBy(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()

	_, err := svc.CreateFile(ctx, "components/Icon.astro", []byte("<svg/>\n"))
	require.NoError(t, err)
	detail, err := svc.CreateFile(ctx, "components/Card.astro", []byte(card))
	require.NoError(t, err)
	assert.Equal(t, "Card", detail.Title)
	assert.True(t, detail.Legacy)
	assert.Equal(t, "created:components/Card.astro", rec.last())

	users, err := svc.UsedBy(ctx, "components/Icon.astro")
	require.NoError(t, err)
	assert.Equal(t, []string{"components/Card.astro"}, users)

	_, err = svc.CreateFile(ctx, "components/Card.astro", []byte(card))
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	_, err = svc.CreateFile(ctx, "notes.txt", []byte("x"))
	assert.ErrorIs(t, err, apperr.ErrUnprocessable)
}

func TestUpdateFileChecksumConflict(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateFile(ctx, "a.md", []byte("# A\n"))

	_, err := svc.UpdateFile(ctx, "a.md", []byte("# B\n"), "stale")
	require.ErrorIs(t, err, apperr.ErrConflict)
	detail, err := svc.UpdateFile(ctx, "a.md", []byte("# B\n"), checksum.Sum([]byte("# A\n")))
	require.NoError(t, err)
	assert.Equal(t, "B", detail.Title)
}

func TestSaveValuesKeepsCommentsAndBody(t *testing.T) {
	svc, store, rec := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateFile(ctx, "Card.astro", []byte(card))

	parsed, err := svc.ParseFile(ctx, "Card.astro")
	require.NoError(t, err)
	values := parsed.Model.PreambleValues
	values.Set("count", 4.0)

	res, err := svc.SaveValues(ctx, "Card.astro", values, parsed.Checksum)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Lossy)
	data, _ := store.Read("Card.astro")
	text := string(data)
	assert.Contains(t, text, "// shown in the card header", "comment lost")
	assert.Contains(t, text, "export const count = 4;")
	assert.Regexp(t, `---\n<div>\{title\}</div>\n$`, text, "body changed")
	assert.Equal(t, "updated:Card.astro", rec.last())
}

func TestSaveValuesRejectsInvalidNames(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateFile(ctx, "Card.astro", []byte(card))

	values := value.NewMap()
	values.Set("not valid", "x")
	_, err := svc.SaveValues(ctx, "Card.astro", values, "")
	assert.ErrorIs(t, err, apperr.ErrUnprocessable)
}

func TestSaveValuesRefusesBrokenPreamble(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateFile(ctx, "Broken.astro", []byte("---\nexport const = ;\n---\n<p/>\n"))

	parsed, err := svc.ParseFile(ctx, "Broken.astro")
	require.NoError(t, err)
	assert.False(t, parsed.Editable, "broken preamble reported as editable")
	_, err = svc.SaveValues(ctx, "Broken.astro", value.NewMap(), "")
	assert.ErrorIs(t, err, apperr.ErrUnprocessable)
}

func TestSaveValuesMultilineWithDelimiterLine(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateFile(ctx, "Card.astro", []byte(card))

	parsed, _ := svc.ParseFile(ctx, "Card.astro")
	values := parsed.Model.PreambleValues
	values.Set("notes", "intro\n---\noutro")
	res, err := svc.SaveValues(ctx, "Card.astro", values, parsed.Checksum)
	require.NoError(t, err)

	again, err := svc.ParseFile(ctx, "Card.astro")
	require.NoError(t, err)
	require.Empty(t, again.Trace.Error, "saved file does not parse")
	require.True(t, again.Editable)
	got, _ := again.Model.PreambleValues.Get("notes")
	assert.Equal(t, "intro\n---\noutro", got)
	_, err = svc.SaveValues(ctx, "Card.astro", again.Model.PreambleValues, res.Checksum)
	assert.NoError(t, err, "second save")
}

func TestSaveValuesLeavesFileWhenRewriteFails(t *testing.T) {
	svc, store, rec := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateFile(ctx, "Card.astro", []byte(card))
	before, _ := store.Read("Card.astro")

	values := value.NewMap()
	values.Set("title", "Card")
	values.Set("ratio", math.Inf(1))
	_, err := svc.SaveValues(ctx, "Card.astro", values, "")
	require.ErrorIs(t, err, apperr.ErrUnprocessable)
	require.ErrorIs(t, err, preamble.ErrRoundTrip)

	after, _ := store.Read("Card.astro")
	assert.Equal(t, string(before), string(after), "file changed")
	assert.NotEqual(t, "updated:Card.astro", rec.last(), "update event published for a refused save")
}

func TestSaveValuesFrontmatter(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateFile(ctx, "post.md", []byte("---\ntitle: Old\n---\nBody\n"))

	values := value.NewMap()
	values.Set("title", "New")
	values.Set("draft", true)
	_, err := svc.SaveValues(ctx, "post.md", values, "")
	require.NoError(t, err)
	data, _ := store.Read("post.md")
	assert.Equal(t, "---\ntitle: New\ndraft: true\n---\nBody\n", string(data))
}

func TestMarkerizePreviewAndApply(t *testing.T) {
	svc, store, rec := newService(t)
	ctx := context.Background()
	src := "---\nconst { title = 'x' } = Astro.props;\n---\n<html><head><title>{title}</title></head><body><slot /></body></html>\n"
	_, _ = svc.CreateFile(ctx, "Base.astro", []byte(src))

	preview, err := svc.PreviewMarkerize(ctx, "Base.astro")
	require.NoError(t, err)
	assert.True(t, preview.Report.Changed)
	assert.False(t, preview.Applied)
	assert.Regexp(t, `^--- a/Base\.astro\n\+\+\+ b/Base\.astro\n`, preview.Diff)
	data, _ := store.Read("Base.astro")
	assert.Equal(t, src, string(data), "preview wrote the file")

	applied, err := svc.ApplyMarkerize(ctx, "Base.astro", preview.Checksum)
	require.NoError(t, err)
	assert.True(t, applied.Applied)
	assert.Equal(t, "markerized:Base.astro", rec.last())

	again, err := svc.ApplyMarkerize(ctx, "Base.astro", "")
	require.NoError(t, err)
	assert.False(t, again.Report.Changed, "second run not idempotent")
	assert.False(t, again.Applied)
	assert.Empty(t, again.Diff)
}

func TestMarkerizeRejectsContentFiles(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateFile(ctx, "a.md", []byte("# A\n"))
	_, err := svc.PreviewMarkerize(ctx, "a.md")
	assert.ErrorIs(t, err, apperr.ErrUnprocessable)
}

func TestDeleteFile(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateFile(ctx, "a.md", []byte("# A\n"))

	require.NoError(t, svc.DeleteFile(ctx, "a.md", ""))
	assert.Equal(t, "deleted:a.md", rec.last())
	_, err := svc.GetFile(ctx, "a.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	items, total, _ := svc.ListFiles(ctx, index.ListQuery{})
	assert.Zero(t, total)
	assert.Empty(t, items, "index still lists files")
}
