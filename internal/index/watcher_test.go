package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/format"
	"github.com/starford/kiln/internal/parser"
	"github.com/starford/kiln/internal/preamble"
	"github.com/starford/kiln/internal/storage"
)

const (
	waitFor = 5 * time.Second
	tick    = 50 * time.Millisecond
)

type watcherEnv struct {
	root   string
	store  storage.Provider
	db     *DB
	parser *parser.Parser
	logger *slog.Logger
}

func newWatcherEnv(t *testing.T) *watcherEnv {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	require.NoError(t, err)
	pp := preamble.NewParser()
	return &watcherEnv{
		root:   root,
		store:  store,
		db:     testDB(t),
		parser: parser.New(format.NewDispatcher(pp), pp),
		logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
}

func (e *watcherEnv) start(t *testing.T, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go NewWatcher(e.db, e.store, e.parser, e.root, e.logger, cb).Run(ctx)
	time.Sleep(100 * time.Millisecond)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, path string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+path)
	r.mu.Unlock()
}

func (r *recorder) saw(event string) func() bool {
	return func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return slices.Contains(r.events, event)
	}
}

func indexed(db *DB, path string) func() bool {
	return func() bool {
		cs, _ := db.GetChecksum(path)
		return cs != ""
	}
}

func TestSync_IndexesAndRemovesStale(t *testing.T) {
	e := newWatcherEnv(t)
	_ = os.WriteFile(filepath.Join(e.root, "Card.astro"), []byte("---\nexport const title = 'Card';\n---\n<div/>\n"), 0o644)
	_ = e.db.Upsert(component("gone.astro", "x", false), "", nil)

	require.NoError(t, Sync(e.db, e.store, e.parser, e.logger))
	f, err := e.db.GetFile("Card.astro")
	require.NoError(t, err)
	assert.Equal(t, "Card", f.Title)
	assert.True(t, f.Legacy)
	assert.False(t, indexed(e.db, "gone.astro")(), "stale entry survived sync")
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	e := newWatcherEnv(t)
	rec := &recorder{}
	e.start(t, rec.record)

	_ = os.WriteFile(filepath.Join(e.root, "New.astro"), []byte("<p>new</p>\n"), 0o644)

	assert.Eventually(t, indexed(e.db, "New.astro"), waitFor, tick, "new file not indexed by watcher")
	assert.Eventually(t, rec.saw("created:New.astro"), 2*time.Second, tick)
}

func TestWatcher_IgnoresUntrackedFiles(t *testing.T) {
	e := newWatcherEnv(t)
	e.start(t, nil)

	_ = os.WriteFile(filepath.Join(e.root, "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(e.root, "after.md"), []byte("# After"), 0o644)

	assert.Eventually(t, indexed(e.db, "after.md"), waitFor, tick, "tracked file not indexed")
	assert.False(t, indexed(e.db, "notes.txt")(), "untracked file was indexed")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	e := newWatcherEnv(t)
	e.start(t, nil)

	subDir := filepath.Join(e.root, "components")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "Deep.astro"), []byte("<p/>"), 0o644)

	assert.Eventually(t, indexed(e.db, "components/Deep.astro"), waitFor, tick,
		"file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	e := newWatcherEnv(t)
	_ = os.WriteFile(filepath.Join(e.root, "Del.astro"), []byte("<p/>"), 0o644)
	_ = Sync(e.db, e.store, e.parser, e.logger)
	require.True(t, indexed(e.db, "Del.astro")(), "precondition: file should be indexed")

	e.start(t, nil)
	_ = os.Remove(filepath.Join(e.root, "Del.astro"))

	assert.Eventually(t, func() bool { return !indexed(e.db, "Del.astro")() }, waitFor, tick,
		"deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	e := newWatcherEnv(t)
	_ = os.WriteFile(filepath.Join(e.root, "Old.astro"), []byte("<p/>"), 0o644)
	_ = Sync(e.db, e.store, e.parser, e.logger)

	e.start(t, nil)
	_ = os.Rename(filepath.Join(e.root, "Old.astro"), filepath.Join(e.root, "Renamed.astro"))

	assert.Eventually(t, func() bool {
		return !indexed(e.db, "Old.astro")() && indexed(e.db, "Renamed.astro")()
	}, waitFor, tick, "old path should be removed and new path indexed")
}

func TestWatcher_DirMovedInIsIndexed(t *testing.T) {
	e := newWatcherEnv(t)
	outside := filepath.Join(t.TempDir(), "blocks")
	_ = os.MkdirAll(outside, 0o755)
	_ = os.WriteFile(filepath.Join(outside, "Hero.astro"), []byte("<p/>"), 0o644)

	rec := &recorder{}
	e.start(t, rec.record)
	if err := os.Rename(outside, filepath.Join(e.root, "blocks")); err != nil {
		t.Skipf("cross-directory rename unavailable: %v", err)
	}

	assert.Eventually(t, indexed(e.db, "blocks/Hero.astro"), waitFor, tick,
		"file inside moved-in directory not indexed")
	assert.Eventually(t, rec.saw("created:blocks/Hero.astro"), 2*time.Second, tick)
}
