package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/kiln/internal/checksum"
	"github.com/starford/kiln/internal/parser"
	"github.com/starford/kiln/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

const reconcileDelay = 200 * time.Millisecond

// Watcher keeps the index in step with the site directory.
type Watcher struct {
	db     FileIndex
	store  storage.Provider
	parser *parser.Parser
	root   string
	log    *slog.Logger
	cb     EventCallback
}

// NewWatcher returns a Watcher for the site at root. cb may be nil.
func NewWatcher(db FileIndex, store storage.Provider, p *parser.Parser, root string, logger *slog.Logger, cb EventCallback) *Watcher {
	return &Watcher{db: db, store: store, parser: p, root: root, log: logger, cb: cb}
}

// Run processes file change events until ctx is cancelled.
//
// Directories created at runtime are watched too. Renames and new
// directories schedule a debounced reconcile against the disk.
func (wt *Watcher) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, wt.root); err != nil {
		return err
	}

	wt.log.Info("watcher: started", slog.String("root", wt.root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			wt.log.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			wt.reconcile()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			wt.handle(w, ev, scheduleReconcile)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			wt.log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (wt *Watcher) handle(w *fsnotify.Watcher, ev fsnotify.Event, scheduleReconcile func()) {
	absPath := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if skipDir(filepath.Base(absPath)) {
				return
			}
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				wt.log.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			}
			// Files may land in the directory before it is watched.
			scheduleReconcile()
			return
		}
	}

	if !wt.store.Tracked(absPath) {
		return
	}
	rel, relErr := filepath.Rel(wt.root, absPath)
	if relErr != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		data, readErr := wt.store.Read(rel)
		if readErr != nil {
			wt.log.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
			return
		}
		// Writes made through the edit service are indexed before the
		// event arrives.
		if cs, _ := wt.db.GetChecksum(rel); cs != "" && cs == checksum.Sum(data) {
			return
		}
		if idxErr := IndexFile(wt.db, wt.parser, rel, data); idxErr != nil {
			wt.log.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
			return
		}
		kind := "updated"
		if ev.Op&fsnotify.Create != 0 {
			kind = "created"
		}
		wt.log.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
		wt.emit(kind, rel)

	case ev.Op&fsnotify.Remove != 0:
		if delErr := wt.db.Delete(rel); delErr != nil {
			wt.log.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
			return
		}
		wt.log.Debug("watcher: deleted", slog.String("path", rel))
		wt.emit("deleted", rel)

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports Rename on the old path only; the new name
		// arrives as a Create if it stays inside a watched directory.
		if delErr := wt.db.Delete(rel); delErr != nil {
			wt.log.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
		} else {
			wt.log.Debug("watcher: rename old deleted", slog.String("path", rel))
			wt.emit("deleted", rel)
		}
		scheduleReconcile()
	}
}

func (wt *Watcher) emit(kind, path string) {
	if wt.cb != nil {
		wt.cb(kind, path)
	}
}

func (wt *Watcher) reconcile() {
	if err := reconcile(wt.db, wt.store, wt.parser, wt.log, wt.emit); err != nil {
		wt.log.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
	}
}

// addDirsRecursive adds root and its subdirectories to the watcher,
// skipping hidden directories and node_modules.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}
