package index

import (
	"log/slog"

	"github.com/starford/kiln/internal/checksum"
	"github.com/starford/kiln/internal/parser"
	"github.com/starford/kiln/internal/storage"
)

// Sync brings the index in line with the site on disk.
func Sync(db FileIndex, store storage.Provider, p *parser.Parser, logger *slog.Logger) error {
	return reconcile(db, store, p, logger, nil)
}

// reconcile indexes files whose checksum differs from the index, drops
// entries whose file is gone, and reports each change to emit.
func reconcile(db FileIndex, store storage.Provider, p *parser.Parser, logger *slog.Logger, emit EventCallback) error {
	indexed, err := db.AllChecksums()
	if err != nil {
		return err
	}
	metas, err := store.List("")
	if err != nil {
		return err
	}
	if emit == nil {
		emit = func(string, string) {}
	}

	for _, m := range metas {
		old, known := indexed[m.Path]
		delete(indexed, m.Path)
		if known && old == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("reconcile: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, p, m.Path, data); err != nil {
			logger.Warn("reconcile: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("reconcile: indexed", slog.String("path", m.Path))
		if known {
			emit("updated", m.Path)
		} else {
			emit("created", m.Path)
		}
	}

	// Whatever is left has no file on disk.
	for path := range indexed {
		if err := db.Delete(path); err != nil {
			logger.Warn("reconcile: delete failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("reconcile: removed stale", slog.String("path", path))
		emit("deleted", path)
	}
	return nil
}

// IndexFile summarizes data and upserts it into db.
func IndexFile(db FileIndex, p *parser.Parser, path string, data []byte) error {
	res := p.Parse(path, data)
	row := FileRow{
		Path:     path,
		Kind:     res.Kind,
		Title:    res.Title,
		Checksum: checksum.Sum(data),
		Legacy:   res.Legacy(),
		Missing:  res.Missing,
		Regions:  res.Regions,
		Props:    res.Props,
		Error:    res.Error,
	}
	return db.Upsert(row, res.Body, res.Refs)
}
