// Package testutil provides shared test helpers for setting up sites,
// databases and the edit service.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/kiln/internal/fileservice"
	"github.com/starford/kiln/internal/format"
	"github.com/starford/kiln/internal/index"
	"github.com/starford/kiln/internal/markerize"
	"github.com/starford/kiln/internal/parser"
	"github.com/starford/kiln/internal/preamble"
	"github.com/starford/kiln/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "kiln-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSite creates a temporary site directory with a storage.Provider.
func TestSite(t *testing.T) (string, storage.Provider) {
	t.Helper()
	siteDir := t.TempDir()
	store, err := storage.NewFS(siteDir)
	if err != nil {
		t.Fatal(err)
	}
	return siteDir, store
}

// TestService wires a file service over a fresh site and database.
func TestService(t *testing.T) (*fileservice.Service, storage.Provider) {
	t.Helper()
	_, store := TestSite(t)
	pp := preamble.NewParser()
	formats := format.NewDispatcher(pp)
	svc := fileservice.NewService(fileservice.Deps{
		Store:    store,
		Index:    TestDB(t),
		Formats:  formats,
		Parser:   parser.New(formats, pp),
		Injector: markerize.New(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return svc, store
}
