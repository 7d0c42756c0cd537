//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/kiln/internal/models"
)

// Without FTS5 the files table itself is scanned.
func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _ string, _ models.FileKind, _, _ string, _ []string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

// Search requires every term of query to appear in the path, title, body or
// prop names of a file. Files whose title holds the first term come first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var where []string
	var args []any
	for _, t := range terms {
		where = append(where, `(path LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR props LIKE ? ESCAPE '\')`)
		p := likePattern(t)
		args = append(args, p, p, p, p)
	}
	args = append(args, likePattern(terms[0]), limit)

	rows, err := db.conn.Query(`
		SELECT path, kind, title, substr(body, 1, 200)
		FROM files
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY CASE WHEN title LIKE ? ESCAPE '\' THEN 0 ELSE 1 END, path
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
