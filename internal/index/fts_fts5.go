//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/kiln/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
			path UNINDEXED,
			kind UNINDEXED,
			title,
			body,
			props,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path string, kind models.FileKind, title, body string, props []string) error {
	if _, err := tx.Exec(`DELETE FROM files_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: clear fts row: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO files_fts (path, kind, title, body, props) VALUES (?, ?, ?, ?, ?)`,
		path, string(kind), title, body, strings.Join(props, " ")); err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM files_fts WHERE path = ?`, path)
}

// Search matches query against titles, bodies and prop names. Title hits
// rank above prop hits, which rank above body hits.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	expr := ftsQuery(query)
	if expr == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := db.conn.Query(`
		SELECT path, kind, title,
		       snippet(files_fts, 3, '<b>', '</b>', '...', 24)
		FROM files_fts
		WHERE files_fts MATCH ?
		ORDER BY bm25(files_fts, 0, 0, 8.0, 1.0, 4.0), path
		LIMIT ?
	`, expr, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
