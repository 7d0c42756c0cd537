package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

// FileRow represents a row in the files table.
type FileRow struct {
	Path      string
	Kind      models.FileKind
	Title     string
	Checksum  string
	Legacy    bool
	Missing   []string
	Regions   []models.Region
	Props     *value.Map
	Error     string
	UpdatedAt time.Time
}

// Metadata returns the list view of f.
func (f FileRow) Metadata() models.FileMetadata {
	return models.FileMetadata{
		Path:      f.Path,
		Kind:      f.Kind,
		Title:     f.Title,
		Legacy:    f.Legacy,
		Checksum:  f.Checksum,
		UpdatedAt: f.UpdatedAt,
	}
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string          `json:"path"`
	Kind    models.FileKind `json:"kind"`
	Title   string          `json:"title"`
	Snippet string          `json:"snippet"`
}

// GraphNode is one indexed file in the import graph.
type GraphNode struct {
	Path   string
	Title  string
	Kind   models.FileKind
	Legacy bool
}

// GraphLink is one edge of the import graph.
type GraphLink struct {
	Source string
	Target string
	Type   string
}

// ListQuery selects and orders files for List.
type ListQuery struct {
	Kind   models.FileKind // empty for all kinds
	Legacy *bool           // nil for both
	Sort   string          // path (default), title, updated
	Limit  int
	Offset int
}

// edgeType names the edge a file of kind draws to its references.
func edgeType(kind models.FileKind) string {
	if kind == models.KindComponent {
		return "import"
	}
	return "link"
}

// Upsert inserts or replaces a file, its FTS entry and its outgoing
// references within a transaction.
func (db *DB) Upsert(f FileRow, body string, refs []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	missing, _ := json.Marshal(nonNil(f.Missing))
	regions, _ := json.Marshal(nonNilRegions(f.Regions))
	props, err := json.Marshal(f.Props)
	if err != nil {
		return fmt.Errorf("index: encode props: %w", err)
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO files (path, kind, title, checksum, legacy, missing, regions, props, error, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind       = excluded.kind,
			title      = excluded.title,
			checksum   = excluded.checksum,
			legacy     = excluded.legacy,
			missing    = excluded.missing,
			regions    = excluded.regions,
			props      = excluded.props,
			error      = excluded.error,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, f.Path, string(f.Kind), f.Title, f.Checksum, f.Legacy, string(missing), string(regions),
		string(props), f.Error, body, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}

	if err := ftsUpsert(tx, f.Path, f.Kind, f.Title, body, f.Props.Keys()); err != nil {
		return err
	}

	_, _ = tx.Exec(`DELETE FROM imports WHERE source = ?`, f.Path)
	if len(refs) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO imports (source, target, type) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare import insert: %w", err)
		}
		defer stmt.Close()
		typ := edgeType(f.Kind)
		for _, target := range refs {
			if _, err := stmt.Exec(f.Path, target, typ); err != nil {
				return fmt.Errorf("index: insert import: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Delete removes a file, its FTS entry and outgoing references.
func (db *DB) Delete(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM imports WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM files WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a file, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

const fileColumns = `path, kind, title, checksum, legacy, missing, regions, props, error, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (FileRow, error) {
	var f FileRow
	var kind, missing, regions, props string
	if err := s.Scan(&f.Path, &kind, &f.Title, &f.Checksum, &f.Legacy, &missing, &regions, &props, &f.Error, &f.UpdatedAt); err != nil {
		return FileRow{}, err
	}
	f.Kind = models.FileKind(kind)
	if err := json.Unmarshal([]byte(missing), &f.Missing); err != nil {
		return FileRow{}, fmt.Errorf("index: decode missing: %w", err)
	}
	if err := json.Unmarshal([]byte(regions), &f.Regions); err != nil {
		return FileRow{}, fmt.Errorf("index: decode regions: %w", err)
	}
	if props != "null" {
		f.Props = value.NewMap()
		if err := f.Props.UnmarshalJSON([]byte(props)); err != nil {
			return FileRow{}, fmt.Errorf("index: decode props: %w", err)
		}
	}
	return f, nil
}

// GetFile returns the indexed row for path.
func (db *DB) GetFile(path string) (*FileRow, error) {
	row := db.conn.QueryRow(`SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: get file %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get file: %w", err)
	}
	return &f, nil
}

// List returns one page of files matching q and the total match count.
func (db *DB) List(q ListQuery) ([]FileRow, int, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	where := ` WHERE 1=1`
	var args []any
	if q.Kind != "" {
		where += ` AND kind = ?`
		args = append(args, string(q.Kind))
	}
	if q.Legacy != nil {
		where += ` AND legacy = ?`
		args = append(args, *q.Legacy)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM files`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count files: %w", err)
	}

	order := ` ORDER BY path`
	switch q.Sort {
	case "title":
		order = ` ORDER BY title COLLATE NOCASE, path`
	case "updated":
		order = ` ORDER BY updated_at DESC, path`
	}

	rows, err := db.conn.Query(`SELECT `+fileColumns+` FROM files`+where+order+` LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list files: %w", err)
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

// AllChecksums returns the stored checksum of every indexed file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// UsedBy returns all file paths that import or link to target.
func (db *DB) UsedBy(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM imports WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: used by: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Graph returns every indexed file and the edges between indexed files.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	rows, err := db.conn.Query(`SELECT path, title, kind, legacy FROM files ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer rows.Close()

	var nodes []GraphNode
	for rows.Next() {
		var (
			n    GraphNode
			kind string
		)
		if err := rows.Scan(&n.Path, &n.Title, &kind, &n.Legacy); err != nil {
			return nil, nil, err
		}
		n.Kind = models.FileKind(kind)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	linkRows, err := db.conn.Query(`
		SELECT i.source, i.target, i.type
		FROM imports i
		JOIN files f ON f.path = i.target
		ORDER BY i.source, i.target
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer linkRows.Close()

	var links []GraphLink
	for linkRows.Next() {
		var l GraphLink
		if err := linkRows.Scan(&l.Source, &l.Target, &l.Type); err != nil {
			return nil, nil, err
		}
		links = append(links, l)
	}
	return nodes, links, linkRows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilRegions(r []models.Region) []models.Region {
	if r == nil {
		return []models.Region{}
	}
	return r
}
