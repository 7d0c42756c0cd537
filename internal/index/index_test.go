package index

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "kiln-test-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func component(path, cs string, legacy bool) FileRow {
	return FileRow{Path: path, Kind: models.KindComponent, Checksum: cs, Legacy: legacy, UpdatedAt: time.Now()}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM files`).Scan(&count), "files table missing")
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM imports`).Scan(&count), "imports table missing")
}

func TestUpsertAndGetFile(t *testing.T) {
	db := testDB(t)
	props := value.NewMap()
	spec := value.NewMap()
	spec.Set("type", "number")
	spec.Set("default", 1.0)
	props.Set("count", spec)

	row := FileRow{
		Path:     "components/Card.astro",
		Kind:     models.KindComponent,
		Title:    "Card",
		Checksum: "abc123",
		Legacy:   true,
		Missing:  []string{"head"},
		Regions:  []models.Region{{Name: "props", Context: "preamble"}},
		Props:    props,
	}
	require.NoError(t, db.Upsert(row, "<div/>", []string{"components/Icon.astro"}))

	got, err := db.GetFile("components/Card.astro")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Checksum)
	assert.Equal(t, "Card", got.Title)
	assert.True(t, got.Legacy)
	assert.Equal(t, []string{"head"}, got.Missing)
	require.Len(t, got.Regions, 1)
	assert.Equal(t, "props", got.Regions[0].Name)
	assert.True(t, value.Equal(got.Props, props), "props = %v", got.Props)
	assert.False(t, got.UpdatedAt.IsZero(), "updated_at not set")
}

func TestGetFile_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetFile("missing.astro")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUsedBy(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(component("a.astro", "1", false), "", []string{"b.astro"})
	_ = db.Upsert(component("c.astro", "2", false), "", []string{"b.astro"})

	users, err := db.UsedBy("b.astro")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.astro", "c.astro"}, users)
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(component("del.astro", "x", false), "", []string{"target.astro"})

	require.NoError(t, db.Delete("del.astro"))
	cs, _ := db.GetChecksum("del.astro")
	assert.Empty(t, cs, "deleted file still has a checksum")
	users, _ := db.UsedBy("target.astro")
	assert.Empty(t, users)
}

func TestUpsertReplacesImports(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(component("up.astro", "1", false), "", []string{"x.astro"})
	_ = db.Upsert(component("up.astro", "2", false), "", []string{"y.astro"})

	cs, _ := db.GetChecksum("up.astro")
	assert.Equal(t, "2", cs)
	users, _ := db.UsedBy("x.astro")
	assert.Empty(t, users, "old import should be removed on upsert")
	users, _ = db.UsedBy("y.astro")
	assert.Len(t, users, 1, "new import should exist")
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.astro")
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestListFiltersAndPaging(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(component("b.astro", "1", true), "", nil)
	_ = db.Upsert(component("a.astro", "2", false), "", nil)
	_ = db.Upsert(FileRow{Path: "post.md", Kind: models.KindContent, Checksum: "3"}, "", nil)

	rows, total, err := db.List(ListQuery{})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, rows, 3)
	assert.Equal(t, "a.astro", rows[0].Path)

	legacy := true
	rows, total, _ = db.List(ListQuery{Kind: models.KindComponent, Legacy: &legacy})
	require.Equal(t, 1, total)
	assert.Equal(t, "b.astro", rows[0].Path)

	rows, total, _ = db.List(ListQuery{Limit: 1, Offset: 1})
	assert.Equal(t, 3, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "b.astro", rows[0].Path)
}

func TestGraph(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(component("layouts/Base.astro", "1", false), "", []string{"components/Header.astro", "missing.astro"})
	_ = db.Upsert(component("components/Header.astro", "2", false), "", nil)
	_ = db.Upsert(FileRow{Path: "index.md", Kind: models.KindContent, Checksum: "3"}, "", []string{"layouts/Base.astro"})

	nodes, links, err := db.Graph()
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
	require.Len(t, links, 2, "only edges between indexed files")
	for _, l := range links {
		switch l.Source {
		case "index.md":
			assert.Equal(t, "link", l.Type)
		case "layouts/Base.astro":
			assert.Equal(t, "import", l.Type)
		}
	}
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(component("a.astro", "1", false), "", nil)
	_ = db.Upsert(component("b.astro", "2", false), "", nil)

	all, err := db.AllChecksums()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.astro": "1", "b.astro": "2"}, all)
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	row := component("s.astro", "1", false)
	row.Title = "Search Me"
	_ = db.Upsert(row, "uniqueword appears here", nil)

	results, err := db.Search("uniqueword", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s.astro", results[0].Path)
}

func TestSearch_AllTermsMustMatch(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(component("a.astro", "1", false), "red apple pie", nil)
	_ = db.Upsert(component("b.astro", "1", false), "red cherry tart", nil)

	results, err := db.Search("red apple", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.astro", results[0].Path)
	assert.Equal(t, models.KindComponent, results[0].Kind)
}

func TestSearch_OperatorsAreLiteral(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(component("a.astro", "1", false), "plain words only", nil)

	for _, q := range []string{"", "   ", `"`, "*", "%"} {
		results, err := db.Search(q, 10)
		assert.NoError(t, err, "Search(%q)", q)
		assert.Empty(t, results, "Search(%q)", q)
	}
}

func TestOpen_ResetsOutdatedSchema(t *testing.T) {
	path := tempDBPath(t)

	db, err := Open(path)
	require.NoError(t, err)
	_ = db.Upsert(component("old.astro", "1", false), "", nil)
	_, err = db.conn.Exec(`PRAGMA user_version = 1`)
	require.NoError(t, err)
	db.Close()

	db, err = Open(path)
	require.NoError(t, err, "reopen")
	defer db.Close()
	var count int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM files`).Scan(&count))
	assert.Zero(t, count, "files survive a schema reset")
	var version int
	_ = db.conn.QueryRow(`PRAGMA user_version`).Scan(&version)
	assert.Equal(t, schemaVersion, version)
}
