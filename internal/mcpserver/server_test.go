package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/fileservice"
	"github.com/starford/kiln/internal/storage"
	"github.com/starford/kiln/internal/testutil"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()
	svc, store := testutil.TestService(t)
	return New(svc, "test"), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_files":          srv.listFiles,
		"search_files":        srv.searchFiles,
		"read_file":           srv.readFile,
		"create_file":         srv.createFile,
		"parse_file":          srv.parseFile,
		"update_values":       srv.updateValues,
		"markerize_file":      srv.markerizeFile,
		"get_used_by":         srv.getUsedBy,
		"get_region_contract": srv.getRegionContract,
	}
	h, ok := handlers[name]
	require.True(t, ok, "unknown tool: %s", name)
	result, err := h(context.Background(), req)
	require.NoError(t, err, "tool %s", name)
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

const legacyPage = `---
import Nav from './Nav.astro';
const { title = "Home" } = Astro.props;
---
<!DOCTYPE html>
<html>
  <head>
    <title>{title}</title>
  </head>
  <body>
    <Nav />
    <slot />
    <footer>end</footer>
  </body>
</html>
`

func TestCreateAndReadFile(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_file", map[string]any{
		"path":    "notes.md",
		"content": "# Notes\nHello",
	})
	assert.Equal(t, "created: notes.md", resultText(r))

	r = callTool(t, srv, "read_file", map[string]any{"path": "notes.md"})
	assert.Equal(t, "# Notes\nHello", resultText(r))
}

func TestCreateLegacyReportsMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_file", map[string]any{"path": "Page.astro", "content": legacyPage})
	assert.Contains(t, resultText(r), "missing regions: imports")
}

func TestCreateDuplicate(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("a.md", []byte("a"))

	r := callTool(t, srv, "create_file", map[string]any{"path": "a.md", "content": "b"})
	assert.True(t, r.IsError, "expected error for existing file")
}

func TestReadFileMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_file", map[string]any{"path": "nope.md"})
	assert.True(t, r.IsError, "expected error for missing file")
}

func TestListFiles(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_file", map[string]any{"path": "a.md", "content": "a"})
	callTool(t, srv, "create_file", map[string]any{"path": "Page.astro", "content": legacyPage})

	text := resultText(callTool(t, srv, "list_files", map[string]any{}))
	assert.Contains(t, text, "a.md\tcontent")
	assert.Contains(t, text, "Page.astro\tcomponent\tlegacy")

	text = resultText(callTool(t, srv, "list_files", map[string]any{"legacy": true}))
	assert.Equal(t, "Page.astro\tcomponent\tlegacy", text)
}

func TestParseAndUpdateValues(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_file", map[string]any{
		"path":    "Hero.astro",
		"content": "---\nexport const heading = 'Hi';\n---\n<h1>{heading}</h1>\n",
	})

	var parsed fileservice.ParsedFile
	r := callTool(t, srv, "parse_file", map[string]any{"path": "Hero.astro"})
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &parsed))
	v, _ := parsed.Model.PreambleValues.Get("heading")
	require.Equal(t, "Hi", v)

	r = callTool(t, srv, "update_values", map[string]any{
		"path":     "Hero.astro",
		"values":   `{"heading": "Hello"}`,
		"if_match": parsed.Checksum,
	})
	require.False(t, r.IsError, "update error: %s", resultText(r))

	text := resultText(callTool(t, srv, "read_file", map[string]any{"path": "Hero.astro"}))
	assert.Equal(t, "---\nexport const heading = 'Hello';\n---\n<h1>{heading}</h1>\n", text)

	r = callTool(t, srv, "update_values", map[string]any{
		"path":     "Hero.astro",
		"values":   `{"heading": "Again"}`,
		"if_match": parsed.Checksum,
	})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "checksum mismatch")
}

func TestUpdateValuesRejectsNonObject(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_file", map[string]any{"path": "A.astro", "content": "---\n---\n"})

	r := callTool(t, srv, "update_values", map[string]any{"path": "A.astro", "values": `[1]`})
	assert.True(t, r.IsError, "expected error for non-object values")
}

func TestMarkerizeFile(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_file", map[string]any{"path": "Page.astro", "content": legacyPage})

	var preview fileservice.MarkerizeResult
	r := callTool(t, srv, "markerize_file", map[string]any{"path": "Page.astro"})
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &preview))
	require.False(t, preview.Applied)
	require.True(t, preview.Report.Added.ContentSlot)
	require.NotEmpty(t, preview.Diff)
	text := resultText(callTool(t, srv, "read_file", map[string]any{"path": "Page.astro"}))
	assert.Equal(t, legacyPage, text, "preview must not write")

	var applied fileservice.MarkerizeResult
	r = callTool(t, srv, "markerize_file", map[string]any{"path": "Page.astro", "apply": true})
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &applied))
	require.True(t, applied.Applied)

	text = resultText(callTool(t, srv, "list_files", map[string]any{"legacy": true}))
	assert.Equal(t, "no files found", text)
}

func TestGetUsedBy(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_file", map[string]any{"path": "Nav.astro", "content": "<nav/>\n"})
	callTool(t, srv, "create_file", map[string]any{"path": "Page.astro", "content": legacyPage})

	r := callTool(t, srv, "get_used_by", map[string]any{"path": "Nav.astro"})
	assert.Equal(t, "Page.astro", resultText(r))

	r = callTool(t, srv, "get_used_by", map[string]any{"path": "Page.astro"})
	assert.Equal(t, "no users found", resultText(r))
}

func TestSearchFiles(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_file", map[string]any{"path": "a.md", "content": "# Alpha\nzebra crossing"})

	text := resultText(callTool(t, srv, "search_files", map[string]any{"query": "zebra"}))
	assert.Contains(t, text, `"a.md"`)
}

func TestRegionContract(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_region_contract", nil))
	for _, name := range []string{"imports", "props", "head", "content", "pre-content", "post-content"} {
		assert.Contains(t, text, `region name="`+name+`"`)
	}

	contents, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	assert.Len(t, contents, 1)
}
