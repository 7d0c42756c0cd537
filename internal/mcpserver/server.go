// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes kiln tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/fileservice"
	"github.com/starford/kiln/internal/index"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

const contractURI = "kiln://region-markers"

// Server wraps the MCP server with kiln tools.
type Server struct {
	mcp *server.MCPServer
	svc *fileservice.Service
}

// New creates a new MCP server with all kiln tools registered.
func New(svc *fileservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Kiln",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List site files with their kind and whether they lack region markers."),
		mcp.WithString("kind", mcp.Description("Optional filter: component or content")),
		mcp.WithBoolean("legacy", mcp.Description("Only list components missing region markers")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("search_files",
		mcp.WithDescription("Full-text search through file content, titles and prop names."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchFiles)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the raw content of a site file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the site root (e.g. components/Card.astro)")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("create_file",
		mcp.WithDescription("Create a new site file. Components should follow the region "+
			"marker contract; read it via get_region_contract or the "+contractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the site root")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full file content")),
	), s.createFile)

	s.mcp.AddTool(mcp.NewTool("parse_file",
		mcp.WithDescription("Parse a file into its preamble or frontmatter values and body. "+
			"Returns the model, a trace of non-fatal findings and the checksum."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the site root")),
	), s.parseFile)

	s.mcp.AddTool(mcp.NewTool("update_values",
		mcp.WithDescription("Replace the values of a file. Keys left out are removed; "+
			"the body and untouched declarations are kept byte for byte."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the site root")),
		mcp.WithString("values", mcp.Required(), mcp.Description("Complete values as a JSON object")),
		mcp.WithString("if_match", mcp.Description("Checksum from parse_file; the update fails if the file changed")),
	), s.updateValues)

	s.mcp.AddTool(mcp.NewTool("markerize_file",
		mcp.WithDescription("Insert missing region markers into a legacy component. "+
			"Without apply it only returns the report and a unified diff."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Component path relative to the site root")),
		mcp.WithBoolean("apply", mcp.Description("Write the result to disk")),
	), s.markerizeFile)

	s.mcp.AddTool(mcp.NewTool("get_used_by",
		mcp.WithDescription("Find all files that import or link to the specified file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the file to find users for")),
	), s.getUsedBy)

	s.mcp.AddTool(mcp.NewTool("get_region_contract",
		mcp.WithDescription("Returns the region marker contract. "+
			"Call this before editing components to keep their markers intact."),
	), s.getRegionContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Region Marker Contract",
			mcp.WithResourceDescription("Region markers an editable component must carry."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns a service error into a tool error message.
func toolError(err error, path string) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError(fmt.Sprintf("file already exists: %s", path))
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("checksum mismatch: %s changed since it was read", path))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := index.ListQuery{Kind: models.FileKind(req.GetString("kind", "")), Limit: 1000}
	if args := req.GetArguments(); args["legacy"] != nil {
		legacy := req.GetBool("legacy", false)
		q.Legacy = &legacy
	}
	items, _, err := s.svc.ListFiles(ctx, q)
	if err != nil {
		return toolError(err, ""), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no files found"), nil
	}
	lines := make([]string, 0, len(items))
	for _, m := range items {
		line := m.Path + "\t" + string(m.Kind)
		if m.Legacy {
			line += "\tlegacy"
		}
		lines = append(lines, line)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) searchFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.GetFile(ctx, path)
	if err != nil {
		return toolError(err, path), nil
	}
	return mcp.NewToolResultText(f.Content), nil
}

func (s *Server) createFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.CreateFile(ctx, path, []byte(content))
	if err != nil {
		return toolError(err, path), nil
	}
	msg := fmt.Sprintf("created: %s", path)
	if f.Legacy {
		msg += fmt.Sprintf(" (missing regions: %s)", strings.Join(f.Missing, ", "))
	}
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) parseFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parsed, err := s.svc.ParseFile(ctx, path)
	if err != nil {
		return toolError(err, path), nil
	}
	return jsonResult(parsed)
}

func (s *Server) updateValues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("values")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	values := value.NewMap()
	if err := values.UnmarshalJSON([]byte(raw)); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("values must be a JSON object: %v", err)), nil
	}
	res, err := s.svc.SaveValues(ctx, path, values, req.GetString("if_match", ""))
	if err != nil {
		return toolError(err, path), nil
	}
	return jsonResult(res)
}

func (s *Server) markerizeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var res *fileservice.MarkerizeResult
	if req.GetBool("apply", false) {
		res, err = s.svc.ApplyMarkerize(ctx, path, "")
	} else {
		res, err = s.svc.PreviewMarkerize(ctx, path)
	}
	if err != nil {
		return toolError(err, path), nil
	}
	return jsonResult(res)
}

func (s *Server) getUsedBy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	users, err := s.svc.UsedBy(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(users) == 0 {
		return mcp.NewToolResultText("no users found"), nil
	}
	return mcp.NewToolResultText(strings.Join(users, "\n")), nil
}

func (s *Server) getRegionContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RegionMarkerContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     RegionMarkerContract,
		},
	}, nil
}
