package api

import (
	"github.com/starford/kiln/internal/fileservice"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/value"
)

// CreateFileRequest is the request body for creating a file.
type CreateFileRequest struct {
	Path    string `json:"path" example:"components/Card.astro" validate:"required"`
	Content string `json:"content" example:"<div>card</div>"`
}

// UpdateFileRequest is the request body for replacing a file.
type UpdateFileRequest struct {
	Content string `json:"content" example:"<div>card</div>"`
}

// SaveValuesRequest carries the complete set of values of a file. Keys
// missing from values are removed from the file.
type SaveValuesRequest struct {
	Values *value.Map `json:"values" swaggertype:"object" validate:"required"`
}

// CodecParseRequest is the request body for POST /codec/parse.
type CodecParseRequest struct {
	Path string `json:"path,omitempty" example:"inline.astro"`
	Text string `json:"text" validate:"required"`
}

// CodecParseResponse holds the model and trace of a parse.
type CodecParseResponse struct {
	Model models.FileModel `json:"model"`
	Trace models.Trace     `json:"trace"`
}

// CodecAssembleRequest is the request body for POST /codec/assemble.
type CodecAssembleRequest struct {
	Values *value.Map `json:"values" swaggertype:"object"`
	Body   string     `json:"body"`
}

// CodecTextResponse wraps generated file text.
type CodecTextResponse struct {
	Text string `json:"text"`
}

// CodecMarkerizeRequest is the request body for POST /codec/markerize.
type CodecMarkerizeRequest struct {
	Text string `json:"text" validate:"required"`
}

// CodecMarkerizeResponse is the markerized text with its report and diff.
type CodecMarkerizeResponse struct {
	Text   string                 `json:"text"`
	Report models.MarkerizeReport `json:"report"`
	Diff   string                 `json:"diff"`
}

// FileDetail is the full file response type (aliased from the domain layer).
type FileDetail = fileservice.FileDetail

// ParsedFile is the values response type (aliased from the domain layer).
type ParsedFile = fileservice.ParsedFile

// SaveResult is the values edit response type (aliased from the domain layer).
type SaveResult = fileservice.SaveResult

// MarkerizeResult is the markerize response type (aliased from the domain layer).
type MarkerizeResult = fileservice.MarkerizeResult

// FileListResponse wraps paginated file listings.
type FileListResponse struct {
	Files []models.FileMetadata `json:"files" validate:"required"`
	Total int                   `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"components/Card.astro" validate:"required"`
	Title   string `json:"title" example:"Card" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// GraphNode is a node in the import graph.
type GraphNode struct {
	ID     string `json:"id" example:"layouts/Base.astro" validate:"required"`
	Title  string `json:"title,omitempty" example:"Base"`
	Kind   string `json:"kind" example:"component"`
	Legacy bool   `json:"legacy"`
}

// GraphLink is an edge in the import graph.
type GraphLink struct {
	Source string `json:"source" example:"pages/index.astro" validate:"required"`
	Target string `json:"target" example:"layouts/Base.astro" validate:"required"`
	Type   string `json:"type" example:"import"`
}

// GraphResponse wraps the import graph.
type GraphResponse struct {
	Nodes []GraphNode `json:"nodes" validate:"required"`
	Links []GraphLink `json:"links" validate:"required"`
}

// RegionsResponse lists the region markers of a file.
type RegionsResponse struct {
	Path    string          `json:"path"`
	Regions []models.Region `json:"regions"`
	Missing []string        `json:"missing"`
}

// UsedByResponse lists the users of a file.
type UsedByResponse struct {
	Path   string   `json:"path"`
	UsedBy []string `json:"used_by"`
}
