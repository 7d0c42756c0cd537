package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kiln/internal/fileservice"
	"github.com/starford/kiln/internal/index"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/preamble"
	"github.com/starford/kiln/internal/value"
)

// Handler holds API route handlers.
type Handler struct {
	svc *fileservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *fileservice.Service) *Handler {
	return &Handler{svc: svc}
}

// filePath extracts the site path from the wildcard part of the URL.
// Encoded slashes (components%2FCard.astro) are accepted.
func filePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func requirePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := filePath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return "", false
	}
	return p, true
}

func setETag(w http.ResponseWriter, sum string) {
	w.Header().Set("ETag", `"`+sum+`"`)
}

// ListFiles handles GET /api/files.
//
//	@Summary		List indexed files
//	@Tags			files
//	@Produce		json
//	@Param			kind	query		string	false	"component or content"
//	@Param			legacy	query		bool	false	"Only files with (true) or without (false) missing markers"
//	@Param			sort	query		string	false	"Sort field"	Enums(path, title, updated)
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	FileListResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lq := index.ListQuery{
		Kind: models.FileKind(q.Get("kind")),
		Sort: q.Get("sort"),
	}
	lq.Limit, _ = strconv.Atoi(q.Get("limit"))
	lq.Offset, _ = strconv.Atoi(q.Get("offset"))
	if v := q.Get("legacy"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("legacy must be a boolean"))
			return
		}
		lq.Legacy = &b
	}

	items, total, err := h.svc.ListFiles(r.Context(), lq)
	if err != nil {
		writeError(w, err, "list files", "")
		return
	}
	if items == nil {
		items = []models.FileMetadata{}
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: items, Total: total})
}

// GetFile handles GET /api/files/*.
//
//	@Summary		Get a file with its region coverage and users
//	@Tags			files
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	FileDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	f, err := h.svc.GetFile(r.Context(), path)
	if err != nil {
		writeError(w, err, "get file", path)
		return
	}
	setETag(w, f.Checksum)
	writeJSON(w, http.StatusOK, f)
}

// CreateFile handles POST /api/files.
//
//	@Summary		Create a new file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFileRequest	true	"File to create"
//	@Success		201		{object}	FileDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	f, err := h.svc.CreateFile(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, err, "create file", req.Path)
		return
	}
	setETag(w, f.Checksum)
	writeJSON(w, http.StatusCreated, f)
}

// UpdateFile handles PUT /api/files/*.
//
//	@Summary		Replace the raw content of a file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"File path"
//	@Param			If-Match	header	string				false	"Checksum for optimistic concurrency"
//	@Param			body		body	UpdateFileRequest	true	"New content"
//	@Success		200		{object}	FileDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [put]
func (h *Handler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req UpdateFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f, err := h.svc.UpdateFile(r.Context(), path, []byte(req.Content), r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, err, "update file", path)
		return
	}
	setETag(w, f.Checksum)
	writeJSON(w, http.StatusOK, f)
}

// DeleteFile handles DELETE /api/files/*.
//
//	@Summary		Delete a file
//	@Tags			files
//	@Param			path		path	string	true	"File path"
//	@Param			If-Match	header	string	false	"Checksum for optimistic concurrency"
//	@Success		204		"File deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteFile(r.Context(), path, r.Header.Get("If-Match")); err != nil {
		writeError(w, err, "delete file", path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetValues handles GET /api/values/*.
//
//	@Summary		Parse a file into editable values and body
//	@Tags			values
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	ParsedFile
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/values/{path} [get]
func (h *Handler) GetValues(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	parsed, err := h.svc.ParseFile(r.Context(), path)
	if err != nil {
		writeError(w, err, "parse file", path)
		return
	}
	setETag(w, parsed.Checksum)
	writeJSON(w, http.StatusOK, parsed)
}

// SaveValues handles PUT /api/values/*.
//
//	@Summary		Write edited values back into a file
//	@Tags			values
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"File path"
//	@Param			If-Match	header	string				false	"Checksum for optimistic concurrency"
//	@Param			body		body	SaveValuesRequest	true	"Complete set of values"
//	@Success		200		{object}	SaveResult
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/values/{path} [put]
func (h *Handler) SaveValues(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req SaveValuesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Values == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("values is required"))
		return
	}
	res, err := h.svc.SaveValues(r.Context(), path, req.Values, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, err, "save values", path)
		return
	}
	setETag(w, res.Checksum)
	writeJSON(w, http.StatusOK, res)
}

// PreviewMarkerize handles GET /api/markerize/*.
//
//	@Summary		Preview the region markers markerize would insert
//	@Tags			markerize
//	@Produce		json
//	@Param			path	path		string	true	"Component path"
//	@Success		200		{object}	MarkerizeResult
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/markerize/{path} [get]
func (h *Handler) PreviewMarkerize(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	res, err := h.svc.PreviewMarkerize(r.Context(), path)
	if err != nil {
		writeError(w, err, "preview markerize", path)
		return
	}
	setETag(w, res.Checksum)
	writeJSON(w, http.StatusOK, res)
}

// ApplyMarkerize handles POST /api/markerize/*.
//
//	@Summary		Insert missing region markers into a component
//	@Tags			markerize
//	@Produce		json
//	@Param			path		path	string	true	"Component path"
//	@Param			If-Match	header	string	false	"Checksum for optimistic concurrency"
//	@Success		200		{object}	MarkerizeResult
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/markerize/{path} [post]
func (h *Handler) ApplyMarkerize(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ApplyMarkerize(r.Context(), path, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, err, "apply markerize", path)
		return
	}
	setETag(w, res.Checksum)
	writeJSON(w, http.StatusOK, res)
}

// CodecParse handles POST /api/codec/parse.
//
//	@Summary		Parse text without storing it
//	@Tags			codec
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CodecParseRequest	true	"Text and the path that selects its codec"
//	@Success		200		{object}	CodecParseResponse
//	@Security		BearerAuth
//	@Router			/codec/parse [post]
func (h *Handler) CodecParse(w http.ResponseWriter, r *http.Request) {
	var req CodecParseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		req.Path = "inline.astro"
	}
	model, trace := h.svc.ParseText(req.Path, req.Text)
	writeJSON(w, http.StatusOK, CodecParseResponse{Model: model, Trace: trace})
}

// CodecAssemble handles POST /api/codec/assemble.
//
//	@Summary		Render values and a body as a component file
//	@Tags			codec
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CodecAssembleRequest	true	"Values and body"
//	@Success		200		{object}	CodecTextResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/codec/assemble [post]
func (h *Handler) CodecAssemble(w http.ResponseWriter, r *http.Request) {
	var req CodecAssembleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Values == nil {
		req.Values = value.NewMap()
	}
	for _, k := range req.Values.Keys() {
		if !preamble.ValidName(k) {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("invalid value name "+strconv.Quote(k)))
			return
		}
	}
	writeJSON(w, http.StatusOK, CodecTextResponse{Text: preamble.Assemble(req.Values, req.Body)})
}

// CodecMarkerize handles POST /api/codec/markerize.
//
//	@Summary		Insert region markers into text without storing it
//	@Tags			codec
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CodecMarkerizeRequest	true	"Component text"
//	@Success		200		{object}	CodecMarkerizeResponse
//	@Security		BearerAuth
//	@Router			/codec/markerize [post]
func (h *Handler) CodecMarkerize(w http.ResponseWriter, r *http.Request) {
	var req CodecMarkerizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	text, report := h.svc.MarkerizeText(req.Text)
	diff, err := fileservice.UnifiedDiff("inline.astro", req.Text, text)
	if err != nil {
		writeError(w, err, "codec markerize", "")
		return
	}
	writeJSON(w, http.StatusOK, CodecMarkerizeResponse{Text: text, Report: report, Diff: diff})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across site files
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, err, "search", q)
		return
	}
	out := make([]SearchResult, len(results))
	for i, res := range results {
		out[i] = SearchResult{Path: res.Path, Title: res.Title, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: out})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the import graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, err, "graph", "")
		return
	}
	resp := GraphResponse{Nodes: make([]GraphNode, len(nodes)), Links: make([]GraphLink, len(links))}
	for i, n := range nodes {
		resp.Nodes[i] = GraphNode{ID: n.Path, Title: n.Title, Kind: string(n.Kind), Legacy: n.Legacy}
	}
	for i, l := range links {
		resp.Links[i] = GraphLink{Source: l.Source, Target: l.Target, Type: l.Type}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Regions handles GET /api/regions/*.
func (h *Handler) Regions(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	regions, missing, err := h.svc.Regions(r.Context(), path)
	if err != nil {
		writeError(w, err, "regions", path)
		return
	}
	writeJSON(w, http.StatusOK, RegionsResponse{Path: path, Regions: regions, Missing: missing})
}

// UsedBy handles GET /api/used-by/*.
//
//	@Summary		List the files that import or link to a file
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Target path"
//	@Success		200		{object}	UsedByResponse
//	@Security		BearerAuth
//	@Router			/used-by/{path} [get]
func (h *Handler) UsedBy(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	users, err := h.svc.UsedBy(r.Context(), path)
	if err != nil {
		writeError(w, err, "used by", path)
		return
	}
	writeJSON(w, http.StatusOK, UsedByResponse{Path: path, UsedBy: users})
}
