// Package fileservice coordinates storage, the codecs and the index for
// every editing operation exposed over HTTP, MCP and the CLI.
package fileservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/checksum"
	"github.com/starford/kiln/internal/format"
	"github.com/starford/kiln/internal/index"
	"github.com/starford/kiln/internal/markerize"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/parser"
	"github.com/starford/kiln/internal/preamble"
	"github.com/starford/kiln/internal/storage"
	"github.com/starford/kiln/internal/value"
)

// Event kinds passed to a Publisher.
const (
	EventCreated    = "created"
	EventUpdated    = "updated"
	EventDeleted    = "deleted"
	EventMarkerized = "markerized"
)

// Publisher receives file change notifications.
type Publisher interface {
	PublishFileEvent(kind, path string)
}

// FileDetail is the full representation of a site file.
type FileDetail struct {
	Path      string          `json:"path"`
	Kind      models.FileKind `json:"kind"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Checksum  string          `json:"checksum"`
	Legacy    bool            `json:"legacy"`
	Missing   []string        `json:"missing"`
	Regions   []models.Region `json:"regions"`
	UsedBy    []string        `json:"used_by"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ParsedFile is the editable model of a file.
type ParsedFile struct {
	Path     string           `json:"path"`
	Kind     models.FileKind  `json:"kind"`
	Checksum string           `json:"checksum"`
	Model    models.FileModel `json:"model"`
	Trace    models.Trace     `json:"trace"`
	// Editable is false when values cannot be written back.
	Editable bool `json:"editable"`
}

// SaveResult describes a values edit.
type SaveResult struct {
	Path     string     `json:"path"`
	Checksum string     `json:"checksum"`
	Changed  bool       `json:"changed"`
	Lossy    bool       `json:"lossy"`
	Reason   string     `json:"reason,omitempty"`
	Values   *value.Map `json:"values"`
}

// MarkerizeResult is a markerize preview or application.
type MarkerizeResult struct {
	Path     string                 `json:"path"`
	Checksum string                 `json:"checksum"`
	Report   models.MarkerizeReport `json:"report"`
	Diff     string                 `json:"diff"`
	Applied  bool                   `json:"applied"`
}

// Deps are the collaborators of a Service. Publisher and Logger may be nil.
type Deps struct {
	Store     storage.Provider
	Index     index.FileIndex
	Formats   *format.Dispatcher
	Parser    *parser.Parser
	Injector  *markerize.Injector
	Publisher Publisher
	Logger    *slog.Logger
}

// Service coordinates storage and index operations.
type Service struct {
	store    storage.Provider
	db       index.FileIndex
	formats  *format.Dispatcher
	parser   *parser.Parser
	injector *markerize.Injector
	events   Publisher
	log      *slog.Logger
}

// NewService creates a new file service.
func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		db:       d.Index,
		formats:  d.Formats,
		parser:   d.Parser,
		injector: d.Injector,
		events:   d.Publisher,
		log:      d.Logger,
	}
	if s.injector == nil {
		s.injector = markerize.New()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// SetPublisher replaces the change event sink.
func (s *Service) SetPublisher(p Publisher) {
	s.events = p
}

func (s *Service) publish(kind, path string) {
	if s.events != nil {
		s.events.PublishFileEvent(kind, path)
	}
}

// read returns the file content or ErrNotFound.
func (s *Service) read(path string) ([]byte, error) {
	if !s.store.Tracked(path) {
		return nil, fmt.Errorf("%s: %w", path, apperr.ErrNotFound)
	}
	return s.store.Read(path)
}

// checkMatch enforces optimistic concurrency. An empty ifMatch always passes.
func checkMatch(existing []byte, ifMatch string) error {
	if !checksum.Matches(existing, ifMatch) {
		return apperr.ErrConflict
	}
	return nil
}

// GetFile reads a file and enriches it with index data.
func (s *Service) GetFile(_ context.Context, path string) (*FileDetail, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(path, data)
}

// CreateFile writes a new file and indexes it.
func (s *Service) CreateFile(_ context.Context, path string, content []byte) (*FileDetail, error) {
	if !s.store.Tracked(path) {
		return nil, fmt.Errorf("%s: unsupported extension: %w", path, apperr.ErrUnprocessable)
	}
	if s.store.Exists(path) {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.write(path, content); err != nil {
		return nil, err
	}
	s.publish(EventCreated, path)
	return s.buildDetail(path, content)
}

// UpdateFile replaces the raw content of a file.
func (s *Service) UpdateFile(_ context.Context, path string, content []byte, ifMatch string) (*FileDetail, error) {
	existing, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if err := checkMatch(existing, ifMatch); err != nil {
		return nil, err
	}
	if err := s.write(path, content); err != nil {
		return nil, err
	}
	s.publish(EventUpdated, path)
	return s.buildDetail(path, content)
}

// DeleteFile removes a file from storage and index.
func (s *Service) DeleteFile(_ context.Context, path string, ifMatch string) error {
	existing, err := s.read(path)
	if err != nil {
		return err
	}
	if err := checkMatch(existing, ifMatch); err != nil {
		return err
	}
	if err := s.store.Delete(path); err != nil {
		return err
	}
	if err := s.db.Delete(path); err != nil {
		return err
	}
	s.publish(EventDeleted, path)
	return nil
}

// ParseFile returns the editable model of a stored file.
func (s *Service) ParseFile(_ context.Context, path string) (*ParsedFile, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return s.parse(path, data), nil
}

func (s *Service) parse(path string, data []byte) *ParsedFile {
	model, trace := s.formats.Parse(path, string(data))
	return &ParsedFile{
		Path:     path,
		Kind:     s.formats.Kind(path),
		Checksum: checksum.Sum(data),
		Model:    model,
		Trace:    trace,
		Editable: model.RawType != models.RawPreambleError,
	}
}

// SaveValues writes edited values back into the file. Keys of component
// files must be valid identifiers.
func (s *Service) SaveValues(_ context.Context, path string, values *value.Map, ifMatch string) (*SaveResult, error) {
	existing, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if err := checkMatch(existing, ifMatch); err != nil {
		return nil, err
	}
	if values == nil {
		values = value.NewMap()
	}
	if s.formats.IsComponent(path) {
		for _, k := range values.Keys() {
			if !preamble.ValidName(k) {
				return nil, fmt.Errorf("invalid value name %q: %w", k, apperr.ErrUnprocessable)
			}
		}
	}

	res, err := s.formats.Write(path, string(existing), values)
	if err != nil {
		if errors.Is(err, preamble.ErrBrokenPreamble) || errors.Is(err, preamble.ErrRoundTrip) ||
			errors.Is(err, format.ErrBrokenFrontmatter) {
			return nil, fmt.Errorf("%s: %w: %w", path, apperr.ErrUnprocessable, err)
		}
		return nil, err
	}
	if res.Lossy {
		s.log.Warn("values written with full re-render",
			slog.String("path", path), slog.String("reason", res.Reason))
	}

	out := &SaveResult{Path: path, Lossy: res.Lossy, Reason: res.Reason, Values: values}
	if res.Text == string(existing) {
		out.Checksum = checksum.Sum(existing)
		return out, nil
	}
	if err := s.write(path, []byte(res.Text)); err != nil {
		return nil, err
	}
	out.Checksum = checksum.Sum([]byte(res.Text))
	out.Changed = true
	s.publish(EventUpdated, path)
	return out, nil
}

// PreviewMarkerize reports what markerizing the file would change, as a
// unified diff.
func (s *Service) PreviewMarkerize(_ context.Context, path string) (*MarkerizeResult, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	res, _, err := s.markerize(path, data)
	return res, err
}

// ApplyMarkerize writes the markerized text when it differs.
func (s *Service) ApplyMarkerize(_ context.Context, path string, ifMatch string) (*MarkerizeResult, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if err := checkMatch(data, ifMatch); err != nil {
		return nil, err
	}
	res, out, err := s.markerize(path, data)
	if err != nil || !res.Report.Changed {
		return res, err
	}
	if err := s.write(path, []byte(out)); err != nil {
		return nil, err
	}
	res.Applied = true
	res.Checksum = checksum.Sum([]byte(out))
	s.publish(EventMarkerized, path)
	return res, nil
}

func (s *Service) markerize(path string, data []byte) (*MarkerizeResult, string, error) {
	if !s.formats.IsComponent(path) {
		return nil, "", fmt.Errorf("%s: only component files carry region markers: %w", path, apperr.ErrUnprocessable)
	}
	out, report := s.injector.Markerize(string(data))
	diff, err := UnifiedDiff(path, string(data), out)
	if err != nil {
		return nil, "", err
	}
	return &MarkerizeResult{
		Path:     path,
		Checksum: checksum.Sum(data),
		Report:   report,
		Diff:     diff,
	}, out, nil
}

// UnifiedDiff renders the change from a to b for path.
func UnifiedDiff(path, a, b string) (string, error) {
	if a == b {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
}

// ListFiles returns one page of indexed files.
func (s *Service) ListFiles(_ context.Context, q index.ListQuery) ([]models.FileMetadata, int, error) {
	rows, total, err := s.db.List(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.FileMetadata, len(rows))
	for i, r := range rows {
		items[i] = r.Metadata()
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Graph returns all nodes and edges of the import graph.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphLink, error) {
	return s.db.Graph()
}

// UsedBy returns all files that import or link to target.
func (s *Service) UsedBy(_ context.Context, target string) ([]string, error) {
	users, err := s.db.UsedBy(target)
	return nonNilSlice(users), err
}

// Regions returns the region markers of a file and the required ones it lacks.
func (s *Service) Regions(_ context.Context, path string) ([]models.Region, []string, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, nil, err
	}
	text := string(data)
	return nonNilSlice(markerize.Regions(text)), nonNilSlice(markerize.Missing(text)), nil
}

// Ready reports whether the index is reachable.
func (s *Service) Ready() error {
	return s.db.Ping()
}

// IndexFile summarizes data and upserts it into the index.
func (s *Service) IndexFile(path string, data []byte) error {
	return index.IndexFile(s.db, s.parser, path, data)
}

// write stores content and refreshes the index entry.
func (s *Service) write(path string, content []byte) error {
	if err := s.store.Write(path, content); err != nil {
		return err
	}
	return s.IndexFile(path, content)
}

func (s *Service) buildDetail(path string, data []byte) (*FileDetail, error) {
	res := s.parser.Parse(path, data)
	users, err := s.db.UsedBy(path)
	if err != nil {
		return nil, err
	}
	updated := time.Now().UTC()
	if row, err := s.db.GetFile(path); err == nil {
		updated = row.UpdatedAt
	}
	return &FileDetail{
		Path:      path,
		Kind:      res.Kind,
		Title:     res.Title,
		Content:   string(data),
		Checksum:  checksum.Sum(data),
		Legacy:    res.Legacy(),
		Missing:   nonNilSlice(res.Missing),
		Regions:   nonNilSlice(res.Regions),
		UsedBy:    nonNilSlice(users),
		UpdatedAt: updated,
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ParseText parses text as if it were stored at path. Nothing is written.
func (s *Service) ParseText(path, text string) (models.FileModel, models.Trace) {
	return s.formats.Parse(path, text)
}

// MarkerizeText runs the injector over text. Nothing is written.
func (s *Service) MarkerizeText(text string) (string, models.MarkerizeReport) {
	return s.injector.Markerize(text)
}
