package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/kiln/internal/fileservice"
	"github.com/starford/kiln/internal/models"
)

// ParseOutput is what `parse` prints.
type ParseOutput struct {
	Path  string           `json:"path"`
	Kind  models.FileKind  `json:"kind"`
	Model models.FileModel `json:"model"`
	Trace models.Trace     `json:"trace"`
}

// ParseFile parses the file at path with the configured codecs and writes
// the model and trace to out as JSON.
func ParseFile(path string, out io.Writer, opts ...Option) error {
	app := newApplication(opts)
	logger, err := app.init(os.Stderr)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	formats, _, _ := newCodec(app.config, logger)
	model, trace := formats.Parse(path, string(data))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(ParseOutput{Path: path, Kind: formats.Kind(path), Model: model, Trace: trace})
}

// MarkerizeFile inserts missing region markers into the component at path.
// The report goes to out, followed by a unified diff unless write is set, in
// which case the file is rewritten in place.
func MarkerizeFile(path string, write bool, out io.Writer, opts ...Option) error {
	app := newApplication(opts)
	logger, err := app.init(os.Stderr)
	if err != nil {
		return err
	}
	formats, _, injector := newCodec(app.config, logger)
	if !formats.IsComponent(path) {
		return fmt.Errorf("%s is not a component file", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	text, report := injector.Markerize(string(data))
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Changed {
		return nil
	}

	if !write {
		diff, err := fileservice.UnifiedDiff(filepath.ToSlash(path), string(data), text)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, diff)
		return err
	}

	if err := os.WriteFile(path, []byte(text), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info("markerized", slog.String("path", path), slog.Int("warnings", len(report.Warnings)))
	return nil
}
