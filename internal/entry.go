// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/kiln/internal/api"
	"github.com/starford/kiln/internal/fileservice"
	"github.com/starford/kiln/internal/format"
	"github.com/starford/kiln/internal/index"
	"github.com/starford/kiln/internal/markerize"
	"github.com/starford/kiln/internal/mcpserver"
	"github.com/starford/kiln/internal/parser"
	"github.com/starford/kiln/internal/preamble"
	"github.com/starford/kiln/internal/sse"
	"github.com/starford/kiln/internal/storage"
)

// Version is reported by the MCP server.
var Version = "dev"

// core holds the components shared by the HTTP and MCP front ends.
type core struct {
	store  *storage.FS
	db     *index.DB
	parser *parser.Parser
	svc    *fileservice.Service
}

func (a *application) init(logOut io.Writer) (*slog.Logger, error) {
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
			Level: a.config.App.LogLevel,
		}))
	}
	return a.logger, nil
}

// newCodec builds the stateless codec pieces from cfg.
func newCodec(cfg *Config, logger *slog.Logger) (*format.Dispatcher, *parser.Parser, *markerize.Injector) {
	pp := preamble.NewParser(preamble.WithLogger(logger))
	formats := format.NewDispatcher(pp, cfg.Site.ComponentExtensions...)
	return formats, parser.New(formats, pp), markerize.New(markerize.WithPropsSource(cfg.Markerize.PropsSource))
}

func newCore(cfg *Config, logger *slog.Logger) (*core, error) {
	// Ensure site directory exists.
	if err := os.MkdirAll(cfg.Site.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create site dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Site.Path, cfg.Site.Extensions()...)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	formats, p, injector := newCodec(cfg, logger)
	svc := fileservice.NewService(fileservice.Deps{
		Store:    store,
		Index:    db,
		Formats:  formats,
		Parser:   p,
		Injector: injector,
		Logger:   logger,
	})

	if err := index.Sync(db, store, p, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return &core{store: store, db: db, parser: p, svc: svc}, nil
}

// Run starts the HTTP server and the site watcher.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	logger, err := app.init(os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg := app.config
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("site_path", cfg.Site.Path),
		slog.Any("extensions", cfg.Site.Extensions()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	c.svc.SetPublisher(broker)

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if err := c.svc.Ready(); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start site watcher; external edits reach SSE clients through it.
	g.Go(func() error {
		w := index.NewWatcher(c.db, c.store, c.parser, c.store.Root(), logger, broker.PublishFileEvent)
		if err := w.Run(gCtx); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context so the watcher stops too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(_ context.Context, opts ...Option) error {
	app := newApplication(opts)
	logger, err := app.init(os.Stderr)
	if err != nil {
		return err
	}

	c, err := newCore(app.config, logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	logger.Info("MCP server starting", slog.String("site_path", app.config.Site.Path))
	return mcpserver.New(c.svc, Version).ServeStdio()
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
