package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kiln/internal/fileservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *fileservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(LimitBody)
	r.Use(AuthMiddleware(authEnabled, token))

	// Raw file CRUD.
	r.Get("/files", h.ListFiles)
	r.Post("/files", h.CreateFile)
	r.Get("/files/*", h.GetFile)
	r.Put("/files/*", h.UpdateFile)
	r.Delete("/files/*", h.DeleteFile)

	// Values editing.
	r.Get("/values/*", h.GetValues)
	r.Put("/values/*", h.SaveValues)

	// Region markers.
	r.Get("/markerize/*", h.PreviewMarkerize)
	r.Post("/markerize/*", h.ApplyMarkerize)
	r.Get("/regions/*", h.Regions)

	// Stateless codec.
	r.Route("/codec", func(r chi.Router) {
		r.Post("/parse", h.CodecParse)
		r.Post("/assemble", h.CodecAssemble)
		r.Post("/markerize", h.CodecMarkerize)
	})

	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)
	r.Get("/used-by/*", h.UsedBy)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
