package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nexus/internal/intelservice"
)

// NewRouter returns the API routes, meant to be mounted under /api.
// A nil events handler leaves GET /events unrouted.
func NewRouter(svc *intelservice.Service, authEnabled bool, token string, events http.Handler) chi.Router {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		r.Post("/links", h.CreateLink)
		r.Route("/entities/{id}", func(r chi.Router) {
			r.Get("/links", h.EntityLinks)
			r.Get("/context", h.EntityContext)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.ProcessDocument)
			r.Get("/", h.ListDocuments)
			r.Post("/upload", h.UploadDocument)
			r.Get("/{id}", h.GetDocument)
			r.Delete("/{id}", h.DeleteDocument)
		})

		r.Get("/search", h.Search)
		r.Post("/classify", h.Classify)
	})

	if events != nil {
		r.With(StreamAuthMiddleware(authEnabled, token)).Get("/events", events.ServeHTTP)
	}
	return r
}
