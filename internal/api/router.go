package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dispatch/internal/docservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *docservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Vault documents.
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/{slug}/diff", h.DocumentDiff)
	r.Post("/documents/tags", h.AddTag)

	// Publication repository.
	r.Get("/repository/status", h.RepositoryStatus)
	r.Post("/publish", h.Publish)
	r.Post("/unpublish", h.Unpublish)
	r.Get("/history", h.History)

	r.Get("/assets", h.Assets)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
