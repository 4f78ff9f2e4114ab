package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/refsvc"
	"github.com/starford/raido/internal/storage"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *refsvc.Service, store storage.Provider, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ih := NewImageHandler(store)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Reference engine.
	r.Get("/references", h.ListReferences)
	r.Post("/rewrite", h.Rewrite)
	r.Post("/rename", h.Rename)
	r.Post("/resolve", h.Resolve)

	// Operation log.
	r.Get("/history", h.History)

	// Images.
	r.Post("/images", ih.Upload)
	r.Get("/images/*", h.ImageMeta)
	r.Delete("/images/*", h.TrashImage)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
