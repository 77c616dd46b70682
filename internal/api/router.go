package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/convservice"
	"github.com/starford/ansuz/internal/samples"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// ratePerMinute is the per-client request budget (<= 0 disables limiting).
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *convservice.Service, corpus *samples.FS, authEnabled bool, token string, ratePerMinute int, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, corpus)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))
	r.Use(RateLimitMiddleware(ratePerMinute))

	// Conversations CRUD.
	r.Post("/conversations", h.CreateConversation)
	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/{id}", h.GetConversation)
	r.Post("/conversations/{id}", h.UpdateConversation)
	r.Delete("/conversations/{id}", h.DeleteConversation)

	// Messages.
	r.Post("/conversations/{id}/messages", h.AddMessage)
	r.Post("/conversations/{id}/messages/{messageID}", h.UpdateMessage)

	// CSV export.
	r.Get("/conversations/{id}/export", h.ExportConversation)

	// Search.
	r.Get("/search", h.Search)

	// Sample corpus (read-only).
	r.Get("/samples", h.ListSamples)
	r.Get("/samples/*", h.GetSample)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
