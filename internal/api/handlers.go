package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/convservice"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/samples"
)

const maxBodySize = 1 << 20 // 1 MB

// Handler holds API route handlers.
type Handler struct {
	svc    *convservice.Service
	corpus *samples.FS
}

// NewHandler creates a new Handler.
func NewHandler(svc *convservice.Service, corpus *samples.FS) *Handler {
	return &Handler{svc: svc, corpus: corpus}
}

// conversationID extracts and parses the {id} URL parameter.
func conversationID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// samplePath extracts the sample path from the URL (everything after
// /samples/). Supports encoded slashes from OpenAPI clients.
func samplePath(r *http.Request) string {
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

// writeServiceError maps service-layer sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// CreateConversation handles POST /api/conversations.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req CreateConversationRequest
	// An empty body is allowed: the name is optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	c, err := h.svc.CreateConversation(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err, "create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, resultEnvelope{Results: c})
}

// ListConversations handles GET /api/conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	var ids []uuid.UUID
	for _, raw := range q["ids"] {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid conversation id %q", raw)))
			return
		}
		ids = append(ids, id)
	}

	items, total, err := h.svc.ListConversations(r.Context(), ids, offset, limit)
	if err != nil {
		writeServiceError(w, err, "list conversations")
		return
	}
	if items == nil {
		items = []models.Conversation{}
	}
	writeJSON(w, http.StatusOK, listEnvelope{Results: items, TotalEntries: total})
}

// GetConversation handles GET /api/conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid conversation id"))
		return
	}
	c, msgs, err := h.svc.GetConversation(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "get conversation")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Results: ConversationDetail{Conversation: *c, Messages: msgs}})
}

// UpdateConversation handles POST /api/conversations/{id}.
func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid conversation id"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	c, err := h.svc.UpdateConversation(r.Context(), id, req.Name)
	if err != nil {
		writeServiceError(w, err, "update conversation")
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Results: c})
}

// DeleteConversation handles DELETE /api/conversations/{id}.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid conversation id"))
		return
	}
	if err := h.svc.DeleteConversation(r.Context(), id); err != nil {
		writeServiceError(w, err, "delete conversation")
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Results: boolResult{Success: true}})
}

// AddMessage handles POST /api/conversations/{id}/messages.
func (h *Handler) AddMessage(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid conversation id"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req AddMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	m, err := h.svc.AddMessage(r.Context(), id, req.Role, req.Content, req.ParentID, req.Metadata)
	if err != nil {
		writeServiceError(w, err, "add message")
		return
	}
	writeJSON(w, http.StatusCreated, resultEnvelope{Results: m})
}

// UpdateMessage handles POST /api/conversations/{id}/messages/{messageID}.
func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid conversation id"))
		return
	}
	msgID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid message id"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req UpdateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	m, err := h.svc.UpdateMessage(r.Context(), id, msgID, req.Content, req.Metadata)
	if err != nil {
		writeServiceError(w, err, "update message")
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Results: m})
}

// ExportConversation handles GET /api/conversations/{id}/export.
func (h *Handler) ExportConversation(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid conversation id"))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="conversation-%s.csv"`, id))
	if err := h.svc.ExportCSV(r.Context(), id, w); err != nil {
		// Headers may already be sent; log and give up on the body.
		slog.Error("export conversation failed", slog.String("id", id.String()), slog.String("error", err.Error()))
	}
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, err, "search")
		return
	}
	writeJSON(w, http.StatusOK, listEnvelope{Results: hits, TotalEntries: len(hits)})
}

// ListSamples handles GET /api/samples.
func (h *Handler) ListSamples(w http.ResponseWriter, r *http.Request) {
	metas, err := h.corpus.List()
	if err != nil {
		slog.Error("list samples failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, listEnvelope{Results: metas, TotalEntries: len(metas)})
}

// GetSample handles GET /api/samples/*.
func (h *Handler) GetSample(w http.ResponseWriter, r *http.Request) {
	path := samplePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	detail, err := h.corpus.Detail(path)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Results: detail})
}
