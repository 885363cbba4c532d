// Package handlers implements the HTTP endpoints of the API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/internal/domain"
	"github.com/obahamonde/cloudantic/internal/service/content"
	"github.com/obahamonde/cloudantic/internal/store"
	"github.com/obahamonde/cloudantic/pkg/api"
	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// PostHandler serves the post and namespace endpoints.
type PostHandler struct {
	content content.Service
	logger  *zap.Logger
}

// NewPostHandler creates a post handler.
func NewPostHandler(contentService content.Service, logger *zap.Logger) *PostHandler {
	return &PostHandler{content: contentService, logger: logger}
}

// CreatePost handles POST /api/post.
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var post domain.Post
	if err := api.DecodeJSON(r, &post); err != nil {
		api.RespondError(w, err)
		return
	}

	sortKey, err := h.content.CreatePost(r.Context(), post)
	if err != nil {
		api.RespondError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, map[string]string{"sk": sortKey})
}

// ListPosts handles GET /api/post/{user}.
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	result, cursor, err := h.content.ListPosts(r.Context(), user, listOptions(r))
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]interface{}{
		"posts":    result.Posts,
		"warnings": result.Warnings,
		"cursor":   cursor,
	})
}

// DeletePost handles DELETE /api/post/{user}?sk=<sortKey>. Responds 204
// whether or not the post existed.
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	sortKey := r.URL.Query().Get("sk")
	if sortKey == "" {
		api.RespondError(w, appErrors.NewValidation("query parameter sk is required"))
		return
	}

	if err := h.content.DeletePost(r.Context(), user, sortKey); err != nil {
		api.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNamespaces handles GET /api/namespace/{user}.
func (h *PostHandler) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	namespaces, err := h.content.ListNamespaces(r.Context(), user)
	if err != nil {
		api.RespondError(w, err)
		return
	}
	api.Success(w, http.StatusOK, namespaces)
}

// listOptions reads pagination parameters shared by the listing endpoints.
func listOptions(r *http.Request) store.ListOptions {
	opts := store.ListOptions{
		Prefix: r.URL.Query().Get("prefix"),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.ParseInt(raw, 10, 32); err == nil && limit > 0 {
			opts.Limit = int32(limit)
		}
	}
	return opts
}
