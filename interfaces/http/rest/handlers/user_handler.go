package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/internal/domain"
	"github.com/obahamonde/cloudantic/internal/service/content"
	"github.com/obahamonde/cloudantic/pkg/api"
)

// UserHandler serves the profile endpoints. Identity verification happens
// upstream; by the time a request lands here its payload is trusted.
type UserHandler struct {
	content content.Service
	logger  *zap.Logger
}

// NewUserHandler creates a user handler.
func NewUserHandler(contentService content.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{content: contentService, logger: logger}
}

// ImportUser handles POST /api/user, upserting an identity-provider profile.
func (h *UserHandler) ImportUser(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if err := api.DecodeJSON(r, &user); err != nil {
		api.RespondError(w, err)
		return
	}

	if err := h.content.ImportUser(r.Context(), user); err != nil {
		api.RespondError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, user)
}

// GetUser handles GET /api/user/{sub}.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	sub := chi.URLParam(r, "sub")

	user, err := h.content.GetUser(r.Context(), sub)
	if err != nil {
		api.RespondError(w, err)
		return
	}
	api.Success(w, http.StatusOK, user)
}
