package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/internal/domain"
	"github.com/obahamonde/cloudantic/internal/service/content"
	"github.com/obahamonde/cloudantic/pkg/api"
)

// UploadHandler serves the upload metadata endpoints. Blob content lives in
// external object storage; only metadata passes through here.
type UploadHandler struct {
	content content.Service
	logger  *zap.Logger
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(contentService content.Service, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{content: contentService, logger: logger}
}

// CreateUpload handles POST /api/upload.
func (h *UploadHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	var upload domain.Upload
	if err := api.DecodeJSON(r, &upload); err != nil {
		api.RespondError(w, err)
		return
	}

	sortKey, err := h.content.CreateUpload(r.Context(), upload)
	if err != nil {
		api.RespondError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, map[string]string{"sk": sortKey})
}

// ListUploads handles GET /api/upload/{user}.
func (h *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	uploads, cursor, err := h.content.ListUploads(r.Context(), user, listOptions(r))
	if err != nil {
		api.RespondError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]interface{}{
		"uploads": uploads,
		"cursor":  cursor,
	})
}
