// Package api provides standardized helper functions for HTTP API responses.
package api

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// Success sends a standardized successful HTTP response with optional JSON data.
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error sends a standardized error response with consistent JSON format.
func Error(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// RespondError maps an application error to its HTTP status and sends it.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case appErrors.IsValidation(err):
		Error(w, http.StatusBadRequest, err.Error())
	case appErrors.IsNotFound(err):
		Error(w, http.StatusNotFound, err.Error())
	case appErrors.IsSessionBusy(err):
		Error(w, http.StatusConflict, err.Error())
	case appErrors.IsStorageUnavailable(err), appErrors.IsUpstream(err):
		Error(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		Error(w, http.StatusInternalServerError, "an internal error occurred")
	}
}

// DecodeJSON parses a request body into dst, rejecting malformed payloads.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return appErrors.NewValidation("invalid request body: " + err.Error())
	}
	return nil
}
