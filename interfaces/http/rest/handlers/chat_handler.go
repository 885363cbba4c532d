package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/internal/chat"
	"github.com/obahamonde/cloudantic/internal/store"
	"github.com/obahamonde/cloudantic/pkg/api"
	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// ChatHandler serves the chat history endpoint and the live SSE stream.
type ChatHandler struct {
	keyedStore store.KeyedStore
	bridge     *chat.Bridge
	logger     *zap.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(keyedStore store.KeyedStore, bridge *chat.Bridge, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		keyedStore: keyedStore,
		bridge:     bridge,
		logger:     logger,
	}
}

// History handles GET /api/chatlist/{user}, most recent first.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	messages, err := chat.LoadHistory(r.Context(), h.keyedStore, user)
	if err != nil {
		api.RespondError(w, err)
		return
	}
	api.Success(w, http.StatusOK, messages)
}

// Stream handles GET /api/chat/{user}?text=<utterance> as a server-sent
// event stream: one "message" event per generated chunk, then a terminal
// "done" or an in-band "error" event. Closing the connection cancels the
// upstream call.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	text := r.URL.Query().Get("text")
	if text == "" {
		api.RespondError(w, appErrors.NewValidation("query parameter text is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.RespondError(w, appErrors.NewInternal("response writer does not support streaming", nil))
		return
	}

	session, err := chat.NewSession(r.Context(), h.keyedStore, user)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	// Headers are not committed until the first emitted event, so a busy
	// rejection below can still turn into a plain HTTP status.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(event chat.Event) error {
		if err := writeSSE(w, string(event.Type), event.Data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err = h.bridge.Run(r.Context(), session, text, emit)
	switch {
	case err == nil:
		// Completed; terminal event already emitted.
	case appErrors.IsSessionBusy(err):
		api.RespondError(w, err)
	case appErrors.IsStreamAborted(err):
		// Client is gone; nothing left to write.
	default:
		// Failure was already delivered in-band as an error event.
		h.logger.Debug("stream ended with error", zap.String("user", user), zap.Error(err))
	}
}

// writeSSE writes one server-sent event, splitting multi-line payloads into
// consecutive data lines per the SSE framing rules.
func writeSSE(w http.ResponseWriter, event, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}
