package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/obahamonde/cloudantic/internal/chat"
	"github.com/obahamonde/cloudantic/internal/hydrate"
	"github.com/obahamonde/cloudantic/internal/observability"
	"github.com/obahamonde/cloudantic/internal/service/content"
	"github.com/obahamonde/cloudantic/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zaptest.NewLogger(t)
	mem := store.NewMemoryStore()
	hydrator := hydrate.New(mem, 4, logger)
	contentService := content.NewService(mem, hydrator, logger)
	bridge := chat.NewBridge(chat.NewMockProvider(), chat.BridgeConfig{
		Namespace:   "default",
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	}, logger, nil)
	router := NewRouter(contentService, mem, bridge, observability.NewCollector("cloudantic_test"), logger)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()

	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequest(method, url, nil)
	}
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndListPosts(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/post",
		`{"user":"u1","namespace":"tech","title":"hello","content":"world","created_at":"2024-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created map[string]string
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created["sk"])

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/post/u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Posts []struct {
			Title string `json:"title"`
		} `json:"posts"`
		Cursor string `json:"cursor"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Posts, 1)
	assert.Equal(t, "hello", listing.Posts[0].Title)
	assert.Empty(t, listing.Cursor)
}

func TestCreatePostValidationError(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/post",
		`{"user":"u1","content":"no title","created_at":"2024-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "error")
}

func TestCreatePostMalformedBody(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/post", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeletePost(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/post",
		`{"user":"u1","title":"t","content":"c","created_at":"2024-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]string
	require.NoError(t, json.Unmarshal(body, &created))

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/post/u1?sk="+created["sk"], "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Missing sk parameter is rejected rather than deleting nothing silently.
	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/post/u1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserImportAndLookup(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/user",
		`{"sub":"auth0|abc","name":"Ada","email":"ada@example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/user/auth0%7Cabc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Ada")

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/user/nobody", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNamespaceListing(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/post",
		`{"user":"u1","namespace":"tech","title":"t","content":"c","created_at":"2024-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/namespace/u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var namespaces []struct {
		Name string `json:"namespace"`
	}
	require.NoError(t, json.Unmarshal(body, &namespaces))
	require.Len(t, namespaces, 1)
	assert.Equal(t, "tech", namespaces[0].Name)
}

func TestUploadEndpoints(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/upload",
		`{"user":"u1","key":"docs/a.pdf","content_type":"application/pdf","size":100,"created_at":"2024-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/upload/u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "docs/a.pdf")
}

func TestChatStreamMissingText(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/chat/u1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatStreamEndToEnd(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/chat/u1?text=hello", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	payload := string(body)
	assert.Contains(t, payload, "event: message")
	assert.Contains(t, payload, "event: done")
	assert.NotContains(t, payload, "event: error")

	// The completed turn must now be visible in the history listing.
	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/chatlist/u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(body, &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "assistant", messages[0].Role)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "hello", messages[1].Content)
}

func TestChatHistoryEmpty(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/chatlist/u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}
