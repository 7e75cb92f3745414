package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmesh-ai/mindmesh/internal/api/handlers"
	"github.com/mindmesh-ai/mindmesh/internal/ingest"
)

func testRouter() http.Handler {
	return NewRouter(RouterConfig{
		CollectionHandler: handlers.NewCollectionHandler(nil),
		IngestHandler:     handlers.NewIngestHandler(nil),
		QueryHandler:      handlers.NewQueryHandler(nil),
		CompletionHandler: handlers.NewCompletionHandler(nil, nil),
		PluginsHandler:    handlers.NewPluginsHandler(ingest.NewRegistry()),
	})
}

func TestRouter_Health(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	testRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Data["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_Plugins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/plugins", nil)
	rec := httptest.NewRecorder()

	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()

	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_BodyTooLarge(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{}"))
	req.ContentLength = 128 * 1024 * 1024
	rec := httptest.NewRecorder()

	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
