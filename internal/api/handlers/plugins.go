package handlers

import (
	"net/http"

	"github.com/mindmesh-ai/mindmesh/internal/api"
	"github.com/mindmesh-ai/mindmesh/internal/ingest"
)

type PluginsHandler struct {
	registry *ingest.Registry
}

func NewPluginsHandler(registry *ingest.Registry) *PluginsHandler {
	return &PluginsHandler{registry: registry}
}

// List returns every registered plugin with its parameter schema so the
// surrounding UI can render upload forms without hardcoding plugin knowledge.
func (h *PluginsHandler) List(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.registry.Discover())
}
