package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mindmesh-ai/mindmesh/internal/api"
	"github.com/mindmesh-ai/mindmesh/internal/api/handlers"
	"github.com/mindmesh-ai/mindmesh/internal/api/middleware"
)

type RouterConfig struct {
	CollectionHandler *handlers.CollectionHandler
	IngestHandler     *handlers.IngestHandler
	QueryHandler      *handlers.QueryHandler
	CompletionHandler *handlers.CompletionHandler
	PluginsHandler    *handlers.PluginsHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// uploads are the largest accepted bodies; everything else is far below
	const maxBodyBytes int64 = 64 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/plugins", cfg.PluginsHandler.List)

	r.Route("/collections", func(r chi.Router) {
		r.Post("/", cfg.CollectionHandler.Create)
		r.Get("/", cfg.CollectionHandler.List)
		r.Get("/{id}", cfg.CollectionHandler.Get)
		r.Put("/{id}", cfg.CollectionHandler.Update)
		r.Delete("/{id}", cfg.CollectionHandler.Delete)
		r.Get("/{id}/stats", cfg.CollectionHandler.Stats)

		r.Post("/{id}/files", cfg.IngestHandler.Ingest)
		r.Get("/{id}/files", cfg.IngestHandler.ListFiles)
	})

	r.Delete("/files/{fileID}", cfg.IngestHandler.DeleteFile)

	r.Post("/query", cfg.QueryHandler.Query)

	r.Route("/assistants", func(r chi.Router) {
		r.Get("/", cfg.CompletionHandler.ListAssistants)
		r.Get("/{id}", cfg.CompletionHandler.GetAssistant)
		r.Post("/{id}/complete", cfg.CompletionHandler.Complete)
	})

	return r
}
